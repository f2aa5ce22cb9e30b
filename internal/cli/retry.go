package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewRetryCommand creates the retry command.
func NewRetryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <mutation-id>",
		Short: "Return a failed mutation to the queue",
		Long: `Return a failed mutation to the queue. The next sync attempts it
again with a fresh retry budget. Only failed mutations can be retried.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetry(cmd, rootOpts, args[0])
		},
	}

	return cmd
}

func runRetry(cmd *cobra.Command, opts *RootOptions, arg string) error {
	ctx := cmd.Context()
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid mutation id %q", arg), err)
	}

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.queue.Retry(ctx, id); err != nil {
		out.Error(err.Error(), nil)
		return WrapExitError(ExitFailure, "retry", err)
	}

	if opts.Format == "json" {
		return out.Success(map[string]any{"mutation": id, "status": "queued"})
	}
	return out.Success(fmt.Sprintf("mutation #%d returned to queue", id))
}
