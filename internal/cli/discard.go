package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewDiscardCommand creates the discard command.
func NewDiscardCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discard <mutation-id>",
		Short: "Drop a failed mutation and its local effect",
		Long: `Drop a failed mutation. For a failed create, the optimistic entity
disappears from the local view; mutations that depended on it stay
failed and can be discarded too.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscard(cmd, rootOpts, args[0])
		},
	}

	return cmd
}

func runDiscard(cmd *cobra.Command, opts *RootOptions, arg string) error {
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

	if err := a.queue.Discard(ctx, id); err != nil {
		out.Error(err.Error(), nil)
		return WrapExitError(ExitFailure, "discard", err)
	}

	if opts.Format == "json" {
		return out.Success(map[string]any{"mutation": id, "status": "discarded"})
	}
	return out.Success(fmt.Sprintf("mutation #%d discarded", id))
}
