package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stockroom-app/stockroom/internal/entity"
)

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <kind> <id>",
		Short: "Queue the removal of an entity",
		Long: `Queue the removal of an entity. The entity disappears from the
local view immediately; the backend delete runs on the next sync.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, rootOpts, args[0], args[1])
		},
	}

	return cmd
}

func runDelete(cmd *cobra.Command, opts *RootOptions, kindArg, id string) error {
	ctx := cmd.Context()
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	kind, err := parseKind(kindArg)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.queue.Enqueue(ctx, entity.OpDelete, entity.Ref{Kind: kind, ID: entity.ID(id)}, nil)
	if err != nil {
		out.Error(err.Error(), nil)
		return WrapExitError(ExitFailure, "enqueue rejected", err)
	}

	if opts.Format == "json" {
		return out.Success(map[string]any{
			"mutation": m.ID,
			"entity":   m.Entity.String(),
		})
	}
	return out.Success(fmt.Sprintf("queued #%d: delete %s", m.ID, m.Entity))
}
