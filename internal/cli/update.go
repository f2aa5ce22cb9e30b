package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stockroom-app/stockroom/internal/entity"
)

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	PayloadFile string
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <kind> <id>",
		Short: "Queue a change to an entity",
		Long: `Queue a change to an entity. The payload carries only the changed
fields. Updating an entity that is itself still pending is allowed; the
change waits for the entity's creation to sync first.

Example:
  stockroom update item item-17 -f changes.yaml`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&opts.PayloadFile, "file", "f", "", "YAML payload file (- for stdin)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func runUpdate(cmd *cobra.Command, opts *UpdateOptions, kindArg, id string) error {
	ctx := cmd.Context()
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	kind, err := parseKind(kindArg)
	if err != nil {
		return err
	}
	payload, err := loadPayload(opts.PayloadFile)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.queue.Enqueue(ctx, entity.OpUpdate, entity.Ref{Kind: kind, ID: entity.ID(id)}, payload)
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
	return out.Success(fmt.Sprintf("queued #%d: update %s", m.ID, m.Entity))
}
