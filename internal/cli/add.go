package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stockroom-app/stockroom/internal/entity"
)

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	PayloadFile string
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <kind>",
		Short: "Queue the creation of an entity",
		Long: `Queue the creation of an entity. The entity appears in the local
view immediately under a temporary id and is sent to the backend on the
next sync.

Example:
  stockroom add category -f category.yaml
  stockroom add item -f - < item.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.PayloadFile, "file", "f", "", "YAML payload file (- for stdin)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func runAdd(cmd *cobra.Command, opts *AddOptions, kindArg string) error {
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

	tempID, err := a.registry.Allocate(ctx, kind)
	if err != nil {
		return err
	}

	m, err := a.queue.Enqueue(ctx, entity.OpCreate, entity.Ref{Kind: kind, ID: tempID}, payload)
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
	return out.Success(fmt.Sprintf("queued #%d: create %s", m.ID, m.Entity))
}
