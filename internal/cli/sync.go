package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stockroom-app/stockroom/internal/engine"
	"github.com/stockroom-app/stockroom/internal/entity"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Drain the mutation queue against the backend",
		Long: `Drain the mutation queue against the backend now. Mutations replay
in dependency order; failures are reported per mutation and never stop
independently ready ones.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts)
		},
	}

	return cmd
}

func runSync(cmd *cobra.Command, opts *RootOptions) error {
	ctx := cmd.Context()
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	var synced, failed int
	a.engine.SetEventHook(func(ev engine.DrainEvent) {
		switch ev.Status {
		case entity.StatusSynced:
			synced++
		case entity.StatusFailed:
			failed++
		}
		if opts.Verbose && opts.Format != "json" {
			fmt.Fprintf(cmd.ErrOrStderr(), "#%d %s %s -> %s\n", ev.MutationID, ev.Op, ev.Entity, ev.Status)
		}
	})

	if err := a.engine.Drain(ctx); err != nil {
		return err
	}

	remaining := a.queue.PendingCount()
	if opts.Format == "json" {
		if err := out.Success(map[string]any{
			"synced":  synced,
			"failed":  failed,
			"pending": remaining,
		}); err != nil {
			return err
		}
	} else {
		if err := out.Success(fmt.Sprintf("synced %d, failed %d, pending %d", synced, failed, remaining)); err != nil {
			return err
		}
	}

	if failed > 0 {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d mutation(s) failed", failed), nil)
	}
	return nil
}
