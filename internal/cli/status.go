package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stockroom-app/stockroom/internal/entity"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Show the mutation queue and projected replay order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, rootOpts)
		},
	}

	return cmd
}

type statusRow struct {
	ID     int64  `json:"id"`
	Op     string `json:"op"`
	Entity string `json:"entity"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func runStatus(cmd *cobra.Command, opts *RootOptions) error {
	ctx := cmd.Context()
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	muts := a.queue.All()
	rows := make([]statusRow, 0, len(muts))
	for _, m := range muts {
		if m.Status == entity.StatusSynced {
			continue
		}
		rows = append(rows, statusRow{
			ID:     m.ID,
			Op:     string(m.Op),
			Entity: m.Entity.String(),
			Status: string(m.Status),
			Reason: m.FailureReason,
		})
	}

	order, blocked := a.graph.ReplayOrder()

	if opts.Format == "json" {
		return out.Success(map[string]any{
			"pending":      a.queue.PendingCount(),
			"mutations":    rows,
			"replay_order": order,
			"blocked":      blocked,
		})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "pending: %d\n", a.queue.PendingCount())
	if len(rows) > 0 {
		w := tabwriter.NewWriter(&b, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tOP\tENTITY\tSTATUS\tREASON")
		for _, r := range rows {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Op, r.Entity, r.Status, r.Reason)
		}
		w.Flush()
	}
	if len(blocked) > 0 {
		fmt.Fprintf(&b, "blocked: %v\n", blocked)
	}
	return out.Success(strings.TrimRight(b.String(), "\n"))
}
