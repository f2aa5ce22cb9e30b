package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/stockroom-app/stockroom/internal/store"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Locale string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "List entities of a kind from the local view",
		Long: `List entities of a kind from the local view: confirmed entities and
optimistic pending ones together, ordered by name using locale-aware
collation. Pending and failed entities carry a badge.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Locale, "locale", "en", "BCP 47 locale for name ordering")

	return cmd
}

type listRow struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Pending bool   `json:"pending,omitempty"`
	Failed  bool   `json:"failed,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func runList(cmd *cobra.Command, opts *ListOptions, kindArg string) error {
	ctx := cmd.Context()
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	kind, err := parseKind(kindArg)
	if err != nil {
		return err
	}

	tag, err := language.Parse(opts.Locale)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid locale %q", opts.Locale), err)
	}

	a, err := openApp(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	entities, err := a.cache.List(ctx, kind)
	if err != nil {
		return err
	}

	rows := make([]listRow, 0, len(entities))
	for _, e := range entities {
		st, err := a.adapter.State(ctx, e.Ref)
		if err != nil {
			return err
		}
		rows = append(rows, listRow{
			ID:      string(e.Ref.ID),
			Name:    displayName(e),
			Pending: st.Pending,
			Failed:  st.Failed,
			Reason:  st.Reason,
		})
	}

	collate.New(tag).Sort(byName(rows))

	if opts.Format == "json" {
		return out.Success(rows)
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID, r.Name, badge(r))
	}
	w.Flush()
	return out.Success(strings.TrimRight(b.String(), "\n"))
}

// byName adapts listRow slices to the collator's Lister interface.
type byName []listRow

func (s byName) Len() int           { return len(s) }
func (s byName) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s byName) Bytes(i int) []byte { return []byte(s[i].Name) }

func displayName(e store.CachedEntity) string {
	if name, ok := e.Data["name"].(string); ok && name != "" {
		return name
	}
	return string(e.Ref.ID)
}

func badge(r listRow) string {
	switch {
	case r.Failed && r.Reason != "":
		return "failed: " + r.Reason
	case r.Failed:
		return "failed"
	case r.Pending:
		return "pending"
	default:
		return "synced"
	}
}
