package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/soyeahso/idpforge/internal/domain"
	"github.com/soyeahso/idpforge/internal/notify"
	"github.com/soyeahso/idpforge/internal/store"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse the run history",
	}

	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsShowCmd())
	cmd.AddCommand(newRunsSearchCmd())
	cmd.AddCommand(newRunsDeleteCmd())
	return cmd
}

// withStore opens the history database for the duration of fn.
func withStore(fn func(ctx context.Context, db *store.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(context.Background(), db)
}

func newRunsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, db *store.DB) error {
				runs, err := db.ListRuns(ctx, limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tDURATION\tPROVIDER\tTASK")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						r.ID, r.StartedAt.Local().Format(time.DateTime), r.Status,
						r.Duration().Round(time.Second), r.Provider, ellipsis(r.Task, 48))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run with its stages and artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, db *store.DB) error {
				run, err := db.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(run)
				}
				printRun(out, run)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printRun(out io.Writer, run *domain.Run) {
	for _, line := range notify.Summary(run) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "  task: %s\n", run.Task)
	if run.Error != "" {
		fmt.Fprintf(out, "  error: %s\n", run.Error)
	}
	for _, st := range run.Stages {
		if len(st.Artifacts) == 0 {
			continue
		}
		fmt.Fprintf(out, "\n%s:\n", st.Agent)
		for _, a := range st.Artifacts {
			fmt.Fprintf(out, "  %-10s %8d  %s\n", a.Kind, a.Size, a.Path)
		}
	}
}

func newRunsSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Full-text search over generated artifacts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, db *store.DB) error {
				hits, err := db.SearchArtifacts(ctx, strings.Join(args, " "), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(hits) == 0 {
					fmt.Fprintln(out, "No matches.")
					return nil
				}
				for _, h := range hits {
					fmt.Fprintf(out, "%s  %s (%s)\n    %s\n", short(h.RunID), h.Path, h.Agent, h.Snippet)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of matches")
	return cmd
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>...",
		Short: "Delete runs from the history",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, db *store.DB) error {
				for _, id := range args {
					if err := db.DeleteRun(ctx, id); err != nil {
						return fmt.Errorf("deleting %s: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
				}
				return nil
			})
		},
	}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func ellipsis(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
