// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/arxiv-zotero/internal/ledger"
	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show past collection runs from the ledger",
	Long: `History lists recent runs recorded in the SQLite ledger, newest first.
Given a run ID (or a unique prefix of one) it prints every paper's outcome
for that run. --export writes runs and outcomes as YAML.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of runs to list (0 for all)")
	historyCmd.Flags().String("export", "", "write YAML to this file (- for stdout)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd); err != nil {
		return err
	}
	l, err := ledger.Open(viper.GetString("ledger_path"))
	if err != nil {
		return err
	}
	defer l.Close()

	ctx := context.Background()
	runID := ""
	if len(args) == 1 {
		runID = args[0]
	}

	if out, _ := cmd.Flags().GetString("export"); out != "" {
		return exportHistory(ctx, l, out, runID)
	}

	if runID != "" {
		run, err := l.Run(ctx, runID)
		if err != nil {
			return err
		}
		printOutcomes(os.Stdout, run)
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := l.Runs(ctx, limit)
	if err != nil {
		return err
	}
	printRuns(os.Stdout, runs)
	return nil
}

func exportHistory(ctx context.Context, l *ledger.Ledger, out, runID string) error {
	if out == "-" {
		return l.ExportYAML(ctx, os.Stdout, runID)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", out, err)
	}
	if err := l.ExportYAML(ctx, f, runID); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Exported to %s\n", out)
	return nil
}

func printRuns(w io.Writer, runs []types.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	fmt.Fprintf(w, "%-12s  %-16s  %5s  %5s  %5s  %s\n", "Run", "Started", "OK", "Skip", "Fail", "Query")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, r := range runs {
		id := r.RunID
		if len(id) > 12 {
			id = id[:12]
		}
		started := r.StartedAt.Local().Format("2006-01-02 15:04")
		if r.FinishedAt.IsZero() {
			started += "*"
		}
		query := r.Query
		if len(query) > 50 {
			query = query[:47] + "..."
		}
		fmt.Fprintf(w, "%-12s  %-16s  %5d  %5d  %5d  %s\n", id, started, r.Successful, r.Skipped, r.Failed, query)
	}
	fmt.Fprintf(w, "\n%d run(s); * marks runs that never finished\n", len(runs))
}

func printOutcomes(w io.Writer, r types.RunSummary) {
	fmt.Fprintf(w, "Run %s\nQuery: %s\nStarted: %s\n\n", r.RunID, r.Query, r.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "%-16s  %-17s  %-8s  %-13s  %-13s  %s\n", "arXiv ID", "Status", "Item", "PDF", "Summary", "Detail")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, o := range r.Outcomes {
		detail := o.Reason
		if detail == "" {
			detail = strings.Join(o.Notes, "; ")
		}
		fmt.Fprintf(w, "%-16s  %-17s  %-8s  %-13s  %-13s  %s\n", o.PaperID, o.Status, o.ItemKey, o.PDF, o.Summary, detail)
	}
	fmt.Fprintf(w, "\n%d successful, %d skipped, %d failed\n", r.Successful, r.Skipped, r.Failed)
}
