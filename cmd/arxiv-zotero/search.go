// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/pdiddy/arxiv-zotero/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search arXiv without writing to the library",
	Long: `Search runs the arXiv query built from the filters and prints the results.
Nothing is written to Zotero. Use --save to store the filters and results in
a query file that collect --query-file can replay.`,
	RunE: runSearch,
}

func init() {
	addSearchFlags(searchCmd)
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	searchCmd.Flags().String("save", "", "write filters and results to this YAML query file")
	searchCmd.Flags().Bool("show-query", false, "print the rendered arXiv query and exit")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	params, err := searchParams(cmd)
	if err != nil {
		return err
	}

	if show, _ := cmd.Flags().GetBool("show-query"); show {
		query, err := params.BuildQuery()
		if err != nil {
			return err
		}
		fmt.Println(query)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := search.NewClient(cfg.Search, os.Stderr)
	papers, err := client.Search(ctx, params)
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("save"); path != "" {
		if err := search.WriteQueryFile(path, params, papers); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved %d result(s) to %s\n", len(papers), path)
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return search.FormatJSON(papers, os.Stdout)
	}
	search.FormatTable(papers, os.Stdout)
	return nil
}
