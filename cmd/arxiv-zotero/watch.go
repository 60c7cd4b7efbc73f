// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/arxiv-zotero/internal/collect"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Repeat collect on a cron schedule",
	Long: `Watch repeats the collect search on a cron schedule until interrupted.
Duplicate detection makes each run add only papers that are new since the
last one. The schedule accepts five-field cron expressions and descriptors
such as @daily or "@every 6h".`,
	RunE: runWatch,
}

func init() {
	addCollectFlags(watchCmd)
	watchCmd.Flags().String("schedule", "@daily", "cron schedule")
	watchCmd.Flags().Bool("now", false, "also run once immediately")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
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
	creds, err := loadCredentials(cmd, cfg.Summary.Backend)
	if err != nil {
		return err
	}
	schedule, _ := cmd.Flags().GetString("schedule")
	now, _ := cmd.Flags().GetBool("now")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, closeLog, err := openLog(cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	a, err := newApp(ctx, cfg, creds, w)
	if err != nil {
		return err
	}
	defer a.Close()

	return collect.Schedule(ctx, schedule, now, w, func(ctx context.Context) {
		summary, err := a.collector.Run(ctx, params, cfg.Collect.DownloadPDFs, cfg.Collect.Concurrency)
		if err != nil {
			fmt.Fprintf(w, "run failed: %v\n", err)
			return
		}
		printRun(w, summary)
	})
}
