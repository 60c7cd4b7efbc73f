// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Search arXiv and file the results into Zotero",
	Long: `Collect runs one arXiv search and processes every result: papers already
in the library are skipped, new ones are created from the mapped metadata,
and the PDF and a summary note are attached when enabled.

A failed PDF download or summary never fails the paper; it is reported as
degraded. The command exits non-zero when any paper failed.`,
	RunE: runCollect,
}

func init() {
	addCollectFlags(collectCmd)
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
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

	summary, err := a.collector.Run(ctx, params, cfg.Collect.DownloadPDFs, cfg.Collect.Concurrency)
	if err != nil {
		return err
	}
	printRun(w, summary)
	return runError(summary)
}
