// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/arxiv-zotero/internal/archive"
	"github.com/pdiddy/arxiv-zotero/internal/collect"
	"github.com/pdiddy/arxiv-zotero/internal/ledger"
	"github.com/pdiddy/arxiv-zotero/internal/mapping"
	"github.com/pdiddy/arxiv-zotero/internal/pdf"
	"github.com/pdiddy/arxiv-zotero/internal/pdftext"
	"github.com/pdiddy/arxiv-zotero/internal/search"
	"github.com/pdiddy/arxiv-zotero/internal/secrets"
	"github.com/pdiddy/arxiv-zotero/internal/seen"
	"github.com/pdiddy/arxiv-zotero/internal/summarize"
	"github.com/pdiddy/arxiv-zotero/internal/zotero"
	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

// app holds the components of a collection run, built once from the
// configuration and credentials.
type app struct {
	cfg       types.Config
	collector *collect.Collector
	closers   []io.Closer
}

// Close releases the ledger and cache connections.
func (a *app) Close() {
	for _, c := range a.closers {
		c.Close()
	}
}

// openLog returns a writer that copies progress to stderr and appends it to
// the configured log file.
func openLog(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: opening log file: %v", types.ErrConfiguration, err)
	}
	return io.MultiWriter(os.Stderr, f), func() { f.Close() }, nil
}

// loadCredentials reads the library and summarizer credentials named by
// the root flags.
func loadCredentials(cmd *cobra.Command, backend types.SummaryBackend) (types.Credentials, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	dir, _ := cmd.Flags().GetString("secrets-dir")
	return secrets.LoadCredentials(envFile, dir, backend)
}

// newApp wires every component. Required pieces fail with an error;
// optional enrichments that cannot start are reported on w and disabled.
// Local configuration is checked before the first network call.
func newApp(ctx context.Context, cfg types.Config, creds types.Credentials, w io.Writer) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	mapCfg := mapping.DefaultConfig()
	if cfg.Zotero.MappingFile != "" {
		var err error
		if mapCfg, err = mapping.LoadConfig(cfg.Zotero.MappingFile); err != nil {
			return nil, err
		}
	}
	mapper, err := mapping.New(mapCfg)
	if err != nil {
		return nil, err
	}

	library := zotero.NewClient(creds, cfg.Zotero)
	deps := collect.Deps{Library: library, Mapper: mapper}

	if cfg.Collect.DownloadPDFs {
		pdfs, err := pdf.NewManager(cfg.PDF)
		if err != nil {
			return nil, err
		}
		deps.PDFs = pdfs
	}

	if cfg.Summary.Enabled {
		if err := addSummarizer(ctx, &deps, cfg, creds, w); err != nil {
			return nil, err
		}
	}

	if cfg.Archive.S3Bucket != "" {
		arch, err := archive.NewS3(ctx, cfg.Archive)
		if err != nil {
			return nil, err
		}
		deps.Archive = arch
		fmt.Fprintf(w, "Archiving PDFs to s3://%s/%s\n", cfg.Archive.S3Bucket, strings.Trim(cfg.Archive.S3Prefix, "/"))
	}

	opts := collect.Options{Log: w}
	if cfg.LedgerPath != "" {
		l, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, l)
		opts.Recorder = l
	}

	if err := library.ValidateCollection(ctx); err != nil {
		return nil, err
	}

	if cfg.Cache.RedisAddr != "" {
		cache, err := seen.Open(ctx, cfg.Cache)
		if err != nil {
			fmt.Fprintf(w, "warning: seen cache disabled: %v\n", err)
		} else {
			deps.Seen = cache
			a.closers = append(a.closers, cache)
		}
	}

	proc, err := collect.NewProcessor(deps, cfg.Zotero, w)
	if err != nil {
		return nil, err
	}

	a.collector = collect.New(search.NewClient(cfg.Search, w), proc, opts)
	ok = true
	return a, nil
}

// addSummarizer enables summaries. A missing API key disables them with a
// warning; any other setup problem is an error.
func addSummarizer(ctx context.Context, deps *collect.Deps, cfg types.Config, creds types.Credentials, w io.Writer) error {
	sc := cfg.Summary
	sc.APIKey = creds.SummaryAPIKey
	if sc.APIKey == "" {
		fmt.Fprintf(w, "warning: summaries disabled: no %s API key (set %s)\n", sc.Backend, summaryKeyEnv(sc.Backend))
		return nil
	}
	backend, err := summarize.NewBackend(sc)
	if err != nil {
		return err
	}
	s, err := summarize.New(backend, sc)
	if err != nil {
		return err
	}
	deps.Summarizer = s

	if sc.PDFText && cfg.Collect.DownloadPDFs {
		ex, err := pdftext.New(ctx, sc.PDFTextImage)
		if err != nil {
			fmt.Fprintf(w, "warning: PDF text extraction disabled: %v\n", err)
		} else {
			deps.Text = ex
			fmt.Fprintf(w, "Extracting PDF text with %s\n", ex.Source())
		}
	}
	if sc.FullText {
		deps.FullText = summarize.NewFullText(cfg.Search.HTTPConfig)
	}
	fmt.Fprintf(w, "Summaries enabled (%s)\n", s.Backend())
	return nil
}

func summaryKeyEnv(b types.SummaryBackend) string {
	if b == types.BackendCohere {
		return secrets.EnvCohereKey
	}
	return secrets.EnvAnthropicKey
}

// printRun writes the per-paper detail of a finished run.
func printRun(w io.Writer, s types.RunSummary) {
	for _, o := range s.Outcomes {
		switch {
		case o.Status == types.StatusFailed:
			fmt.Fprintf(w, "  FAILED   %-16s %s\n", o.PaperID, o.Reason)
		case o.Degraded():
			fmt.Fprintf(w, "  DEGRADED %-16s %s\n", o.PaperID, strings.Join(o.Notes, "; "))
		}
	}
	fmt.Fprintf(w, "Run %s: %d successful, %d skipped, %d failed\n", s.RunID, s.Successful, s.Skipped, s.Failed)
}

// runError turns a finished run into the command's exit status.
func runError(s types.RunSummary) error {
	if s.HasFailures() {
		return fmt.Errorf("%d of %d paper(s) failed", s.Failed, s.Total())
	}
	return nil
}
