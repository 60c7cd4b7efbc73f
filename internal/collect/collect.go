// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package collect runs a collection: one arXiv search, then each result
// through the per-paper state machine under a concurrency cap, with every
// outcome aggregated in one place.
package collect

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/arxiv-zotero/internal/search"
	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

// DefaultConcurrency is the number of papers processed at once when the
// caller gives no limit.
const DefaultConcurrency = 3

// Searcher discovers papers.
type Searcher interface {
	Search(ctx context.Context, p search.Params) ([]types.Paper, error)
}

// PaperProcessor turns one paper into one outcome.
type PaperProcessor interface {
	Process(ctx context.Context, paper types.Paper, downloadPDFs bool) types.Outcome
}

// Recorder persists runs as they progress.
type Recorder interface {
	BeginRun(ctx context.Context, runID, query string, started time.Time) error
	Record(ctx context.Context, runID string, position int, o types.Outcome) error
	FinishRun(ctx context.Context, s types.RunSummary) error
}

// Options configures a Collector.
type Options struct {
	// Recorder, when set, receives the run and every outcome.
	Recorder Recorder

	// Log receives progress lines. Nil discards them.
	Log io.Writer
}

// Collector orchestrates collection runs.
type Collector struct {
	searcher  Searcher
	processor PaperProcessor
	recorder  Recorder
	w         io.Writer
}

// New returns a Collector.
func New(searcher Searcher, processor PaperProcessor, opts Options) *Collector {
	return &Collector{
		searcher:  searcher,
		processor: processor,
		recorder:  opts.Recorder,
		w:         syncWriter(opts.Log),
	}
}

type indexedOutcome struct {
	position int
	outcome  types.Outcome
}

// Run searches once and processes every result with at most concurrency
// papers in flight. Each paper yields exactly one outcome, in search order
// in the returned summary. Only configuration and search errors are
// returned; per-paper failures live in the outcomes. When ctx is cancelled,
// papers not yet started are recorded as failed with "run cancelled" and
// papers already started finish their current step sequence.
func (c *Collector) Run(ctx context.Context, params search.Params, downloadPDFs bool, concurrency int) (types.RunSummary, error) {
	query, err := params.BuildQuery()
	if err != nil {
		return types.RunSummary{}, err
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	summary := types.RunSummary{
		RunID:     strings.ReplaceAll(uuid.NewString(), "-", ""),
		Query:     query,
		StartedAt: time.Now().UTC(),
	}

	fmt.Fprintf(c.w, "Searching arXiv: %s\n", query)
	papers, err := c.searcher.Search(ctx, params)
	if err != nil {
		return summary, fmt.Errorf("searching arXiv: %w", err)
	}
	fmt.Fprintf(c.w, "Found %d paper(s); processing with concurrency %d (run %s)\n",
		len(papers), concurrency, summary.RunID)

	// The ledger must see the run even if the caller's context is cancelled.
	recordCtx := context.WithoutCancel(ctx)
	if c.recorder != nil {
		if err := c.recorder.BeginRun(recordCtx, summary.RunID, query, summary.StartedAt); err != nil {
			fmt.Fprintf(c.w, "  warning: ledger: %v\n", err)
		}
	}

	results := make(chan indexedOutcome)
	go func() {
		var g errgroup.Group
		g.SetLimit(concurrency)
		for i, paper := range papers {
			if ctx.Err() != nil {
				results <- indexedOutcome{i, cancelled(paper)}
				continue
			}
			g.Go(func() error {
				results <- indexedOutcome{i, c.processor.Process(ctx, paper, downloadPDFs)}
				return nil
			})
		}
		g.Wait()
		close(results)
	}()

	// Single aggregation point: only this loop touches the counters.
	summary.Outcomes = make([]types.Outcome, len(papers))
	for r := range results {
		summary.Outcomes[r.position] = r.outcome
		switch r.outcome.Status {
		case types.StatusSuccess:
			summary.Successful++
		case types.StatusSkippedDuplicate:
			summary.Skipped++
		default:
			summary.Failed++
		}
		if c.recorder != nil {
			if err := c.recorder.Record(recordCtx, summary.RunID, r.position, r.outcome); err != nil {
				fmt.Fprintf(c.w, "  warning: ledger: %v\n", err)
			}
		}
	}
	summary.FinishedAt = time.Now().UTC()

	if c.recorder != nil {
		if err := c.recorder.FinishRun(recordCtx, summary); err != nil {
			fmt.Fprintf(c.w, "  warning: ledger: %v\n", err)
		}
	}

	fmt.Fprintf(c.w, "\nDone: %d created, %d skipped (duplicates), %d failed of %d in %s\n",
		summary.Successful, summary.Skipped, summary.Failed, len(papers),
		summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	return summary, nil
}

func cancelled(p types.Paper) types.Outcome {
	return types.Outcome{
		PaperID: p.ID,
		Title:   p.Title,
		Status:  types.StatusFailed,
		State:   types.StateStart,
		Reason:  cancelledReason,
		PDF:     types.StepNotRequested,
		Summary: types.StepNotRequested,
	}
}

// lockedWriter serializes writes from concurrent paper tasks.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func syncWriter(w io.Writer) io.Writer {
	switch w := w.(type) {
	case nil:
		return io.Discard
	case *lockedWriter:
		return w
	default:
		return &lockedWriter{w: w}
	}
}
