// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger keeps the operation log of collection runs in SQLite: one
// row per run with its tally and one row per paper outcome. The history
// command reads it back and exports it as YAML.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

// ErrRunNotFound is returned when no run matches an ID or prefix.
var ErrRunNotFound = errors.New("run not found")

// Ledger is the SQLite-backed run log. Safe for concurrent use.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger database at path and its schema.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	l := &Ledger{db: db}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return l, nil
}

// Close releases the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			successful INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS outcomes (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			paper_id TEXT NOT NULL,
			title TEXT,
			status TEXT NOT NULL,
			state TEXT,
			item_key TEXT,
			reason TEXT,
			pdf TEXT,
			summary TEXT,
			notes TEXT,
			duration_ms INTEGER,
			PRIMARY KEY (run_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_paper_id ON outcomes(paper_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}
	for _, stmt := range statements {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// BeginRun records the start of a run.
func (l *Ledger) BeginRun(ctx context.Context, runID, query string, started time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, query, started_at) VALUES (?, ?, ?)`,
		runID, query, started.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", runID, err)
	}
	return nil
}

// Record stores the outcome of the paper at position in the run's search
// results. Recording the same position twice keeps the later outcome.
func (l *Ledger) Record(ctx context.Context, runID string, position int, o types.Outcome) error {
	var notes []byte
	if len(o.Notes) > 0 {
		notes, _ = json.Marshal(o.Notes)
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO outcomes
			(run_id, position, paper_id, title, status, state, item_key, reason, pdf, summary, notes, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, position, o.PaperID, o.Title, string(o.Status), o.State.String(),
		o.ItemKey, o.Reason, string(o.PDF), string(o.Summary), string(notes), o.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("recording outcome of %s: %w", o.PaperID, err)
	}
	return nil
}

// FinishRun stores the final tally and finish time of a run.
func (l *Ledger) FinishRun(ctx context.Context, s types.RunSummary) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, successful = ?, skipped = ?, failed = ? WHERE id = ?`,
		s.FinishedAt.UTC().Format(time.RFC3339Nano), s.Successful, s.Skipped, s.Failed, s.RunID,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", s.RunID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing run %s: %w", s.RunID, ErrRunNotFound)
	}
	return nil
}

const runColumns = `id, query, started_at, COALESCE(finished_at, ''), successful, skipped, failed`

func scanRun(row interface{ Scan(...any) error }) (types.RunSummary, error) {
	var (
		r                 types.RunSummary
		started, finished string
	)
	if err := row.Scan(&r.RunID, &r.Query, &started, &finished, &r.Successful, &r.Skipped, &r.Failed); err != nil {
		return types.RunSummary{}, err
	}
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished != "" {
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	}
	return r, nil
}

// Runs lists the most recent runs first, without outcomes. limit <= 0
// returns every run.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]types.RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []types.RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run returns one run with its outcomes. id may be a unique prefix.
func (l *Ledger) Run(ctx context.Context, id string) (types.RunSummary, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? || '%' ORDER BY id = ? DESC LIMIT 2`,
		id, id, id)
	if err != nil {
		return types.RunSummary{}, fmt.Errorf("looking up run %s: %w", id, err)
	}
	var matches []types.RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return types.RunSummary{}, fmt.Errorf("scanning run: %w", err)
		}
		matches = append(matches, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return types.RunSummary{}, err
	}

	switch {
	case len(matches) == 0:
		return types.RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case len(matches) > 1 && matches[0].RunID != id:
		return types.RunSummary{}, fmt.Errorf("run prefix %s is ambiguous", id)
	}

	run := matches[0]
	run.Outcomes, err = l.Outcomes(ctx, run.RunID)
	if err != nil {
		return types.RunSummary{}, err
	}
	return run, nil
}

// Outcomes returns a run's outcomes in search-result order.
func (l *Ledger) Outcomes(ctx context.Context, runID string) ([]types.Outcome, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT paper_id, COALESCE(title, ''), status, COALESCE(item_key, ''), COALESCE(reason, ''),
			COALESCE(pdf, ''), COALESCE(summary, ''), COALESCE(notes, ''), COALESCE(duration_ms, 0)
		 FROM outcomes WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing outcomes of %s: %w", runID, err)
	}
	defer rows.Close()

	var out []types.Outcome
	for rows.Next() {
		var (
			o                 types.Outcome
			status, pdf, summ string
			notes             string
			durationMS        int64
		)
		if err := rows.Scan(&o.PaperID, &o.Title, &status, &o.ItemKey, &o.Reason, &pdf, &summ, &notes, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		o.Status = types.Status(status)
		o.PDF = types.StepStatus(pdf)
		o.Summary = types.StepStatus(summ)
		o.Duration = time.Duration(durationMS) * time.Millisecond
		if notes != "" {
			json.Unmarshal([]byte(notes), &o.Notes)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ExportYAML writes runs with their outcomes as a YAML list, newest first.
// A non-empty runID exports only that run.
func (l *Ledger) ExportYAML(ctx context.Context, w io.Writer, runID string) error {
	var runs []types.RunSummary
	if runID != "" {
		r, err := l.Run(ctx, runID)
		if err != nil {
			return err
		}
		runs = append(runs, r)
	} else {
		all, err := l.Runs(ctx, 0)
		if err != nil {
			return err
		}
		for _, r := range all {
			r.Outcomes, err = l.Outcomes(ctx, r.RunID)
			if err != nil {
				return err
			}
			runs = append(runs, r)
		}
	}

	data, err := yaml.Marshal(runs)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	_, err = w.Write(data)
	return err
}
