// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "state", "arxiv-zotero.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func recordRun(t *testing.T, l *Ledger, id string, started time.Time, outcomes ...types.Outcome) types.RunSummary {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, l.BeginRun(ctx, id, "all:quantum", started))

	s := types.RunSummary{RunID: id, Query: "all:quantum", StartedAt: started, FinishedAt: started.Add(time.Minute)}
	// Record in reverse to check that positions, not insert order, decide.
	for i := len(outcomes) - 1; i >= 0; i-- {
		require.NoError(t, l.Record(ctx, id, i, outcomes[i]))
		switch outcomes[i].Status {
		case types.StatusSuccess:
			s.Successful++
		case types.StatusSkippedDuplicate:
			s.Skipped++
		case types.StatusFailed:
			s.Failed++
		}
	}
	require.NoError(t, l.FinishRun(ctx, s))
	return s
}

func sampleOutcomes() []types.Outcome {
	return []types.Outcome{
		{PaperID: "2401.00001", Title: "A", Status: types.StatusSuccess, State: types.StateDone, ItemKey: "K1",
			PDF: types.StepAttached, Summary: types.StepNotRequested, Duration: 1500 * time.Millisecond},
		{PaperID: "2401.00002", Title: "B", Status: types.StatusSkippedDuplicate, ItemKey: "K0",
			PDF: types.StepNotRequested, Summary: types.StepNotRequested},
		{PaperID: "2401.00003", Title: "C", Status: types.StatusSuccess, State: types.StateDone, ItemKey: "K2",
			PDF: types.StepFailed, Summary: types.StepFailed,
			Notes: []string{"pdf: download error: HTTP 404", "summary: summarization error: HTTP 401"}},
		{PaperID: "2401.00004", Title: "D", Status: types.StatusFailed, State: types.StateDuplicateChecked,
			Reason: "mapping error: required field url has no value"},
	}
}

func TestOpenCreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "log.db")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)

	// Reopening an existing ledger keeps the schema.
	l2, err := Open(path)
	require.NoError(t, err)
	l2.Close()
}

func TestRunRoundTrip(t *testing.T) {
	l := testLedger(t)
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	want := recordRun(t, l, "0b6e8c1e9f1a4a52a1f0c3d2e4b5a6c7", started, sampleOutcomes()...)

	got, err := l.Run(context.Background(), "0b6e8c1e")
	require.NoError(t, err, "unique prefix resolves")
	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, "all:quantum", got.Query)
	assert.True(t, started.Equal(got.StartedAt))
	assert.True(t, want.FinishedAt.Equal(got.FinishedAt))
	assert.Equal(t, 2, got.Successful)
	assert.Equal(t, 1, got.Skipped)
	assert.Equal(t, 1, got.Failed)

	require.Len(t, got.Outcomes, 4)
	for i, o := range got.Outcomes {
		assert.Equal(t, sampleOutcomes()[i].PaperID, o.PaperID, "search order kept")
	}
	assert.Equal(t, types.StepAttached, got.Outcomes[0].PDF)
	assert.Equal(t, 1500*time.Millisecond, got.Outcomes[0].Duration)
	assert.Equal(t, "K0", got.Outcomes[1].ItemKey)
	assert.Len(t, got.Outcomes[2].Notes, 2)
	assert.True(t, got.Outcomes[2].Degraded())
	assert.Contains(t, got.Outcomes[3].Reason, "mapping error")
}

func TestRunsNewestFirst(t *testing.T) {
	l := testLedger(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	recordRun(t, l, "run-a", base)
	recordRun(t, l, "run-b", base.Add(time.Hour))
	recordRun(t, l, "run-c", base.Add(2*time.Hour))

	runs, err := l.Runs(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-c", runs[0].RunID)
	assert.Equal(t, "run-b", runs[1].RunID)
	assert.Empty(t, runs[0].Outcomes)

	all, err := l.Runs(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRunLookupErrors(t *testing.T) {
	l := testLedger(t)
	base := time.Now()
	recordRun(t, l, "abc-1", base)
	recordRun(t, l, "abc-2", base)

	_, err := l.Run(context.Background(), "zzz")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = l.Run(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	got, err := l.Run(context.Background(), "abc-2")
	require.NoError(t, err)
	assert.Equal(t, "abc-2", got.RunID)
}

func TestUnfinishedRun(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()
	require.NoError(t, l.BeginRun(ctx, "interrupted", "all:x", time.Now()))

	got, err := l.Run(ctx, "interrupted")
	require.NoError(t, err)
	assert.True(t, got.FinishedAt.IsZero())

	err = l.FinishRun(ctx, types.RunSummary{RunID: "never-started", FinishedAt: time.Now()})
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRecordReplacesPosition(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()
	require.NoError(t, l.BeginRun(ctx, "r", "q", time.Now()))
	require.NoError(t, l.Record(ctx, "r", 0, types.Outcome{PaperID: "1", Status: types.StatusFailed, Reason: "run cancelled"}))
	require.NoError(t, l.Record(ctx, "r", 0, types.Outcome{PaperID: "1", Status: types.StatusSuccess}))

	out, err := l.Outcomes(ctx, "r")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, types.StatusSuccess, out[0].Status)
}

func TestExportYAML(t *testing.T) {
	l := testLedger(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	recordRun(t, l, "first", base, sampleOutcomes()[:2]...)
	recordRun(t, l, "second", base.Add(time.Hour), sampleOutcomes()[2:]...)

	var buf bytes.Buffer
	require.NoError(t, l.ExportYAML(context.Background(), &buf, ""))

	var runs []types.RunSummary
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, "second", runs[0].RunID)
	require.Len(t, runs[0].Outcomes, 2)
	assert.Equal(t, "2401.00003", runs[0].Outcomes[0].PaperID)
	assert.Equal(t, types.StatusSkippedDuplicate, runs[1].Outcomes[1].Status)

	buf.Reset()
	require.NoError(t, l.ExportYAML(context.Background(), &buf, "first"))
	runs = nil
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "first", runs[0].RunID)
}
