// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/arxiv-zotero/internal/search"
	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	setDefaults()
	t.Cleanup(viper.Reset)
}

func TestLoadConfigDefaults(t *testing.T) {
	resetViper(t)
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Search.RequestDelay)
	assert.Equal(t, "preprint", cfg.Zotero.TemplateType)
	assert.Equal(t, types.BackendClaude, cfg.Summary.Backend)
	assert.Equal(t, 3, cfg.Collect.Concurrency)
	assert.True(t, cfg.Collect.DownloadPDFs)
	assert.Equal(t, "arxiv_zotero.log", cfg.LogFile)
	assert.Equal(t, "arxiv-zotero/"+version, cfg.Zotero.UserAgent)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	resetViper(t)
	viper.Set("summary.backend", "gpt")
	_, err := loadConfig()
	assert.ErrorIs(t, err, types.ErrConfiguration)

	resetViper(t)
	viper.Set("zotero.library_type", "team")
	_, err = loadConfig()
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestSearchParamsFromFlags(t *testing.T) {
	resetViper(t)
	cmd := &cobra.Command{}
	addCollectFlags(cmd)
	require.NoError(t, cmd.Flags().Set("keywords", "quantum computing,qubits"))
	require.NoError(t, cmd.Flags().Set("categories", "quant-ph"))
	require.NoError(t, cmd.Flags().Set("start-date", "2024-01-01"))
	require.NoError(t, cmd.Flags().Set("max-results", "3"))
	require.NoError(t, bindFlags(cmd))

	p, err := searchParams(cmd)
	require.NoError(t, err)
	assert.Equal(t, []string{"quantum computing", "qubits"}, p.Keywords)
	assert.Equal(t, []string{"quant-ph"}, p.Categories)
	assert.Equal(t, 3, p.MaxResults)
	assert.Equal(t, 2024, p.StartDate.Year())
	assert.Equal(t, types.ContentAny, p.ContentType)
}

func TestSearchParamsRequiresFilter(t *testing.T) {
	resetViper(t)
	cmd := &cobra.Command{}
	addSearchFlags(cmd)
	require.NoError(t, bindFlags(cmd))

	_, err := searchParams(cmd)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	require.NoError(t, cmd.Flags().Set("all", "true"))
	_, err = searchParams(cmd)
	assert.NoError(t, err)
}

func TestSearchParamsFromQueryFile(t *testing.T) {
	resetViper(t)
	path := filepath.Join(t.TempDir(), "query.yaml")
	saved := search.Params{Author: "Lovelace", Categories: []string{"cs.AI"}, MaxResults: 7}
	require.NoError(t, search.WriteQueryFile(path, saved, nil))

	cmd := &cobra.Command{}
	addSearchFlags(cmd)
	require.NoError(t, cmd.Flags().Set("query-file", path))
	require.NoError(t, cmd.Flags().Set("title", "ignored"))
	require.NoError(t, bindFlags(cmd))

	p, err := searchParams(cmd)
	require.NoError(t, err)
	assert.Equal(t, "Lovelace", p.Author)
	assert.Empty(t, p.Title)
	assert.Equal(t, 7, p.MaxResults)
}

func TestPrintRunAndExitStatus(t *testing.T) {
	s := types.RunSummary{
		RunID:      "abc",
		Successful: 1,
		Failed:     1,
		Outcomes: []types.Outcome{
			{PaperID: "2401.00001", Status: types.StatusSuccess, PDF: types.StepFailed, Notes: []string{"pdf: HTTP 404"}},
			{PaperID: "2401.00002", Status: types.StatusFailed, Reason: "mapping error: url"},
		},
	}
	var buf bytes.Buffer
	printRun(&buf, s)
	assert.Contains(t, buf.String(), "DEGRADED 2401.00001")
	assert.Contains(t, buf.String(), "FAILED   2401.00002")
	assert.Contains(t, buf.String(), "1 successful, 0 skipped, 1 failed")

	assert.EqualError(t, runError(s), "1 of 2 paper(s) failed")
	assert.NoError(t, runError(types.RunSummary{Successful: 2}))
}
