// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package collect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/arxiv-zotero/internal/httputil"
	"github.com/pdiddy/arxiv-zotero/internal/ledger"
	"github.com/pdiddy/arxiv-zotero/internal/mapping"
	"github.com/pdiddy/arxiv-zotero/internal/pdf"
	"github.com/pdiddy/arxiv-zotero/internal/search"
	"github.com/pdiddy/arxiv-zotero/internal/summarize"
	"github.com/pdiddy/arxiv-zotero/internal/zotero"
	"github.com/pdiddy/arxiv-zotero/internal/zotero/zoterotest"
	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

var quantumParams = search.Params{Keywords: []string{"quantum computing"}, MaxResults: 3}

// fakeSearcher returns a fixed result list.
type fakeSearcher struct {
	papers []types.Paper
	err    error
	calls  int32
}

func (f *fakeSearcher) Search(_ context.Context, p search.Params) ([]types.Paper, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	papers := f.papers
	if len(papers) > p.Limit() {
		papers = papers[:p.Limit()]
	}
	return papers, nil
}

type fakeSummarizer struct {
	reply string
	err   error
	calls int32
}

func (f *fakeSummarizer) Summarize(_ context.Context, _, text string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeSummarizer) Backend() string { return "fake" }

func paper(n int, pdfBase string) types.Paper {
	id := fmt.Sprintf("2401.%05d", n)
	p := types.Paper{
		ID:              id,
		Version:         "v1",
		Title:           fmt.Sprintf("Quantum Computing Result %d", n),
		Authors:         []string{"Ada Lovelace", "Alan Turing"},
		Abstract:        "We study quantum computing.",
		PrimaryCategory: "quant-ph",
		Categories:      []string{"quant-ph", "cs.ET"},
		Published:       time.Date(2024, 1, n, 12, 0, 0, 0, time.UTC),
		AbsURL:          "https://arxiv.org/abs/" + id + "v1",
	}
	if pdfBase != "" {
		p.PDFURL = pdfBase + "/pdf/" + id
	}
	return p
}

func papers(n int, pdfBase string) []types.Paper {
	out := make([]types.Paper, n)
	for i := range out {
		out[i] = paper(i+1, pdfBase)
	}
	return out
}

// pdfServer serves a small PDF for every ID except those listed as missing.
func pdfServer(t *testing.T, missing ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/pdf/")
		for _, m := range missing {
			if m == id {
				http.NotFound(w, r)
				return
			}
		}
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprintf(w, "%%PDF-1.4\n%% %s\n%%%%EOF\n", id)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type fixture struct {
	srv     *zoterotest.Server
	library *zotero.Client
	deps    Deps
	log     *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := zoterotest.NewServer("4242")
	t.Cleanup(srv.Close)
	t.Cleanup(zotero.SetBaseURL(srv.URL))

	lib := zotero.NewClient(types.Credentials{LibraryID: srv.LibraryID, APIKey: zoterotest.APIKey},
		types.ZoteroConfig{MaxRetries: 2})
	m, err := mapping.New(mapping.DefaultConfig())
	require.NoError(t, err)
	pdfs, err := pdf.NewManager(types.PDFConfig{Dir: t.TempDir(), MaxRetries: 2})
	require.NoError(t, err)

	return &fixture{
		srv:     srv,
		library: lib,
		deps:    Deps{Library: lib, Mapper: m, PDFs: pdfs},
		log:     &bytes.Buffer{},
	}
}

func (f *fixture) collector(t *testing.T, found []types.Paper, opts Options) *Collector {
	t.Helper()
	proc, err := NewProcessor(f.deps, types.ZoteroConfig{}, f.log)
	require.NoError(t, err)
	if opts.Log == nil {
		opts.Log = f.log
	}
	return New(&fakeSearcher{papers: found}, proc, opts)
}

func TestCollectWithoutPDFs(t *testing.T) {
	f := newFixture(t)
	c := f.collector(t, papers(5, ""), Options{})

	summary, err := c.Run(context.Background(), quantumParams, false, 3)
	require.NoError(t, err)

	successful, failed := summary.Tally()
	assert.Equal(t, 3, successful)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 3, summary.Total())
	assert.Len(t, summary.RunID, 32)
	assert.Contains(t, summary.Query, `all:"quantum computing"`)

	items := f.srv.TopLevel()
	require.Len(t, items, 3)
	for _, it := range items {
		assert.Equal(t, "preprint", it.Data["itemType"])
		assert.Empty(t, f.srv.Children(it.Key), "no PDF children")
	}

	require.Len(t, summary.Outcomes, 3)
	for i, o := range summary.Outcomes {
		assert.Equal(t, fmt.Sprintf("2401.%05d", i+1), o.PaperID, "outcomes keep search order")
		assert.Equal(t, types.StatusSuccess, o.Status)
		assert.Equal(t, types.StateDone, o.State)
		assert.Equal(t, types.StepNotRequested, o.PDF)
		assert.NotEmpty(t, o.ItemKey)
		assert.False(t, o.Degraded())
	}
	assert.Contains(t, f.log.String(), "created: 2401.00001")
	assert.Contains(t, f.log.String(), "Done: 3 created, 0 skipped")
}

func TestCollectSkipsDOIDuplicate(t *testing.T) {
	f := newFixture(t)
	existing := f.srv.AddItem(map[string]any{
		"itemType": "journalArticle",
		"title":    "Published version",
		"DOI":      "10.1103/PhysRevLett.132.010001",
	})

	found := papers(3, "")
	found[1].DOI = "10.1103/PhysRevLett.132.010001"
	c := f.collector(t, found, Options{})

	summary, err := c.Run(context.Background(), quantumParams, false, 3)
	require.NoError(t, err)

	successful, failed := summary.Tally()
	assert.Equal(t, 2, successful)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 1, summary.Skipped)

	dup := summary.Outcomes[1]
	assert.Equal(t, types.StatusSkippedDuplicate, dup.Status)
	assert.Equal(t, existing, dup.ItemKey)
	assert.Equal(t, types.StateDuplicateChecked, dup.State)
	assert.Len(t, f.srv.TopLevel(), 3, "existing item plus two new ones")
	assert.Contains(t, f.log.String(), "skipped: 2401.00002")
}

func TestSecondRunCreatesNothing(t *testing.T) {
	f := newFixture(t)
	pdfSrv := pdfServer(t)
	c := f.collector(t, papers(3, pdfSrv.URL), Options{})

	first, err := c.Run(context.Background(), quantumParams, true, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Successful)
	creates := f.srv.CreateRequests()
	itemCount := len(f.srv.TopLevel())

	second, err := c.Run(context.Background(), quantumParams, true, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Successful)
	assert.Equal(t, 3, second.Skipped)
	assert.Equal(t, 0, second.Failed)
	assert.Equal(t, creates, f.srv.CreateRequests(), "no writes on the second run")
	assert.Len(t, f.srv.TopLevel(), itemCount)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestPDFFailureDegradesPaper(t *testing.T) {
	f := newFixture(t)
	pdfSrv := pdfServer(t, "2401.00002")
	c := f.collector(t, papers(2, pdfSrv.URL), Options{})

	summary, err := c.Run(context.Background(), quantumParams, true, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Successful)
	assert.Equal(t, 0, summary.Failed)

	ok, broken := summary.Outcomes[0], summary.Outcomes[1]
	assert.Equal(t, types.StepAttached, ok.PDF)
	assert.False(t, ok.Degraded())
	children := f.srv.Children(ok.ItemKey)
	require.Len(t, children, 1)
	assert.Equal(t, "attachment", children[0].Data["itemType"])
	stored, found := f.srv.File(children[0].Key)
	require.True(t, found)
	assert.True(t, bytes.HasPrefix(stored, []byte("%PDF-")))

	assert.Equal(t, types.StatusSuccess, broken.Status, "a missing PDF never fails the paper")
	assert.Equal(t, types.StepFailed, broken.PDF)
	assert.True(t, broken.Degraded())
	require.NotEmpty(t, broken.Notes)
	assert.Contains(t, broken.Notes[0], "pdf:")
	assert.Contains(t, broken.Notes[0], "404")
	assert.Empty(t, f.srv.Children(broken.ItemKey))
	assert.Contains(t, f.log.String(), "[no PDF]")
}

func TestPaperWithoutPDFURL(t *testing.T) {
	f := newFixture(t)
	c := f.collector(t, papers(1, ""), Options{})

	summary, err := c.Run(context.Background(), quantumParams, true, 1)
	require.NoError(t, err)
	o := summary.Outcomes[0]
	assert.Equal(t, types.StatusSuccess, o.Status)
	assert.Equal(t, types.StepSkipped, o.PDF)
	assert.False(t, o.Degraded())
}

// redirect sends every request to target, whatever its original host.
type redirect struct{ target *url.URL }

func (r redirect) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = r.target.Scheme
	out.URL.Host = r.target.Host
	out.Host = r.target.Host
	return http.DefaultTransport.RoundTrip(out)
}

func TestInvalidSummarizerKeyStillIngests(t *testing.T) {
	var calls int32
	claude := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer claude.Close()
	target, err := url.Parse(claude.URL)
	require.NoError(t, err)

	s, err := summarize.New(&summarize.ClaudeBackend{
		APIKey: "sk-invalid",
		Client: &http.Client{Transport: redirect{target}},
	}, types.SummaryConfig{Enabled: true, AIConfig: types.AIConfig{MaxRetries: 3}})
	require.NoError(t, err)

	f := newFixture(t)
	f.deps.Summarizer = s
	c := f.collector(t, papers(3, ""), Options{})

	summary, err := c.Run(context.Background(), quantumParams, false, 3)
	require.NoError(t, err)

	successful, failed := summary.Tally()
	assert.Equal(t, 3, successful)
	assert.Equal(t, 0, failed)
	for _, o := range summary.Outcomes {
		assert.Equal(t, types.StatusSuccess, o.Status)
		assert.Equal(t, types.StepFailed, o.Summary)
		assert.Equal(t, types.StateDone, o.State)
		require.NotEmpty(t, o.Notes)
		assert.Contains(t, o.Notes[len(o.Notes)-1], "summary:")
		assert.Contains(t, o.Notes[len(o.Notes)-1], "401")
		assert.Empty(t, f.srv.Children(o.ItemKey), "no note written")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "a rejected key is not retried")
	assert.NotContains(t, f.log.String(), "sk-invalid")
}

func TestSummaryNoteAttached(t *testing.T) {
	f := newFixture(t)
	sum := &fakeSummarizer{reply: "Qubits & gates.\n\nSecond paragraph."}
	f.deps.Summarizer = sum
	c := f.collector(t, papers(1, ""), Options{})

	summary, err := c.Run(context.Background(), quantumParams, false, 1)
	require.NoError(t, err)
	o := summary.Outcomes[0]
	assert.Equal(t, types.StepAttached, o.Summary)

	children := f.srv.Children(o.ItemKey)
	require.Len(t, children, 1)
	assert.Equal(t, "note", children[0].Data["itemType"])
	note, _ := children[0].Data["note"].(string)
	assert.Contains(t, note, "<h2>AI Summary</h2>")
	assert.Contains(t, note, "Qubits &amp; gates.")
	assert.Contains(t, note, "Generated by fake")
}

func TestMappingErrorFailsOnlyThatPaper(t *testing.T) {
	f := newFixture(t)
	found := papers(3, "")
	found[0].AbsURL = ""
	c := f.collector(t, found, Options{})

	summary, err := c.Run(context.Background(), quantumParams, false, 3)
	require.NoError(t, err)
	successful, failed := summary.Tally()
	assert.Equal(t, 2, successful)
	assert.Equal(t, 1, failed)

	o := summary.Outcomes[0]
	assert.Equal(t, types.StatusFailed, o.Status)
	assert.Contains(t, o.Reason, "mapping error")
	assert.Empty(t, o.ItemKey)
	assert.Len(t, f.srv.TopLevel(), 2)
	assert.True(t, summary.HasFailures())
}

func TestLibraryRejectionFailsPaper(t *testing.T) {
	f := newFixture(t)
	f.srv.FailCreates = http.StatusBadRequest
	c := f.collector(t, papers(2, ""), Options{})

	summary, err := c.Run(context.Background(), quantumParams, false, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
	for _, o := range summary.Outcomes {
		assert.Equal(t, types.StateDuplicateChecked, o.State)
		assert.Contains(t, o.Reason, "library write error")
	}
}

func TestJournalTemplateByContent(t *testing.T) {
	f := newFixture(t)
	found := papers(2, "")
	found[0].JournalRef = "Phys. Rev. Lett. 132, 010001 (2024)"
	proc, err := NewProcessor(f.deps, types.ZoteroConfig{TemplateByContent: true}, f.log)
	require.NoError(t, err)

	summary, err := New(&fakeSearcher{papers: found}, proc, Options{}).Run(context.Background(), quantumParams, false, 1)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Successful)

	items := f.srv.TopLevel()
	require.Len(t, items, 2)
	byTitle := map[string]map[string]any{}
	for _, it := range items {
		byTitle[it.Data["title"].(string)] = it.Data
	}
	journal := byTitle[found[0].Title]
	assert.Equal(t, "journalArticle", journal["itemType"])
	assert.Equal(t, found[0].JournalRef, journal["publicationTitle"])
	assert.Equal(t, "preprint", byTitle[found[1].Title]["itemType"])
}

func TestConcurrencyCapAgainstLibrary(t *testing.T) {
	f := newFixture(t)
	f.srv.Latency = 20 * time.Millisecond
	c := f.collector(t, papers(8, ""), Options{})

	params := quantumParams
	params.MaxResults = 8
	summary, err := c.Run(context.Background(), params, false, 2)
	require.NoError(t, err)
	assert.Equal(t, 8, summary.Successful)
	assert.LessOrEqual(t, f.srv.PeakInFlight(), 2)
	assert.GreaterOrEqual(t, f.srv.PeakInFlight(), 1)
}

// countingProcessor tracks how many Process calls overlap.
type countingProcessor struct {
	inFlight int32
	peak     int32
	hold     time.Duration
}

func (p *countingProcessor) Process(_ context.Context, paper types.Paper, _ bool) types.Outcome {
	n := atomic.AddInt32(&p.inFlight, 1)
	for {
		peak := atomic.LoadInt32(&p.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&p.peak, peak, n) {
			break
		}
	}
	time.Sleep(p.hold)
	atomic.AddInt32(&p.inFlight, -1)
	return types.Outcome{PaperID: paper.ID, Status: types.StatusSuccess}
}

func TestConcurrencyLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int32
	}{
		{"explicit", 4, 4},
		{"default", 0, DefaultConcurrency},
		{"serial", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &countingProcessor{hold: 30 * time.Millisecond}
			params := quantumParams
			params.MaxResults = 12
			c := New(&fakeSearcher{papers: papers(12, "")}, proc, Options{})

			summary, err := c.Run(context.Background(), params, false, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, 12, summary.Successful)
			assert.LessOrEqual(t, atomic.LoadInt32(&proc.peak), tt.want)
			assert.GreaterOrEqual(t, atomic.LoadInt32(&proc.peak), int32(1))
		})
	}
}

func TestRunRejectsEmptyParams(t *testing.T) {
	s := &fakeSearcher{papers: papers(1, "")}
	c := New(s, &countingProcessor{}, Options{})
	_, err := c.Run(context.Background(), search.Params{}, false, 1)
	assert.ErrorIs(t, err, types.ErrConfiguration)
	assert.Zero(t, atomic.LoadInt32(&s.calls), "no search before validation passes")
}

func TestSearchErrorAbortsRun(t *testing.T) {
	s := &fakeSearcher{err: fmt.Errorf("%w: HTTP 503", types.ErrSearch)}
	proc := &countingProcessor{}
	c := New(s, proc, Options{})
	_, err := c.Run(context.Background(), quantumParams, false, 1)
	assert.ErrorIs(t, err, types.ErrSearch)
	assert.Zero(t, atomic.LoadInt32(&proc.peak))
}

func TestCancelledRunRecordsEveryPaper(t *testing.T) {
	f := newFixture(t)
	c := f.collector(t, papers(3, ""), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := c.Run(ctx, quantumParams, false, 2)
	require.NoError(t, err)
	require.Len(t, summary.Outcomes, 3)
	assert.Equal(t, 3, summary.Failed)
	for _, o := range summary.Outcomes {
		assert.Equal(t, cancelledReason, o.Reason)
	}
	assert.Empty(t, f.srv.TopLevel())
}

// cancellingLibrary cancels the run right after the first item is created.
type cancellingLibrary struct {
	Library
	cancel context.CancelFunc
	once   sync.Once
}

func (l *cancellingLibrary) CreateItem(ctx context.Context, templateType string, fields map[string]any) (string, error) {
	key, err := l.Library.CreateItem(ctx, templateType, fields)
	l.once.Do(l.cancel)
	return key, err
}

func TestCancelAfterCreateFinishesAttachments(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.deps.Library = &cancellingLibrary{Library: f.library, cancel: cancel}
	f.deps.Summarizer = &fakeSummarizer{reply: "summary"}
	pdfSrv := pdfServer(t)
	c := f.collector(t, papers(3, pdfSrv.URL), Options{})

	summary, err := c.Run(ctx, quantumParams, true, 1)
	require.NoError(t, err)

	first := summary.Outcomes[0]
	assert.Equal(t, types.StatusSuccess, first.Status)
	assert.Equal(t, types.StepAttached, first.PDF, "attachment finished after cancellation")
	assert.Equal(t, types.StepAttached, first.Summary)
	assert.Len(t, f.srv.Children(first.ItemKey), 2)

	for _, o := range summary.Outcomes[1:] {
		assert.Equal(t, types.StatusFailed, o.Status)
		assert.Equal(t, cancelledReason, o.Reason)
	}
	assert.Len(t, f.srv.TopLevel(), 1)
}

type fakeSeen struct {
	mu      sync.Mutex
	keys    map[string]string
	err     error
	lookups int
}

func (s *fakeSeen) Lookup(_ context.Context, p types.Paper) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.err != nil {
		return "", false, s.err
	}
	k, ok := s.keys[p.ID]
	return k, ok, nil
}

func (s *fakeSeen) Remember(_ context.Context, p types.Paper, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.keys[p.ID] = key
	return nil
}

func TestSeenCacheShortCircuits(t *testing.T) {
	f := newFixture(t)
	seen := &fakeSeen{keys: map[string]string{"2401.00002": "CACHED01"}}
	f.deps.Seen = seen
	c := f.collector(t, papers(3, ""), Options{})

	summary, err := c.Run(context.Background(), quantumParams, false, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Successful)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, "CACHED01", summary.Outcomes[1].ItemKey)
	assert.Contains(t, summary.Outcomes[1].Reason, "seen cache")

	assert.Equal(t, summary.Outcomes[0].ItemKey, seen.keys["2401.00001"], "new items are remembered")
	assert.Len(t, f.srv.TopLevel(), 2)
}

func TestSeenCacheFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.deps.Seen = &fakeSeen{err: errors.New("redis: connection refused")}
	c := f.collector(t, papers(2, ""), Options{})

	summary, err := c.Run(context.Background(), quantumParams, false, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Successful)
	assert.Contains(t, f.log.String(), "connection refused")
}

type fakeArchive struct {
	mu     sync.Mutex
	stored []string
	err    error
}

func (a *fakeArchive) Store(_ context.Context, p types.Paper, localPath, filename string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.stored = append(a.stored, filename)
	return "s3://papers/" + p.ID + "/" + filename, nil
}

func TestArchiveCopiesPDF(t *testing.T) {
	f := newFixture(t)
	arch := &fakeArchive{}
	f.deps.Archive = arch
	pdfSrv := pdfServer(t)
	c := f.collector(t, papers(2, pdfSrv.URL), Options{})

	summary, err := c.Run(context.Background(), quantumParams, true, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Successful)
	assert.Len(t, arch.stored, 2)
	assert.Contains(t, f.log.String(), "archived: 2401.00001 -> s3://papers/2401.00001/")
}

func TestArchiveFailureIsNoted(t *testing.T) {
	f := newFixture(t)
	f.deps.Archive = &fakeArchive{err: errors.New("AccessDenied")}
	pdfSrv := pdfServer(t)
	c := f.collector(t, papers(1, pdfSrv.URL), Options{})

	summary, err := c.Run(context.Background(), quantumParams, true, 1)
	require.NoError(t, err)
	o := summary.Outcomes[0]
	assert.Equal(t, types.StepAttached, o.PDF)
	assert.False(t, o.Degraded())
	require.Len(t, o.Notes, 1)
	assert.Contains(t, o.Notes[0], "archive: AccessDenied")
}

func TestRunIsRecordedInLedger(t *testing.T) {
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer l.Close()

	f := newFixture(t)
	found := papers(3, "")
	found[2].AbsURL = ""
	c := f.collector(t, found, Options{Recorder: l})

	summary, err := c.Run(context.Background(), quantumParams, false, 2)
	require.NoError(t, err)

	got, err := l.Run(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, summary.Query, got.Query)
	assert.Equal(t, 2, got.Successful)
	assert.Equal(t, 1, got.Failed)
	assert.False(t, got.FinishedAt.IsZero())
	require.Len(t, got.Outcomes, 3)
	assert.Equal(t, "2401.00003", got.Outcomes[2].PaperID)
	assert.Equal(t, types.StatusFailed, got.Outcomes[2].Status)
}

func TestNewProcessorRequiresLibraryAndMapper(t *testing.T) {
	_, err := NewProcessor(Deps{}, types.ZoteroConfig{}, nil)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	m, err := mapping.New(mapping.DefaultConfig())
	require.NoError(t, err)
	_, err = NewProcessor(Deps{Mapper: m}, types.ZoteroConfig{}, nil)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestSummaryInput(t *testing.T) {
	assert.Equal(t, "Abstract:\nabs", summaryInput(" abs ", ""))
	assert.Equal(t, "body", summaryInput("", "body"))
	assert.Equal(t, "Abstract:\nabs\n\nFull text:\nbody", summaryInput("abs", "body"))
	assert.Empty(t, summaryInput("", ""))
}

func TestStateSequenceOnlyMovesForward(t *testing.T) {
	steps := []types.StepStatus{types.StepAttached, types.StepFailed, types.StepSkipped, types.StepNotRequested}
	for _, pdfStep := range steps {
		for _, summaryStep := range steps {
			seq := []types.State{
				types.StateStart,
				types.StateDuplicateChecked,
				types.StateMetadataAttached,
				stepState(pdfStep, types.StatePDFAttached, types.StatePDFSkippedOrFailed),
				stepState(summaryStep, types.StateSummaryAttached, types.StateSummarySkippedOrFailed),
				types.StateDone,
			}
			for i := 1; i < len(seq); i++ {
				assert.Greater(t, seq[i].Stage(), seq[i-1].Stage(), "%s -> %s", seq[i-1], seq[i])
			}
		}
	}
	assert.Equal(t, types.StatePDFAttached, stepState(types.StepAttached, types.StatePDFAttached, types.StatePDFSkippedOrFailed))
	assert.Equal(t, types.StatePDFSkippedOrFailed, stepState(types.StepFailed, types.StatePDFAttached, types.StatePDFSkippedOrFailed))
}
