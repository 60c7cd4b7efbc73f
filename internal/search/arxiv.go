// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed/atom"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/pdiddy/arxiv-zotero/internal/httputil"
	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

const (
	defaultPageSize     = 100
	defaultRequestDelay = 3 * time.Second

	// maxScanned bounds raw entries read in one search so a selective
	// client-side filter cannot page through the whole archive.
	maxScanned = 2000
)

// Client queries the arXiv API. Calls made through one Client are spaced by
// Delay, as arXiv asks of API users.
type Client struct {
	HTTP      *http.Client
	PageSize  int
	Delay     time.Duration
	UserAgent string
	Retry     httputil.Policy

	// Log receives retry notices. Nil discards them.
	Log io.Writer

	mu   sync.Mutex
	last time.Time
}

// NewClient builds a Client from the search configuration.
func NewClient(cfg types.SearchConfig, w io.Writer) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	delay := cfg.RequestDelay
	if delay <= 0 {
		delay = defaultRequestDelay
	}
	if w == nil {
		w = io.Discard
	}
	c := &Client{
		HTTP:      &http.Client{Timeout: timeout},
		PageSize:  pageSize,
		Delay:     delay,
		UserAgent: cfg.UserAgent,
		Log:       w,
	}
	c.Retry = httputil.Policy{
		MaxAttempts: cfg.MaxRetries,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			fmt.Fprintf(c.Log, "  arXiv: attempt %d failed (%v), retrying in %s\n", attempt, err, wait)
		},
	}
	return c
}

// Papers returns a lazy sequence of papers matching p. Each iteration starts
// a fresh search, so the sequence can be ranged over again. Iteration stops
// after p.Limit() accepted papers; an error is yielded once and ends the
// sequence. Results are requested newest first so a start-date bound ends
// paging as soon as entries fall before it.
func (c *Client) Papers(ctx context.Context, p Params) iter.Seq2[types.Paper, error] {
	return func(yield func(types.Paper, error) bool) {
		query, err := p.BuildQuery()
		if err != nil {
			yield(types.Paper{}, err)
			return
		}

		limit := p.Limit()
		accepted := 0
		for start := 0; start < maxScanned; {
			size := c.pageSize()
			if !p.filtersLocally() && limit-accepted < size {
				size = limit - accepted
			}

			feed, err := c.fetchPage(ctx, query, start, size)
			if err != nil {
				yield(types.Paper{}, err)
				return
			}
			if len(feed.Entries) == 0 {
				return
			}

			pastWindow := false
			for _, e := range feed.Entries {
				if isErrorEntry(e) {
					yield(types.Paper{}, fmt.Errorf("%w: arXiv rejected query %q: %s",
						types.ErrSearch, query, collapse(e.Summary)))
					return
				}
				paper, ok := entryToPaper(e)
				if !ok {
					continue
				}
				if !p.StartDate.IsZero() && !paper.Published.IsZero() && day(paper.Published).Before(day(p.StartDate)) {
					pastWindow = true
					continue
				}
				if !p.Accept(paper) {
					continue
				}
				if !yield(paper, nil) {
					return
				}
				accepted++
				if accepted >= limit {
					return
				}
			}

			start += len(feed.Entries)
			if pastWindow || len(feed.Entries) < size {
				return
			}
			if total, ok := totalResults(feed); ok && start >= total {
				return
			}
		}
	}
}

// Search collects Papers into a slice.
func (c *Client) Search(ctx context.Context, p Params) ([]types.Paper, error) {
	var papers []types.Paper
	for paper, err := range c.Papers(ctx, p) {
		if err != nil {
			return papers, err
		}
		papers = append(papers, paper)
	}
	return papers, nil
}

func (c *Client) pageSize() int {
	if c.PageSize <= 0 {
		return defaultPageSize
	}
	return c.PageSize
}

// throttle waits until Delay has passed since the previous call.
func (c *Client) throttle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.last.IsZero() {
		if wait := c.Delay - time.Since(c.last); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	c.last = time.Now()
	return nil
}

func (c *Client) fetchPage(ctx context.Context, query string, start, size int) (*atom.Feed, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSearch, err)
	}

	v := url.Values{}
	v.Set("search_query", query)
	v.Set("start", strconv.Itoa(start))
	v.Set("max_results", strconv.Itoa(size))
	v.Set("sortBy", "submittedDate")
	v.Set("sortOrder", "descending")
	endpoint := arxivAPIBase + "?" + v.Encode()

	resp, err := httputil.Send(ctx, c.HTTP, c.Retry, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		if c.UserAgent != "" {
			req.Header.Set("User-Agent", c.UserAgent)
		}
		return req, nil
	})
	if err != nil {
		if httputil.StatusCode(err) == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %w: %w", types.ErrSearch, types.ErrRateLimitExceeded, err)
		}
		return nil, fmt.Errorf("%w: arXiv API request: %w", types.ErrSearch, err)
	}
	defer resp.Body.Close()

	feed, err := (&atom.Parser{}).Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing arXiv response: %w", types.ErrSearch, err)
	}
	return feed, nil
}

// entryToPaper normalizes one Atom entry. The second result is false when
// the entry carries no arXiv identifier.
func entryToPaper(e *atom.Entry) (types.Paper, bool) {
	id, version := splitArxivID(e.ID)
	if id == "" {
		return types.Paper{}, false
	}

	p := types.Paper{
		ID:         id,
		Version:    version,
		Title:      collapse(e.Title),
		Abstract:   collapse(e.Summary),
		DOI:        strings.TrimSpace(extValue(e.Extensions, "doi")),
		Comment:    collapse(extValue(e.Extensions, "comment")),
		JournalRef: collapse(extValue(e.Extensions, "journal_ref")),
	}
	for _, a := range e.Authors {
		if name := collapse(a.Name); name != "" {
			p.Authors = append(p.Authors, name)
		}
	}
	if e.PublishedParsed != nil {
		p.Published = e.PublishedParsed.UTC()
	}
	if e.UpdatedParsed != nil {
		p.Updated = e.UpdatedParsed.UTC()
	}

	p.PrimaryCategory = extAttr(e.Extensions, "primary_category", "term")
	if p.PrimaryCategory != "" {
		p.Categories = append(p.Categories, p.PrimaryCategory)
	}
	for _, c := range e.Categories {
		if c.Term != "" && c.Term != p.PrimaryCategory {
			p.Categories = append(p.Categories, c.Term)
		}
	}
	if p.PrimaryCategory == "" && len(p.Categories) > 0 {
		p.PrimaryCategory = p.Categories[0]
	}

	for _, l := range e.Links {
		switch {
		case l.Title == "pdf" || l.Type == "application/pdf":
			p.PDFURL = l.Href
		case l.Rel == "alternate" && p.AbsURL == "":
			p.AbsURL = l.Href
		}
	}
	if p.AbsURL == "" {
		p.AbsURL = strings.TrimSpace(e.ID)
	}
	if p.PDFURL == "" {
		p.PDFURL = "https://arxiv.org/pdf/" + id + version
	}
	return p, true
}

// isErrorEntry detects the single-entry feed arXiv returns for a malformed
// query.
func isErrorEntry(e *atom.Entry) bool {
	return strings.Contains(e.ID, "/api/errors")
}

func totalResults(feed *atom.Feed) (int, bool) {
	for _, prefix := range []string{"opensearch", "openSearch"} {
		vals := feed.Extensions[prefix]["totalResults"]
		if len(vals) == 0 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(vals[0].Value))
		if err == nil {
			return n, true
		}
	}
	return 0, false
}

func extValue(x ext.Extensions, name string) string {
	vals := x["arxiv"][name]
	if len(vals) == 0 {
		return ""
	}
	return vals[0].Value
}

func extAttr(x ext.Extensions, name, attr string) string {
	vals := x["arxiv"][name]
	if len(vals) == 0 {
		return ""
	}
	return vals[0].Attrs[attr]
}

// splitArxivID pulls the arXiv ID and version from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" -> "2301.07041", "v1").
func splitArxivID(idURL string) (string, string) {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return "", ""
	}
	id := strings.TrimSpace(idURL[idx+len(prefix):])

	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			return id[:vIdx], id[vIdx:]
		}
	}
	return id, ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
