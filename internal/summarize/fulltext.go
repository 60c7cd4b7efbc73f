// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package summarize

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/pdiddy/arxiv-zotero/internal/httputil"
	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

// arxivHTMLBase is the root of arXiv's HTML renderings. Package-level var
// for test substitution.
var arxivHTMLBase = "https://arxiv.org/html/"

// FullText fetches the HTML rendering of a paper and reduces it to its
// readable text. Older papers have no rendering; that is reported as an
// error the caller can ignore.
type FullText struct {
	client    *http.Client
	userAgent string
	retry     httputil.Policy
}

// NewFullText builds a fetcher using the shared HTTP settings.
func NewFullText(cfg types.HTTPConfig) *FullText {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FullText{
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.UserAgent,
	}
}

// Fetch returns the article text of p's HTML rendering.
func (f *FullText) Fetch(ctx context.Context, p types.Paper) (string, error) {
	if p.ID == "" {
		return "", fmt.Errorf("%w: paper has no arXiv identifier", types.ErrSummarization)
	}
	page, err := url.Parse(arxivHTMLBase + p.ID + p.Version)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrSummarization, err)
	}

	resp, err := httputil.Send(ctx, f.client, f.retry, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, page.String(), nil)
		if err != nil {
			return nil, err
		}
		if f.userAgent != "" {
			req.Header.Set("User-Agent", f.userAgent)
		}
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: fetching %s: %w", types.ErrSummarization, page, err)
	}
	defer resp.Body.Close()

	article, err := readability.FromReader(resp.Body, page)
	if err != nil {
		return "", fmt.Errorf("%w: extracting %s: %v", types.ErrSummarization, page, err)
	}
	text := strings.Join(strings.Fields(article.TextContent), " ")
	if text == "" {
		return "", fmt.Errorf("%w: %s has no readable text", types.ErrSummarization, page)
	}
	return text, nil
}
