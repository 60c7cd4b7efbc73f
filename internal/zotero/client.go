// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package zotero is a client for the parts of the Zotero Web API v3 the
// collector writes through: duplicate lookup, item templates, item
// creation, the two-phase file attachment protocol, child notes, and
// collection validation.
package zotero

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/arxiv-zotero/internal/httputil"
	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

// zoteroAPIBase is the Web API root. Declared as a var so tests can
// substitute an httptest server.
var zoteroAPIBase = "https://api.zotero.org"

// SetBaseURL points new clients at another API root. Used by tests in
// other packages that run against a fake server.
func SetBaseURL(u string) (restore func()) {
	old := zoteroAPIBase
	zoteroAPIBase = strings.TrimRight(u, "/")
	return func() { zoteroAPIBase = old }
}

const (
	apiVersion     = "3"
	defaultTimeout = 30 * time.Second
)

// Client talks to one Zotero library. Writes go to the configured
// collection when a collection key is set, otherwise to the library root.
// Safe for concurrent use.
type Client struct {
	http       *http.Client
	base       string
	prefix     string
	apiKey     string
	collection string
	userAgent  string
	retry      httputil.Policy

	mu           sync.Mutex
	templates    map[string]map[string]any
	backoffUntil time.Time
}

// NewClient builds a client for the library named by creds.
func NewClient(creds types.Credentials, cfg types.ZoteroConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	kind := "users"
	if strings.EqualFold(cfg.LibraryType, "group") {
		kind = "groups"
	}
	return &Client{
		http:       &http.Client{Timeout: timeout},
		base:       zoteroAPIBase,
		prefix:     "/" + kind + "/" + url.PathEscape(creds.LibraryID),
		apiKey:     creds.APIKey,
		collection: creds.CollectionKey,
		userAgent:  cfg.UserAgent,
		retry:      httputil.Policy{MaxAttempts: cfg.MaxRetries},
		templates:  make(map[string]map[string]any),
	}
}

// Collection returns the collection key writes are scoped to, if any.
func (c *Client) Collection() string { return c.collection }

// request describes one API call. body is re-read on every attempt.
type request struct {
	method      string
	url         string
	body        []byte
	contentType string
	header      http.Header
	external    bool
}

func (c *Client) libraryURL(path string, q url.Values) string {
	u := c.base + c.prefix + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// send runs r under the retry policy and honors the server's Backoff header.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	resp, err := httputil.Send(ctx, c.http, c.retry, func(ctx context.Context) (*http.Request, error) {
		if err := c.waitBackoff(ctx); err != nil {
			return nil, err
		}
		var body io.Reader
		if r.body != nil {
			body = bytes.NewReader(r.body)
		}
		req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
		if err != nil {
			return nil, err
		}
		for k, vs := range r.header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if r.contentType != "" {
			req.Header.Set("Content-Type", r.contentType)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		if !r.external {
			req.Header.Set("Zotero-API-Key", c.apiKey)
			req.Header.Set("Zotero-API-Version", apiVersion)
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if secs, perr := strconv.Atoi(resp.Header.Get("Backoff")); perr == nil && secs > 0 {
		c.mu.Lock()
		c.backoffUntil = time.Now().Add(time.Duration(secs) * time.Second)
		c.mu.Unlock()
	}
	return resp, nil
}

func (c *Client) waitBackoff(ctx context.Context) error {
	c.mu.Lock()
	wait := time.Until(c.backoffUntil)
	c.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// libraryItem is the subset of the item envelope the client reads.
type libraryItem struct {
	Key  string         `json:"key"`
	Data map[string]any `json:"data"`
}

// CheckDuplicate looks for a top-level item whose field equals identifier
// and returns its key and true when one is found. Child attachments and
// notes are never matched.
func (c *Client) CheckDuplicate(ctx context.Context, identifier, field string) (string, bool, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", false, nil
	}
	if field == "" {
		field = "DOI"
	}

	// The quick search matches substrings, so the bare arXiv number finds
	// both archiveID values and abstract URLs.
	term := identifier
	if field == "archiveID" {
		term = strings.TrimPrefix(identifier, "arXiv:")
	}
	q := url.Values{}
	q.Set("q", term)
	q.Set("qmode", "everything")
	q.Set("format", "json")
	q.Set("limit", "50")

	resp, err := c.send(ctx, request{method: http.MethodGet, url: c.libraryURL("/items/top", q)})
	if err != nil {
		return "", false, fmt.Errorf("%w: duplicate lookup for %s: %w", types.ErrLibraryWrite, identifier, err)
	}
	var items []libraryItem
	if err := decodeJSON(resp, &items); err != nil {
		return "", false, fmt.Errorf("%w: duplicate lookup for %s: %w", types.ErrLibraryWrite, identifier, err)
	}

	for _, it := range items {
		if matches(it.Data, field, identifier) {
			return it.Key, true, nil
		}
	}
	return "", false, nil
}

// matches compares a stored field with identifier, ignoring case. An arXiv
// archive ID also matches an item whose URL points at the same abstract.
func matches(data map[string]any, field, identifier string) bool {
	if v, _ := data[field].(string); strings.EqualFold(strings.TrimSpace(v), identifier) {
		return true
	}
	if field == "archiveID" {
		bare := strings.TrimPrefix(identifier, "arXiv:")
		u, _ := data["url"].(string)
		if i := strings.Index(u, "/abs/"+bare); i >= 0 {
			rest := u[i+len("/abs/"+bare):]
			return rest == "" || rest[0] == 'v'
		}
	}
	return false
}

// Template returns a copy of the empty item template for itemType. Templates
// are fetched once per type and cached.
func (c *Client) Template(ctx context.Context, itemType string) (map[string]any, error) {
	c.mu.Lock()
	tmpl, ok := c.templates[itemType]
	c.mu.Unlock()
	if ok {
		return maps.Clone(tmpl), nil
	}

	q := url.Values{}
	q.Set("itemType", itemType)
	resp, err := c.send(ctx, request{method: http.MethodGet, url: c.base + "/items/new?" + q.Encode()})
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %s template: %w", types.ErrLibraryWrite, itemType, err)
	}
	if err := decodeJSON(resp, &tmpl); err != nil {
		return nil, fmt.Errorf("%w: fetching %s template: %w", types.ErrLibraryWrite, itemType, err)
	}

	c.mu.Lock()
	c.templates[itemType] = tmpl
	c.mu.Unlock()
	return maps.Clone(tmpl), nil
}

// CreateItem creates a top-level item of templateType with fields laid over
// the template, in the configured collection. Fields the remote schema does
// not know are rejected by the server and reported as ErrLibraryWrite
// without retry.
func (c *Client) CreateItem(ctx context.Context, templateType string, fields map[string]any) (string, error) {
	item, err := c.Template(ctx, templateType)
	if err != nil {
		return "", err
	}
	maps.Copy(item, fields)
	if c.collection != "" {
		item["collections"] = []string{c.collection}
	}
	return c.createOne(ctx, item)
}

// writeResponse is the multi-object write result.
type writeResponse struct {
	Successful map[string]libraryItem `json:"successful"`
	Success    map[string]string      `json:"success"`
	Unchanged  map[string]string      `json:"unchanged"`
	Failed     map[string]struct {
		Key     string `json:"key"`
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"failed"`
}

// createOne posts a single object and returns its key. A write token makes
// a retried POST safe to repeat.
func (c *Client) createOne(ctx context.Context, item map[string]any) (string, error) {
	body, err := json.Marshal([]map[string]any{item})
	if err != nil {
		return "", fmt.Errorf("%w: encoding item: %v", types.ErrLibraryWrite, err)
	}
	header := http.Header{}
	header.Set("Zotero-Write-Token", strings.ReplaceAll(uuid.NewString(), "-", ""))

	resp, err := c.send(ctx, request{
		method:      http.MethodPost,
		url:         c.libraryURL("/items", nil),
		body:        body,
		contentType: "application/json",
		header:      header,
	})
	if err != nil {
		return "", fmt.Errorf("%w: creating %v item: %w", types.ErrLibraryWrite, item["itemType"], err)
	}
	var wr writeResponse
	if err := decodeJSON(resp, &wr); err != nil {
		return "", fmt.Errorf("%w: creating %v item: %w", types.ErrLibraryWrite, item["itemType"], err)
	}

	if f, ok := wr.Failed["0"]; ok {
		return "", fmt.Errorf("%w: creating %v item: HTTP %d: %s", types.ErrLibraryWrite, item["itemType"], f.Code, f.Message)
	}
	if s, ok := wr.Successful["0"]; ok && s.Key != "" {
		return s.Key, nil
	}
	if key, ok := wr.Success["0"]; ok && key != "" {
		return key, nil
	}
	if key, ok := wr.Unchanged["0"]; ok && key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w: creating %v item: response named no created key", types.ErrLibraryWrite, item["itemType"])
}

// AttachNote creates a child note under parentKey. html is stored as the
// note body.
func (c *Client) AttachNote(ctx context.Context, parentKey, html string) error {
	_, err := c.createOne(ctx, map[string]any{
		"itemType":   "note",
		"parentItem": parentKey,
		"note":       html,
		"tags":       []any{},
		"relations":  map[string]any{},
	})
	return err
}

// ValidateCollection confirms the configured collection exists and the key
// can read it. A missing collection is an ErrConfiguration.
func (c *Client) ValidateCollection(ctx context.Context) error {
	if c.collection == "" {
		return nil
	}
	resp, err := c.send(ctx, request{
		method: http.MethodGet,
		url:    c.libraryURL("/collections/"+url.PathEscape(c.collection), nil),
	})
	if err != nil {
		switch httputil.StatusCode(err) {
		case http.StatusNotFound:
			return fmt.Errorf("%w: collection %s does not exist", types.ErrConfiguration, c.collection)
		case http.StatusForbidden:
			return fmt.Errorf("%w: API key cannot access collection %s", types.ErrConfiguration, c.collection)
		}
		return fmt.Errorf("%w: validating collection %s: %w", types.ErrConfiguration, c.collection, err)
	}
	resp.Body.Close()
	return nil
}
