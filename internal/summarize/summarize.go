// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package summarize produces short AI summaries of papers for Zotero notes.
// A Summarizer renders the configured prompt, spaces consecutive calls by
// the configured delay, retries transient backend failures, and trims the
// result to the configured length. Every failure is an ErrSummarization;
// callers treat it as a degraded step, never a failed paper.
package summarize

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"sync"
	"text/template"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/pdiddy/arxiv-zotero/internal/httputil"
	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

const (
	defaultMaxLength = 2000
	defaultMaxInput  = 20000
	defaultTimeout   = 120 * time.Second
)

// DefaultPrompt is used when no prompt is configured.
const DefaultPrompt = `Summarize the following research paper for a reference library note.
Cover the problem, the approach, and the main result in plain prose without
headings or bullet points. Keep it under 200 words.

Title: {{.Title}}

{{.Text}}
`

// Backend abstracts the generative text API so tests can supply a mock.
type Backend interface {
	// Name identifies the backend in log lines ("claude", "cohere").
	Name() string

	// Generate returns the model's reply to prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}

// Summarizer is safe for concurrent use. Calls from concurrent paper tasks
// are spaced at least Delay apart.
type Summarizer struct {
	backend   Backend
	prompt    *template.Template
	maxLength int
	maxInput  int
	delay     time.Duration
	timeout   time.Duration
	retry     httputil.Policy

	mu   sync.Mutex
	next time.Time
}

// New builds a Summarizer around backend. The prompt must parse as a
// text/template; an invalid one is an ErrConfiguration.
func New(backend Backend, cfg types.SummaryConfig) (*Summarizer, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: no summarizer backend", types.ErrConfiguration)
	}
	src := cfg.Prompt
	if strings.TrimSpace(src) == "" {
		src = DefaultPrompt
	}
	tmpl, err := template.New("summary").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing summary prompt: %v", types.ErrConfiguration, err)
	}

	s := &Summarizer{
		backend:   backend,
		prompt:    tmpl,
		maxLength: cfg.MaxLength,
		maxInput:  cfg.MaxInput,
		delay:     cfg.Delay,
		timeout:   cfg.Timeout,
		retry:     httputil.Policy{MaxAttempts: cfg.MaxRetries},
	}
	if s.maxLength <= 0 {
		s.maxLength = defaultMaxLength
	}
	if s.maxInput <= 0 {
		s.maxInput = defaultMaxInput
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	return s, nil
}

// Backend returns the backend name.
func (s *Summarizer) Backend() string { return s.backend.Name() }

// promptData is the value the prompt template is executed with.
type promptData struct {
	Title string
	Text  string
}

// Summarize sends the title and text to the backend and returns a summary
// no longer than the configured maximum. text is cut to the input cap
// before rendering.
func (s *Summarizer) Summarize(ctx context.Context, title, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: no text to summarize", types.ErrSummarization)
	}

	var buf bytes.Buffer
	err := s.prompt.Execute(&buf, promptData{Title: title, Text: Truncate(text, s.maxInput)})
	if err != nil {
		return "", fmt.Errorf("%w: rendering prompt: %v", types.ErrSummarization, err)
	}
	prompt := buf.String()

	var reply string
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		if err := s.wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		out, err := s.backend.Generate(callCtx, prompt)
		if err != nil {
			return err
		}
		reply = out
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", types.ErrSummarization, s.backend.Name(), err)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%w: %s returned an empty summary", types.ErrSummarization, s.backend.Name())
	}
	return Truncate(reply, s.maxLength), nil
}

// wait blocks until this call's slot. Each caller reserves the slot after
// the previous one, so concurrent callers queue up Delay apart.
func (s *Summarizer) wait(ctx context.Context) error {
	s.mu.Lock()
	now := time.Now()
	slot := s.next
	if slot.Before(now) {
		slot = now
	}
	s.next = slot.Add(s.delay)
	s.mu.Unlock()

	d := time.Until(slot)
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Truncate cuts s to at most max runes, backing up to a word boundary when
// one is near and marking the cut with "...".
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	const ellipsis = "..."
	if max <= len(ellipsis) {
		return string([]rune(s)[:max])
	}
	r := []rune(s)[:max-len(ellipsis)]
	cut := len(r)
	for i := len(r) - 1; i > len(r)*4/5; i-- {
		if unicode.IsSpace(r[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(r[:cut]), unicode.IsSpace) + ellipsis
}

// NoteHTML renders a summary as the HTML body of a Zotero note. Blank lines
// separate paragraphs.
func NoteHTML(backend, summary string) string {
	var b strings.Builder
	b.WriteString("<h2>AI Summary</h2>\n")
	for _, para := range strings.Split(strings.TrimSpace(summary), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br/>"))
		b.WriteString("</p>\n")
	}
	if backend != "" {
		fmt.Fprintf(&b, "<p><em>Generated by %s.</em></p>\n", html.EscapeString(backend))
	}
	return b.String()
}

// NewBackend builds the backend named by cfg.Backend, authenticated with
// cfg.APIKey. A missing key is an ErrConfiguration; callers disable
// summaries instead of failing the run.
func NewBackend(cfg types.SummaryConfig) (Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key for the %s summarizer", types.ErrConfiguration, cfg.Backend)
	}
	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.Timeout <= 0 {
		client.Timeout = defaultTimeout
	}
	switch cfg.Backend {
	case "", types.BackendClaude:
		return &ClaudeBackend{APIKey: cfg.APIKey, Model: cfg.Model, Client: client}, nil
	case types.BackendCohere:
		return NewCohereBackend(cfg.APIKey, cfg.Model, client), nil
	}
	return nil, fmt.Errorf("%w: unknown summarizer backend %q (want claude or cohere)", types.ErrConfiguration, cfg.Backend)
}
