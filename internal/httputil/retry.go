// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the retry policy and HTTP status handling shared
// by the arXiv, Zotero, PDF, and summarizer clients.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryBaseDelay is the default first backoff step. Tests override this to
// avoid real sleeps.
var RetryBaseDelay = 3 * time.Second

const (
	defaultMaxAttempts = 3
	maxBodyExcerpt     = 512
)

// StatusError is returned for any HTTP response with status >= 400.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Transient reports whether the status is worth retrying: 429 and 5xx.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// StatusCode extracts the HTTP status from err, or 0 when err carries none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// CheckStatus returns a *StatusError for responses with status >= 400. The
// body is drained and closed in that case so the caller only closes bodies
// of successful responses.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyExcerpt))
	io.Copy(io.Discard, resp.Body)
	return &StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(data)),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable regardless of its kind.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsTransient is the default retry classifier: 429/5xx responses, network
// timeouts and resets, and truncated bodies. Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// Policy describes how a call site retries: how many attempts, the first
// backoff step (doubling after each attempt), and which errors qualify.
type Policy struct {
	// MaxAttempts counts the first try. Zero means 3.
	MaxAttempts int

	// BaseDelay is the first backoff. Zero means RetryBaseDelay.
	BaseDelay time.Duration

	// Retryable classifies errors. Nil means IsTransient.
	Retryable func(error) bool

	// OnRetry, when set, is called before each backoff wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return p.MaxAttempts
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = RetryBaseDelay
	}
	return base << (attempt - 1)
}

// Do runs op until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done. A StatusError's Retry-After wins over the
// computed backoff when it is longer.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	max := p.attempts()

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if !retryable(err) {
			return err
		}
		if attempt >= max {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		wait := p.Backoff(attempt)
		var se *StatusError
		if errors.As(err, &se) && se.RetryAfter > wait {
			wait = se.RetryAfter
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Send executes the request produced by build under the policy. build is
// called once per attempt so request bodies are fresh each time. Responses
// with status >= 400 become *StatusError; the returned response always has
// a status below 400 and must be closed by the caller.
func Send(ctx context.Context, client *http.Client, p Policy, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	var resp *http.Response
	err := p.Do(ctx, func(ctx context.Context) error {
		req, err := build(ctx)
		if err != nil {
			return Permanent(fmt.Errorf("creating request: %w", err))
		}
		r, err := client.Do(req)
		if err != nil {
			return err
		}
		if err := CheckStatus(r); err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
