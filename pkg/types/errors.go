// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "errors"

// Error kinds. Components wrap one of these with fmt.Errorf("%w: ...") so
// callers can branch with errors.Is.
var (
	// ErrConfiguration covers bad search parameters or missing credentials.
	// Fatal before any network call.
	ErrConfiguration = errors.New("configuration error")

	// ErrSearch covers unrecoverable arXiv failures. Aborts the run.
	ErrSearch = errors.New("search error")

	// ErrRateLimitExceeded is returned once 429 retries are exhausted.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrMapping means a required library field had no value. Fails one paper.
	ErrMapping = errors.New("mapping error")

	// ErrLibraryWrite is a Zotero API failure. Reads such as the duplicate
	// lookup share this kind. Fails the affected step.
	ErrLibraryWrite = errors.New("library write error")

	// ErrDownload is a PDF fetch failure. The paper degrades to "no PDF".
	ErrDownload = errors.New("download error")

	// ErrSummarization is a summarizer failure. Never fails the paper.
	ErrSummarization = errors.New("summarization error")
)
