// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the arxiv-zotero pipeline:
// the normalized paper record, run configuration, credentials, per-paper
// outcomes, and the error taxonomy.
package types

import (
	"fmt"
	"strings"
)

// ContentType is the publication kind a search can be restricted to. arXiv
// does not expose it, so it is inferred from journal-ref and comment fields.
type ContentType string

const (
	ContentAny        ContentType = "any"
	ContentJournal    ContentType = "journal"
	ContentConference ContentType = "conference"
	ContentPreprint   ContentType = "preprint"
)

// ParseContentType accepts the CLI/config spelling of a content type.
// An empty string means ContentAny.
func ParseContentType(s string) (ContentType, error) {
	switch ContentType(strings.ToLower(strings.TrimSpace(s))) {
	case "", ContentAny:
		return ContentAny, nil
	case ContentJournal:
		return ContentJournal, nil
	case ContentConference:
		return ContentConference, nil
	case ContentPreprint:
		return ContentPreprint, nil
	}
	return "", fmt.Errorf("%w: unknown content type %q (want journal, conference, preprint, or any)", ErrConfiguration, s)
}
