// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strings"
	"time"
)

// Paper is the normalized record of a paper found by the arXiv search.
// Values are filled once from the Atom feed and treated as read-only by
// every later stage.
type Paper struct {
	// ID is the arXiv identifier without version (e.g. "2301.07041").
	ID string `json:"id" yaml:"id"`

	// Version is the arXiv version suffix (e.g. "v2"), empty when unknown.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Title is the paper title with whitespace collapsed.
	Title string `json:"title" yaml:"title"`

	// Authors lists author names in feed order.
	Authors []string `json:"authors" yaml:"authors"`

	// Abstract is the arXiv summary.
	Abstract string `json:"abstract" yaml:"abstract"`

	// PrimaryCategory is the arxiv:primary_category term (e.g. "cs.AI").
	PrimaryCategory string `json:"primary_category" yaml:"primary_category"`

	// Categories lists every category term, primary first.
	Categories []string `json:"categories" yaml:"categories"`

	// Published is the first-version submission time.
	Published time.Time `json:"published" yaml:"published"`

	// Updated is the latest-version time.
	Updated time.Time `json:"updated,omitempty" yaml:"updated,omitempty"`

	// DOI is the publisher DOI from arxiv:doi, if any.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// AbsURL is the abstract page URL.
	AbsURL string `json:"abs_url" yaml:"abs_url"`

	// PDFURL is the PDF link, if the feed carried one.
	PDFURL string `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`

	// Comment is the free-text author comment (page counts, venue notes).
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`

	// JournalRef is the journal reference for published versions.
	JournalRef string `json:"journal_ref,omitempty" yaml:"journal_ref,omitempty"`
}

// ArchiveID returns the identifier in Zotero's archiveID form ("arXiv:2301.07041").
func (p Paper) ArchiveID() string {
	if p.ID == "" {
		return ""
	}
	return "arXiv:" + p.ID
}

// Field returns the value of a named source field for the metadata mapper.
// The second result is false when the field is unknown or empty.
func (p Paper) Field(name string) (any, bool) {
	var v any
	switch name {
	case "id", "arxiv_id":
		v = p.ID
	case "archive_id":
		v = p.ArchiveID()
	case "version":
		v = p.Version
	case "title":
		v = p.Title
	case "authors":
		if len(p.Authors) == 0 {
			return nil, false
		}
		return p.Authors, true
	case "abstract":
		v = p.Abstract
	case "primary_category":
		v = p.PrimaryCategory
	case "categories":
		if len(p.Categories) == 0 {
			return nil, false
		}
		return p.Categories, true
	case "published":
		if p.Published.IsZero() {
			return nil, false
		}
		return p.Published, true
	case "updated":
		if p.Updated.IsZero() {
			return nil, false
		}
		return p.Updated, true
	case "doi":
		v = p.DOI
	case "abs_url", "arxiv_url":
		v = p.AbsURL
	case "pdf_url":
		v = p.PDFURL
	case "comment":
		v = p.Comment
	case "journal_ref":
		v = p.JournalRef
	default:
		return nil, false
	}
	s, _ := v.(string)
	if strings.TrimSpace(s) == "" {
		return nil, false
	}
	return s, true
}

// SourceFields lists the names accepted by Field.
var SourceFields = []string{
	"id", "arxiv_id", "archive_id", "version", "title", "authors", "abstract",
	"primary_category", "categories", "published", "updated", "doi",
	"abs_url", "arxiv_url", "pdf_url", "comment", "journal_ref",
}
