// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search builds arXiv queries from structured filters, pages through
// the arXiv API, and applies the date and content-type filters arXiv cannot
// evaluate itself.
package search

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

// FormatTable writes papers as a human-readable table to w.
func FormatTable(papers []types.Paper, w io.Writer) {
	if len(papers) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-16s  %-56s  %-20s  %-10s  %s\n",
		"#", "arXiv ID", "Title", "Authors", "Published", "Type")
	fmt.Fprintln(w, strings.Repeat("-", 124))

	for i, p := range papers {
		published := ""
		if !p.Published.IsZero() {
			published = p.Published.Format(dateFmt)
		}
		fmt.Fprintf(w, "%-4d  %-16s  %-56s  %-20s  %-10s  %s\n",
			i+1, p.ID, truncate(p.Title, 56), formatAuthors(p.Authors), published, Classify(p))
	}

	fmt.Fprintf(w, "\n%d results\n", len(papers))
}

// FormatJSON writes papers as indented JSON to w.
func FormatJSON(papers []types.Paper, w io.Writer) error {
	if papers == nil {
		papers = []types.Paper{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(papers)
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 20)
	default:
		return truncate(authors[0], 14) + " et al."
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
