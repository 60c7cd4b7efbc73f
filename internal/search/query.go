// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

// DefaultMaxResults is used when Params.MaxResults is zero.
const DefaultMaxResults = 50

// unrestrictedQuery matches every paper. Only rendered when the caller opts in.
const unrestrictedQuery = "all:*"

// Params holds the structured search filters.
type Params struct {
	// Keywords are OR-combined in the all-fields scope. A keyword containing
	// spaces is searched as a phrase.
	Keywords []string

	// Title terms are AND-combined in the title scope.
	Title string

	// Categories are arXiv taxonomy codes (e.g. "cs.AI"), OR-combined.
	Categories []string

	// Author terms are AND-combined in the author scope.
	Author string

	// StartDate and EndDate bound the publication date, both inclusive by
	// UTC calendar day. Zero means unbounded.
	StartDate time.Time
	EndDate   time.Time

	ContentType types.ContentType

	// MaxResults caps accepted papers after filtering (default 50).
	MaxResults int

	// AllowUnrestricted permits a query with no filter terms.
	AllowUnrestricted bool
}

// IsEmpty reports whether no filter term is set.
func (p Params) IsEmpty() bool {
	return len(cleanTerms(p.Keywords)) == 0 &&
		strings.TrimSpace(p.Title) == "" &&
		len(cleanTerms(p.Categories)) == 0 &&
		strings.TrimSpace(p.Author) == ""
}

// Limit returns the effective result cap.
func (p Params) Limit() int {
	if p.MaxResults <= 0 {
		return DefaultMaxResults
	}
	return p.MaxResults
}

// Validate checks the parameters without rendering them.
func (p Params) Validate() error {
	if p.IsEmpty() && !p.AllowUnrestricted {
		return fmt.Errorf("%w: no keywords, title, categories, or author given (pass --all to search every paper)", types.ErrConfiguration)
	}
	if p.MaxResults < 0 {
		return fmt.Errorf("%w: max results must be positive, got %d", types.ErrConfiguration, p.MaxResults)
	}
	if !p.StartDate.IsZero() && !p.EndDate.IsZero() && day(p.EndDate).Before(day(p.StartDate)) {
		return fmt.Errorf("%w: end date %s is before start date %s", types.ErrConfiguration,
			p.EndDate.Format(dateFmt), p.StartDate.Format(dateFmt))
	}
	if _, err := types.ParseContentType(string(p.ContentType)); err != nil {
		return err
	}
	return nil
}

// BuildQuery renders the filters into arXiv's search_query syntax. Keywords
// are OR-ed in the all: scope, title terms AND-ed in ti:, categories OR-ed
// in cat:, author terms AND-ed in au:, and the scopes joined with AND.
// Output is deterministic for equal Params.
func (p Params) BuildQuery() (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	var scopes []string
	if s := scope("all", cleanTerms(p.Keywords), "OR"); s != "" {
		scopes = append(scopes, s)
	}
	if s := scope("ti", strings.Fields(stripQuotes(p.Title)), "AND"); s != "" {
		scopes = append(scopes, s)
	}
	if s := scope("cat", dedupe(cleanTerms(p.Categories)), "OR"); s != "" {
		scopes = append(scopes, s)
	}
	if s := scope("au", strings.Fields(stripQuotes(p.Author)), "AND"); s != "" {
		scopes = append(scopes, s)
	}

	if len(scopes) == 0 {
		return unrestrictedQuery, nil
	}
	return strings.Join(scopes, " AND "), nil
}

// scope renders terms under one field prefix. More than one term is
// parenthesized so the outer AND binds correctly.
func scope(field string, terms []string, op string) string {
	if len(terms) == 0 {
		return ""
	}
	parts := make([]string, len(terms))
	for i, t := range terms {
		if strings.ContainsAny(t, " \t") {
			t = `"` + strings.Join(strings.Fields(t), " ") + `"`
		}
		parts[i] = field + ":" + t
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")"
}

func cleanTerms(in []string) []string {
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(stripQuotes(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stripQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, "")
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// day truncates t to its UTC calendar day.
func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// inWindow reports whether published falls inside the inclusive date range.
func (p Params) inWindow(published time.Time) bool {
	if p.StartDate.IsZero() && p.EndDate.IsZero() {
		return true
	}
	if published.IsZero() {
		return false
	}
	d := day(published)
	if !p.StartDate.IsZero() && d.Before(day(p.StartDate)) {
		return false
	}
	if !p.EndDate.IsZero() && d.After(day(p.EndDate)) {
		return false
	}
	return true
}

// Accept applies the client-side date and content-type filters.
func (p Params) Accept(paper types.Paper) bool {
	if !p.inWindow(paper.Published) {
		return false
	}
	if p.ContentType == "" || p.ContentType == types.ContentAny {
		return true
	}
	return Classify(paper) == p.ContentType
}

// filtersLocally reports whether some results may be dropped after fetching.
func (p Params) filtersLocally() bool {
	return !p.StartDate.IsZero() || !p.EndDate.IsZero() ||
		(p.ContentType != "" && p.ContentType != types.ContentAny)
}
