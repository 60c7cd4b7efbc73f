// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

// QueryFile is the on-disk representation of a search and its results.
// A saved search can be reviewed, edited, and fed back to collect without
// retyping the filters.
type QueryFile struct {
	Query   QueryParams   `yaml:"query"`
	Search  string        `yaml:"search_query"`
	Results []types.Paper `yaml:"results"`
	Summary QuerySummary  `yaml:"summary"`
}

// QueryParams stores the filters in a serializable form.
type QueryParams struct {
	Keywords    []string `yaml:"keywords,omitempty"`
	Title       string   `yaml:"title,omitempty"`
	Categories  []string `yaml:"categories,omitempty"`
	Author      string   `yaml:"author,omitempty"`
	StartDate   string   `yaml:"start_date,omitempty"`
	EndDate     string   `yaml:"end_date,omitempty"`
	ContentType string   `yaml:"content_type,omitempty"`
	MaxResults  int      `yaml:"max_results"`
}

// QuerySummary stores result statistics and a timestamp.
type QuerySummary struct {
	Total     int       `yaml:"total"`
	Timestamp time.Time `yaml:"timestamp"`
}

const dateFmt = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date; an empty string is the zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateFmt, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q (want YYYY-MM-DD)", types.ErrConfiguration, s)
	}
	return t, nil
}

// NewQueryParams converts Params into their stored form.
func NewQueryParams(p Params) QueryParams {
	qp := QueryParams{
		Keywords:   p.Keywords,
		Title:      p.Title,
		Categories: p.Categories,
		Author:     p.Author,
		MaxResults: p.Limit(),
	}
	if p.ContentType != "" && p.ContentType != types.ContentAny {
		qp.ContentType = string(p.ContentType)
	}
	if !p.StartDate.IsZero() {
		qp.StartDate = p.StartDate.Format(dateFmt)
	}
	if !p.EndDate.IsZero() {
		qp.EndDate = p.EndDate.Format(dateFmt)
	}
	return qp
}

// WriteQueryFile saves the filters, rendered query, and results to a YAML file.
func WriteQueryFile(path string, p Params, papers []types.Paper) error {
	query, err := p.BuildQuery()
	if err != nil {
		return err
	}
	qf := QueryFile{
		Query:   NewQueryParams(p),
		Search:  query,
		Results: papers,
		Summary: QuerySummary{
			Total:     len(papers),
			Timestamp: time.Now().UTC(),
		},
	}

	data, err := yaml.Marshal(&qf)
	if err != nil {
		return fmt.Errorf("marshaling query file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadQueryFile loads a previously saved query file from disk.
func ReadQueryFile(path string) (*QueryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query file: %w", err)
	}
	var qf QueryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("parsing query file: %w", err)
	}
	return &qf, nil
}

// ToParams converts stored QueryParams back into Params.
func (qp QueryParams) ToParams() (Params, error) {
	p := Params{
		Keywords:   qp.Keywords,
		Title:      qp.Title,
		Categories: qp.Categories,
		Author:     qp.Author,
		MaxResults: qp.MaxResults,
	}
	ct, err := types.ParseContentType(qp.ContentType)
	if err != nil {
		return p, err
	}
	p.ContentType = ct
	if p.StartDate, err = ParseDate(qp.StartDate); err != nil {
		return p, err
	}
	if p.EndDate, err = ParseDate(qp.EndDate); err != nil {
		return p, err
	}
	return p, nil
}
