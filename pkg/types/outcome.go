// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Status is the final disposition of one paper in a run.
type Status string

const (
	StatusSuccess          Status = "success"
	StatusSkippedDuplicate Status = "skipped_duplicate"
	StatusFailed           Status = "failed"
)

// State is a node of the per-paper processing state machine. A paper only
// moves forward. The PDF and summary stages each end in exactly one of two
// alternative states, so PDFAttached and PDFSkippedOrFailed share a rank, as
// do the two summary states.
type State int

const (
	StateStart State = iota
	StateDuplicateChecked
	StateItemCreated
	StateMetadataAttached
	StatePDFAttached
	StatePDFSkippedOrFailed
	StateSummaryAttached
	StateSummarySkippedOrFailed
	StateDone
)

// Stage returns the rank of s in the state machine. Alternative outcomes of
// one stage have the same rank.
func (s State) Stage() int {
	switch {
	case s <= StateMetadataAttached:
		return int(s)
	case s <= StatePDFSkippedOrFailed:
		return int(StatePDFAttached)
	case s <= StateSummarySkippedOrFailed:
		return int(StatePDFAttached) + 1
	default:
		return int(StatePDFAttached) + 2
	}
}

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateDuplicateChecked:
		return "duplicate_checked"
	case StateItemCreated:
		return "item_created"
	case StateMetadataAttached:
		return "metadata_attached"
	case StatePDFAttached:
		return "pdf_attached"
	case StatePDFSkippedOrFailed:
		return "pdf_skipped_or_failed"
	case StateSummaryAttached:
		return "summary_attached"
	case StateSummarySkippedOrFailed:
		return "summary_skipped_or_failed"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// StepStatus records what happened to an optional enrichment step.
type StepStatus string

const (
	StepNotRequested StepStatus = "not_requested"
	StepSkipped      StepStatus = "skipped"
	StepAttached     StepStatus = "attached"
	StepFailed       StepStatus = "failed"
)

// Outcome is the result of processing one paper. Every paper in a run
// yields exactly one Outcome.
type Outcome struct {
	PaperID string `json:"paper_id" yaml:"paper_id"`
	Title   string `json:"title" yaml:"title"`
	Status  Status `json:"status" yaml:"status"`

	// State is the last state-machine node reached.
	State State `json:"-" yaml:"-"`

	// ItemKey is the library item key: the created item, or the existing
	// item when Status is StatusSkippedDuplicate.
	ItemKey string `json:"item_key,omitempty" yaml:"item_key,omitempty"`

	// Reason explains a failed or skipped paper.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	PDF     StepStatus `json:"pdf" yaml:"pdf"`
	Summary StepStatus `json:"summary" yaml:"summary"`

	// Notes carries partial-failure detail for degraded outcomes.
	Notes []string `json:"notes,omitempty" yaml:"notes,omitempty"`

	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Degraded reports whether the paper was ingested but lost an enrichment.
func (o Outcome) Degraded() bool {
	return o.Status == StatusSuccess && (o.PDF == StepFailed || o.Summary == StepFailed)
}

// RunSummary aggregates the outcomes of one collection run.
type RunSummary struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	Query      string    `json:"query" yaml:"query"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	Successful int `json:"successful" yaml:"successful"`
	Skipped    int `json:"skipped" yaml:"skipped"`
	Failed     int `json:"failed" yaml:"failed"`

	// Outcomes is ordered like the search results.
	Outcomes []Outcome `json:"outcomes" yaml:"outcomes"`
}

// Total returns the number of papers attempted.
func (r RunSummary) Total() int {
	return r.Successful + r.Skipped + r.Failed
}

// Tally returns the (successful, failed) counts. Duplicates count as neither.
func (r RunSummary) Tally() (int, int) {
	return r.Successful, r.Failed
}

// HasFailures reports whether any paper failed.
func (r RunSummary) HasFailures() bool {
	return r.Failed > 0
}
