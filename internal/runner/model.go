package runner

import "time"

// RunResult summarizes a full-library reconciliation run.
type RunResult struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"` // "running", "completed", "failed", "canceled"
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Total       int        `json:"total"`
	Processed   int        `json:"processed"`
	NeedsReview int        `json:"needs_review"`
	Skipped     int        `json:"skipped"`
	Failed      int        `json:"failed"`
	Error       string     `json:"error,omitempty"`
}

// RunOptions control one run.
type RunOptions struct {
	// Force reprocesses items already in the processed log.
	Force bool `json:"force"`
	// Libraries restricts the run to the named libraries. Empty means all
	// configured libraries.
	Libraries []string `json:"libraries,omitempty"`
}
