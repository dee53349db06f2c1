// Package reconcile implements the cast reconciliation pipeline: identity
// resolution across three id namespaces, multi-stage matching against the
// regional cast, translation, formatting, and a quality-gated commit.
package reconcile

import (
	"context"
	"errors"
	"fmt"
)

// SourceTag records where a cast member entered the working set.
type SourceTag string

// Known source tags.
const (
	SourceSnapshot      SourceTag = "snapshot"
	SourceAuthoritative SourceTag = "authoritative"
	SourceNewlyAdded    SourceTag = "newly-added"
)

// unsetOrder is the sentinel rank for members without a billed position.
const unsetOrder = 999

// CastMember is one person's participation in the title being processed.
// It lives only for the duration of a run; the final list goes to the media
// server and the identity rows it references go to the identity store.
type CastMember struct {
	PrimaryID      string
	ServerPersonID string
	Name           string
	OriginalName   string
	Character      string
	Order          int
	ExternalID     string
	RegionalID     string
	Gender         int
	Popularity     float64
	ProfilePath    string
	Source         SourceTag
}

// Outcome classifies how processing one item ended. Every item ends in
// exactly one of these.
type Outcome string

// Known outcomes.
const (
	OutcomeProcessed   Outcome = "processed"
	OutcomeNeedsReview Outcome = "needs-review"
	OutcomeFailed      Outcome = "failed"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeAborted     Outcome = "aborted"
)

// ErrAborted signals a cooperative stop. It aborts the session without
// committing pending work and is distinct from any failure.
var ErrAborted = errors.New("reconciliation aborted")

// IntegrityError reports that the item itself is missing data the pipeline
// requires, such as a primary provider id. The session aborts early.
type IntegrityError struct {
	ItemID string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("item %s: %s", e.ItemID, e.Reason)
}

// Result summarizes one processed item.
type Result struct {
	ItemID   string  `json:"item_id"`
	ItemName string  `json:"item_name"`
	Outcome  Outcome `json:"outcome"`
	Score    float64 `json:"score,omitempty"`
	Cast     int     `json:"cast,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// checkpoint is the suspension-point cancellation check, called before every
// blocking external call and at stage boundaries.
func checkpoint(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ErrAborted
	default:
		return nil
	}
}
