// Package runlog records which items a run has handled and which ones need
// a human decision.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ReviewEntry is one item waiting for manual review.
type ReviewEntry struct {
	ItemID     string    `json:"item_id"`
	ItemName   string    `json:"item_name"`
	ItemType   string    `json:"item_type"`
	Reason     string    `json:"reason"`
	Score      float64   `json:"score"`
	RecordedAt time.Time `json:"recorded_at"`
}

// execQuerier is satisfied by both *sql.DB and *sql.Tx.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides access to the processed and review logs.
type Store struct {
	db execQuerier
}

// NewStore creates a Store backed by the given database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a Store bound to the given transaction.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: tx}
}

// MarkProcessed records a successful run for an item and clears any review
// entry it had.
func (s *Store) MarkProcessed(ctx context.Context, itemID, itemName, itemType string, score float64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_log (item_id, item_name, item_type, score, processed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			item_name = excluded.item_name,
			item_type = excluded.item_type,
			score = excluded.score,
			processed_at = excluded.processed_at`,
		itemID, itemName, itemType, score, now)
	if err != nil {
		return fmt.Errorf("marking item %s processed: %w", itemID, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM review_log WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("clearing review entry for %s: %w", itemID, err)
	}
	return nil
}

// MarkReview flags an item for manual review and removes it from the
// processed log so the next run picks it up again.
func (s *Store) MarkReview(ctx context.Context, itemID, itemName, itemType, reason string, score float64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_log (item_id, item_name, item_type, reason, score, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			item_name = excluded.item_name,
			item_type = excluded.item_type,
			reason = excluded.reason,
			score = excluded.score,
			recorded_at = excluded.recorded_at`,
		itemID, itemName, itemType, reason, score, now)
	if err != nil {
		return fmt.Errorf("marking item %s for review: %w", itemID, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM processed_log WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("clearing processed entry for %s: %w", itemID, err)
	}
	return nil
}

// RemoveReview drops an item from the review log.
func (s *Store) RemoveReview(ctx context.Context, itemID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM review_log WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("removing review entry for %s: %w", itemID, err)
	}
	return nil
}

// ProcessedIDs returns the ids of all processed items, for skip checks
// during a full-library run.
func (s *Store) ProcessedIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT item_id FROM processed_log`)
	if err != nil {
		return nil, fmt.Errorf("querying processed log: %w", err)
	}
	defer rows.Close()
	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning processed id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// ListReview returns a page of review entries, newest first, plus the total
// count.
func (s *Store) ListReview(ctx context.Context, limit, offset int) ([]ReviewEntry, int, error) {
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM review_log`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting review log: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, item_name, item_type, reason, score, recorded_at
		FROM review_log ORDER BY recorded_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("querying review log: %w", err)
	}
	defer rows.Close()

	var entries []ReviewEntry
	for rows.Next() {
		var e ReviewEntry
		var recordedAt string
		if err := rows.Scan(&e.ItemID, &e.ItemName, &e.ItemType, &e.Reason, &e.Score, &recordedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning review entry: %w", err)
		}
		e.RecordedAt = parseTime(recordedAt)
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// ClearProcessed empties the processed log so the next full run revisits
// every item.
func (s *Store) ClearProcessed(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM processed_log`); err != nil {
		return fmt.Errorf("clearing processed log: %w", err)
	}
	return nil
}

// parseTime parses a time string, handling both RFC3339 and SQLite datetime formats.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
