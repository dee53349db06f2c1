package translation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// execQuerier is satisfied by both *sql.DB and *sql.Tx.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Cache is the persistent translation cache keyed by original text.
type Cache struct {
	db execQuerier
}

// NewCache creates a Cache backed by the given database.
func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db}
}

// WithTx returns a Cache bound to the given transaction.
func (c *Cache) WithTx(tx *sql.Tx) *Cache {
	return &Cache{db: tx}
}

// Get returns the cached translation for the given original text.
// The second return value reports whether an entry exists.
func (c *Cache) Get(ctx context.Context, original string) (string, bool, error) {
	var translated string
	err := c.db.QueryRowContext(ctx,
		`SELECT translated_text FROM translation_cache WHERE original_text = ?`, original).
		Scan(&translated)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying translation cache: %w", err)
	}
	return translated, true, nil
}

// GetByTranslatedText returns the original texts whose cached translation
// equals the given value. Used to hunt down bad cache entries.
func (c *Cache) GetByTranslatedText(ctx context.Context, translated string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT original_text FROM translation_cache WHERE translated_text = ?`, translated)
	if err != nil {
		return nil, fmt.Errorf("querying translation cache by value: %w", err)
	}
	defer rows.Close()
	var originals []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, fmt.Errorf("scanning cache entry: %w", err)
		}
		originals = append(originals, o)
	}
	return originals, rows.Err()
}

// Put inserts or replaces a cache entry. A correction overwrites whatever
// was stored before.
func (c *Cache) Put(ctx context.Context, original, translated, engine string) error {
	if original == "" {
		return errors.New("putting translation: original text is required")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO translation_cache (original_text, translated_text, engine, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(original_text) DO UPDATE SET
			translated_text = excluded.translated_text,
			engine = excluded.engine,
			updated_at = excluded.updated_at`,
		original, translated, engine, now)
	if err != nil {
		return fmt.Errorf("putting translation for %q: %w", original, err)
	}
	return nil
}

// Delete removes a cache entry. Removing a missing entry is not an error.
func (c *Cache) Delete(ctx context.Context, original string) error {
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM translation_cache WHERE original_text = ?`, original); err != nil {
		return fmt.Errorf("deleting translation for %q: %w", original, err)
	}
	return nil
}
