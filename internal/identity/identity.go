// Package identity persists the mapping between the three person id
// namespaces and the cached person metadata used to synthesize cast members.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Person is one row of the identity map. PrimaryID is the canonical key;
// ExternalID and RegionalID are optional aliases in the other namespaces.
type Person struct {
	PrimaryID    string    `json:"primary_id"`
	Name         string    `json:"name"`
	OriginalName string    `json:"original_name,omitempty"`
	ExternalID   string    `json:"external_id,omitempty"`
	RegionalID   string    `json:"regional_id,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PersonMetadata is the cached per-person detail snapshot, enough to
// synthesize a cast member without another provider round trip.
type PersonMetadata struct {
	PrimaryID    string  `json:"primary_id"`
	OriginalName string  `json:"original_name,omitempty"`
	Gender       int     `json:"gender"`
	Popularity   float64 `json:"popularity"`
	ProfilePath  string  `json:"profile_path,omitempty"`
	Adult        bool    `json:"adult"`
}

const personColumns = `primary_id, name, original_name, external_id, regional_id, updated_at`

// execQuerier is satisfied by both *sql.DB and *sql.Tx.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides access to the identity map and metadata cache.
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

func scanPerson(row interface{ Scan(...any) error }) (*Person, error) {
	var p Person
	var originalName, externalID, regionalID sql.NullString
	var updatedAt string
	err := row.Scan(&p.PrimaryID, &p.Name, &originalName, &externalID, &regionalID, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.OriginalName = originalName.String
	p.ExternalID = externalID.String
	p.RegionalID = regionalID.String
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
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

// FindByPrimaryIDs returns the identity rows for the given primary ids,
// keyed by primary id. Missing ids are simply absent from the result.
func (s *Store) FindByPrimaryIDs(ctx context.Context, ids []string) (map[string]*Person, error) {
	result := make(map[string]*Person, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT %s FROM person_identity WHERE primary_id IN (%s)`, personColumns, placeholders)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying identities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning identity: %w", err)
		}
		result[p.PrimaryID] = p
	}
	return result, rows.Err()
}

// FindByRegionalID looks up an identity by its regional id.
// Returns nil if no mapping exists.
func (s *Store) FindByRegionalID(ctx context.Context, regionalID string) (*Person, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM person_identity WHERE regional_id = ?`, regionalID)
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying identity by regional id: %w", err)
	}
	return p, nil
}

// FindByExternalID looks up an identity by its external id.
// Returns nil if no mapping exists.
func (s *Store) FindByExternalID(ctx context.Context, externalID string) (*Person, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+personColumns+` FROM person_identity WHERE external_id = ?`, externalID)
	p, err := scanPerson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying identity by external id: %w", err)
	}
	return p, nil
}

// Upsert inserts or merges an identity row. Non-empty fields overwrite,
// empty fields preserve whatever is already stored, so repeated upserts
// from partial sources never erase known aliases.
func (s *Store) Upsert(ctx context.Context, p *Person) error {
	if p.PrimaryID == "" {
		return errors.New("upserting identity: primary id is required")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO person_identity (primary_id, name, original_name, external_id, regional_id, created_at, updated_at)
		VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?)
		ON CONFLICT(primary_id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE person_identity.name END,
			original_name = COALESCE(excluded.original_name, person_identity.original_name),
			external_id = COALESCE(excluded.external_id, person_identity.external_id),
			regional_id = COALESCE(excluded.regional_id, person_identity.regional_id),
			updated_at = excluded.updated_at`,
		p.PrimaryID, p.Name, p.OriginalName, p.ExternalID, p.RegionalID, now, now)
	if err != nil {
		return fmt.Errorf("upserting identity %s: %w", p.PrimaryID, err)
	}
	return nil
}

// Metadata returns the cached metadata snapshot for a person, or nil when
// none is cached.
func (s *Store) Metadata(ctx context.Context, primaryID string) (*PersonMetadata, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT primary_id, original_name, gender, popularity, profile_path, adult
		FROM person_metadata WHERE primary_id = ?`, primaryID)
	var m PersonMetadata
	var originalName, profilePath sql.NullString
	var adult int
	err := row.Scan(&m.PrimaryID, &originalName, &m.Gender, &m.Popularity, &profilePath, &adult)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying person metadata: %w", err)
	}
	m.OriginalName = originalName.String
	m.ProfilePath = profilePath.String
	m.Adult = adult == 1
	return &m, nil
}

// SaveMetadata inserts or replaces the metadata snapshot for a person.
func (s *Store) SaveMetadata(ctx context.Context, m *PersonMetadata) error {
	if m.PrimaryID == "" {
		return errors.New("saving person metadata: primary id is required")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO person_metadata (primary_id, original_name, gender, popularity, profile_path, adult, updated_at)
		VALUES (?, NULLIF(?, ''), ?, ?, NULLIF(?, ''), ?, ?)
		ON CONFLICT(primary_id) DO UPDATE SET
			original_name = COALESCE(excluded.original_name, person_metadata.original_name),
			gender = excluded.gender,
			popularity = excluded.popularity,
			profile_path = COALESCE(excluded.profile_path, person_metadata.profile_path),
			adult = excluded.adult,
			updated_at = excluded.updated_at`,
		m.PrimaryID, m.OriginalName, m.Gender, m.Popularity, m.ProfilePath, boolToInt(m.Adult), now)
	if err != nil {
		return fmt.Errorf("saving person metadata %s: %w", m.PrimaryID, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
