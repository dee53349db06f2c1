package identity

import (
	"context"
	"database/sql"
	"testing"

	"github.com/sydlexius/playbill/internal/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUpsertAndLookup(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	p := &Person{PrimaryID: "500", Name: "Tom Hanks", ExternalID: "nm0000158", RegionalID: "1054531"}
	if err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := store.FindByRegionalID(ctx, "1054531")
	if err != nil {
		t.Fatalf("FindByRegionalID: %v", err)
	}
	if got == nil || got.PrimaryID != "500" || got.ExternalID != "nm0000158" {
		t.Fatalf("FindByRegionalID = %+v", got)
	}

	got, err = store.FindByExternalID(ctx, "nm0000158")
	if err != nil {
		t.Fatalf("FindByExternalID: %v", err)
	}
	if got == nil || got.PrimaryID != "500" {
		t.Fatalf("FindByExternalID = %+v", got)
	}
}

func TestLookupMissReturnsNil(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	got, err := store.FindByRegionalID(ctx, "nope")
	if err != nil || got != nil {
		t.Fatalf("FindByRegionalID miss = %+v, %v", got, err)
	}
	got, err = store.FindByExternalID(ctx, "nope")
	if err != nil || got != nil {
		t.Fatalf("FindByExternalID miss = %+v, %v", got, err)
	}
	meta, err := store.Metadata(ctx, "nope")
	if err != nil || meta != nil {
		t.Fatalf("Metadata miss = %+v, %v", meta, err)
	}
}

func TestUpsertMergePreservesKnownAliases(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	if err := store.Upsert(ctx, &Person{PrimaryID: "500", Name: "Tom Hanks", ExternalID: "nm0000158"}); err != nil {
		t.Fatalf("first Upsert: %v", err)
	}
	// A later upsert with only a regional id must not erase the external id.
	if err := store.Upsert(ctx, &Person{PrimaryID: "500", Name: "汤姆·汉克斯", RegionalID: "1054531"}); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	got, err := store.FindByPrimaryIDs(ctx, []string{"500"})
	if err != nil {
		t.Fatalf("FindByPrimaryIDs: %v", err)
	}
	p := got["500"]
	if p == nil {
		t.Fatal("person missing after merge")
	}
	if p.Name != "汤姆·汉克斯" {
		t.Errorf("Name = %q, want overwritten value", p.Name)
	}
	if p.ExternalID != "nm0000158" {
		t.Errorf("ExternalID = %q, want preserved", p.ExternalID)
	}
	if p.RegionalID != "1054531" {
		t.Errorf("RegionalID = %q, want merged", p.RegionalID)
	}
}

func TestUpsertIdempotent(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	p := &Person{PrimaryID: "17", Name: "Anne Hathaway", ExternalID: "nm0004266"}
	for i := 0; i < 3; i++ {
		if err := store.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert %d: %v", i, err)
		}
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM person_identity`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want 1", count)
	}
}

func TestFindByPrimaryIDsBatch(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	for _, p := range []*Person{
		{PrimaryID: "1", Name: "A"},
		{PrimaryID: "2", Name: "B"},
	} {
		if err := store.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	got, err := store.FindByPrimaryIDs(ctx, []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("FindByPrimaryIDs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if _, ok := got["3"]; ok {
		t.Error("missing id should be absent from result")
	}

	empty, err := store.FindByPrimaryIDs(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty batch = %v, %v", empty, err)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	m := &PersonMetadata{PrimaryID: "500", OriginalName: "Tom Hanks", Gender: 2, Popularity: 84.2, ProfilePath: "/abc.jpg"}
	if err := store.SaveMetadata(ctx, m); err != nil {
		t.Fatalf("SaveMetadata: %v", err)
	}

	got, err := store.Metadata(ctx, "500")
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if got == nil || got.OriginalName != "Tom Hanks" || got.Gender != 2 || got.Popularity != 84.2 {
		t.Fatalf("Metadata = %+v", got)
	}
	if got.Adult {
		t.Error("Adult should be false")
	}
}

func TestWithTxVisibility(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	err := database.WithTx(ctx, db, func(tx *sql.Tx) error {
		txStore := store.WithTx(tx)
		if err := txStore.Upsert(ctx, &Person{PrimaryID: "9", Name: "In Tx", RegionalID: "r9"}); err != nil {
			return err
		}
		// The write must be visible to later reads inside the same transaction.
		p, err := txStore.FindByRegionalID(ctx, "r9")
		if err != nil {
			return err
		}
		if p == nil || p.PrimaryID != "9" {
			t.Errorf("within-tx read = %+v", p)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	p, err := store.FindByRegionalID(ctx, "r9")
	if err != nil || p == nil {
		t.Fatalf("post-commit read = %+v, %v", p, err)
	}
}
