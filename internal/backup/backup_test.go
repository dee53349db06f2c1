package backup

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.ExecContext(context.Background(), "CREATE TABLE test (id INTEGER PRIMARY KEY, value TEXT)")
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}
	_, err = db.ExecContext(context.Background(), "INSERT INTO test (value) VALUES ('hello')")
	if err != nil {
		t.Fatalf("inserting row: %v", err)
	}
	return db
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBackup(t *testing.T) {
	db := setupTestDB(t)
	backupDir := filepath.Join(t.TempDir(), "backups")
	svc := NewService(db, backupDir, 7, testLogger())

	info, err := svc.Backup(context.Background())
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if info.Filename == "" {
		t.Error("expected non-empty filename")
	}
	if info.Size == 0 {
		t.Error("expected non-zero file size")
	}

	// Verify the backup is a valid SQLite database
	backupDB, err := sql.Open("sqlite", filepath.Join(backupDir, info.Filename))
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer backupDB.Close()

	var value string
	err = backupDB.QueryRowContext(context.Background(), "SELECT value FROM test WHERE id = 1").Scan(&value)
	if err != nil {
		t.Fatalf("querying backup: %v", err)
	}
	if value != "hello" {
		t.Errorf("expected 'hello', got %q", value)
	}
}

func TestListBackups(t *testing.T) {
	db := setupTestDB(t)
	backupDir := filepath.Join(t.TempDir(), "backups")
	svc := NewService(db, backupDir, 7, testLogger())

	// Create 3 backups with small delays to get distinct timestamps
	for i := 0; i < 3; i++ {
		if _, err := svc.Backup(context.Background()); err != nil {
			t.Fatalf("Backup %d: %v", i, err)
		}
		time.Sleep(1100 * time.Millisecond)
	}

	backups, err := svc.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 3 {
		t.Fatalf("expected 3 backups, got %d", len(backups))
	}
	if !backups[0].CreatedAt.After(backups[1].CreatedAt) {
		t.Error("expected backups sorted by date descending")
	}
}

func TestPrune(t *testing.T) {
	db := setupTestDB(t)
	backupDir := filepath.Join(t.TempDir(), "backups")
	svc := NewService(db, backupDir, 2, testLogger())

	for i := 0; i < 4; i++ {
		if _, err := svc.Backup(context.Background()); err != nil {
			t.Fatalf("Backup %d: %v", i, err)
		}
		time.Sleep(1100 * time.Millisecond)
	}

	if err := svc.Prune(); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	backups, err := svc.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups after prune: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups after prune, got %d", len(backups))
	}
}

func TestListBackupsEmptyDir(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, filepath.Join(t.TempDir(), "nonexistent"), 7, testLogger())

	backups, err := svc.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("expected 0 backups, got %d", len(backups))
	}
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	backupDir := filepath.Join(t.TempDir(), "backups")
	svc := NewService(db, backupDir, 7, testLogger())

	info, err := svc.Backup(context.Background())
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	if err := svc.Delete(info.Filename); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	backups, err := svc.ListBackups()
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("expected 0 backups after delete, got %d", len(backups))
	}

	if err := svc.Delete("../evil.db"); err == nil {
		t.Error("expected error for invalid filename")
	}
	if err := svc.Delete("playbill-20260101-000000.db"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}
