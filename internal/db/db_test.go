package db

import (
	"bytes"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testMigrations(t *testing.T) fs.FS {
	t.Helper()
	m, err := MigrationsFS()
	if err != nil {
		t.Fatalf("MigrationsFS() failed: %v", err)
	}
	return m
}

// TestPragmasApplied verifies that essential PRAGMAs are set on all databases
func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode=wal, got %s", journalMode)
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatalf("Failed to query busy_timeout: %v", err)
	}
	if busyTimeout != 5000 {
		t.Errorf("Expected busy_timeout=5000, got %d", busyTimeout)
	}

	var synchronous int
	if err := db.QueryRow("PRAGMA synchronous").Scan(&synchronous); err != nil {
		t.Fatalf("Failed to query synchronous: %v", err)
	}
	if synchronous != 1 { // 1 = NORMAL
		t.Errorf("Expected synchronous=1 (NORMAL), got %d", synchronous)
	}
}

// TestEmbeddedMigrationsFS verifies the embedded migrations are visible at
// the root of MigrationsFS.
func TestEmbeddedMigrationsFS(t *testing.T) {
	entries, err := fs.ReadDir(testMigrations(t), ".")
	if err != nil {
		t.Fatalf("Failed to read migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no embedded migrations")
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".sql") {
			t.Errorf("unexpected file %s", e.Name())
		}
	}

	latest, err := GetLatestMigrationVersion(testMigrations(t))
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	if latest != 2 {
		t.Errorf("latest migration = %d, want 2", latest)
	}
}

func TestNewDB_MigratesToLatest(t *testing.T) {
	db := newTestDB(t)
	m := testMigrations(t)

	version, dirty, err := db.MigrateVersion(m)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 || dirty {
		t.Errorf("version = %d dirty = %v, want 2 clean", version, dirty)
	}

	// Reopening an up-to-date database is a no-op.
	if err := db.MigrateUp(m); err != nil {
		t.Errorf("second MigrateUp failed: %v", err)
	}
}

func TestMigrateDownAndUp(t *testing.T) {
	db := newTestDB(t)
	m := testMigrations(t)

	if err := db.MigrateDown(m); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	version, _, err := db.MigrateVersion(m)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("version after down = %d, want 1", version)
	}

	if err := db.MigrateDown(m); err != nil {
		t.Fatalf("second MigrateDown failed: %v", err)
	}
	var tables int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='volume_runs'`).Scan(&tables); err != nil {
		t.Fatal(err)
	}
	if tables != 0 {
		t.Error("volume_runs should be dropped after rolling back every migration")
	}

	if err := db.MigrateUp(m); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	st, err := db.GetMigrationStatus(m)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if st.CurrentVersion != st.LatestVersion || !st.TableExists {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestOpenDB_NoSchema(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "bare.db"))
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer db.Close()

	st, err := db.GetMigrationStatus(testMigrations(t))
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if st.CurrentVersion != 0 {
		t.Errorf("fresh database version = %d, want 0", st.CurrentVersion)
	}
}

func TestRunMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	var out bytes.Buffer
	if err := RunMigrateCommand([]string{"up"}, dbPath, &out); err != nil {
		t.Fatalf("migrate up failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current version: 2") {
		t.Errorf("unexpected output: %s", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"status"}, dbPath, &out); err != nil {
		t.Fatalf("migrate status failed: %v", err)
	}
	if !strings.Contains(out.String(), "Latest available: 2") {
		t.Errorf("unexpected status output: %s", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"down"}, dbPath, &out); err != nil {
		t.Fatalf("migrate down failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current version: 1") {
		t.Errorf("unexpected output: %s", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"bogus"}, dbPath, &out); err == nil {
		t.Error("expected error for unknown action")
	}
	if !strings.Contains(out.String(), "Usage: volume migrate") {
		t.Error("unknown action should print help")
	}

	if err := RunMigrateCommand(nil, dbPath, &out); err == nil {
		t.Error("expected error for missing action")
	}
	if err := RunMigrateCommand([]string{"force"}, dbPath, &out); err == nil {
		t.Error("expected error for force without a version")
	}
	if err := RunMigrateCommand([]string{"help"}, dbPath, &out); err != nil {
		t.Errorf("help failed: %v", err)
	}
}
