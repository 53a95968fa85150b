// Package db stores the history of volume computations in SQLite. The schema
// is owned by golang-migrate; migrations are embedded in the binary.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/volume.report/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DevMode makes MigrationsFS read from internal/db/migrations on disk
// instead of the embedded copy, so new migrations can be tried without a
// rebuild.
var DevMode = false

// MigrationsFS returns the filesystem holding the *.sql migration files at
// its root.
func MigrationsFS() (fs.FS, error) {
	if DevMode {
		return os.DirFS("internal/db/migrations"), nil
	}
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return sub, nil
}

// DB wraps the SQLite handle.
type DB struct {
	*sql.DB

	clock timeutil.Clock
}

// pragmas are applied to every connection opened by OpenDB.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// OpenDB opens the database at path and applies pragmas without touching
// the schema. Use it for migration commands.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps the per-connection pragmas in force.
	sqlDB.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return &DB{DB: sqlDB, clock: timeutil.RealClock{}}, nil
}

// SetClock replaces the clock used to timestamp new runs.
func (db *DB) SetClock(c timeutil.Clock) {
	db.clock = c
}

// NewDB opens the database at path and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	migrations, err := MigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(migrations); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
