package db

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/banshee-data/volume.report/internal/monitoring"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// TableStats is the row count of one table.
type TableStats struct {
	Name     string `json:"name"`
	RowCount int64  `json:"row_count"`
}

// DatabaseStats summarises the size and contents of the database.
type DatabaseStats struct {
	TotalSizeMB float64      `json:"total_size_mb"`
	Tables      []TableStats `json:"tables"`
}

// GetDatabaseStats returns the on-disk size and per-table row counts.
func (db *DB) GetDatabaseStats() (*DatabaseStats, error) {
	var pageCount, pageSize int64
	if err := db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("failed to read page_count: %w", err)
	}
	if err := db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("failed to read page_size: %w", err)
	}

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats := &DatabaseStats{TotalSizeMB: float64(pageCount*pageSize) / (1024 * 1024)}
	for _, name := range names {
		var n int64
		// Table names come from sqlite_master, not from the caller.
		if err := db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, name)).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count rows in %s: %w", name, err)
		}
		stats.Tables = append(stats.Tables, TableStats{Name: name, RowCount: n})
	}
	return stats, nil
}

// AttachAdminRoutes mounts the live SQL console, database statistics and a
// backup download under the /debug/ handler of mux.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://volume.db", db.DB, &tailsql.DBOptions{
		Label: "Volume runs",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("db-stats", "Database size and row counts", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := db.GetDatabaseStats()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to get database stats: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			monitoring.Logf("failed to encode database stats: %v", err)
		}
	}))

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.handleBackup))
	return nil
}

func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	now := db.clock.Now()
	name := fmt.Sprintf("volume-backup-%d.db", now.Unix())
	backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("%d-%s", now.UnixNano(), name))
	if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("Failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/octet-stream")

	gzipWriter := gzip.NewWriter(w)
	defer gzipWriter.Close()
	if _, err := io.Copy(gzipWriter, backupFile); err != nil {
		monitoring.Logf("Failed to write backup: %v", err)
	}
}
