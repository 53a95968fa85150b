package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/volume.report/internal/volume"
	"github.com/google/uuid"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// DefaultListLimit caps ListRuns when the caller passes a non-positive limit.
const DefaultListLimit = 50

// Run is one recorded volume computation.
type Run struct {
	RunID       string    `json:"run_id"`
	CreatedAt   time.Time `json:"created_at"`
	Label       string    `json:"label"`
	DEMPath     *string   `json:"dem_path,omitempty"`
	BaseDEMPath *string   `json:"base_dem_path,omitempty"`
	PolygonPath *string   `json:"polygon_path,omitempty"`
	Rows        int       `json:"rows"`
	Cols        int       `json:"cols"`
	FillRule    string    `json:"fill_rule"`

	Result      volume.Result      `json:"result"`
	Warning     string             `json:"warning,omitempty"`
	Diagnostics volume.Diagnostics `json:"diagnostics"`
	Feedback    []string           `json:"feedback"`
}

// NewRun builds a Run from a finished analysis. RunID and CreatedAt are
// assigned by InsertRun.
func NewRun(label string, a *volume.Analysis, fillRule string, feedback []string) *Run {
	r := &Run{
		Label:       label,
		FillRule:    fillRule,
		Result:      a.Result,
		Diagnostics: a.Diagnostics,
		Feedback:    feedback,
	}
	if a.Difference != nil {
		r.Rows, r.Cols = a.Difference.Rows, a.Difference.Cols
	}
	if a.Result.Warning != nil {
		r.Warning = a.Result.Warning.Error()
	}
	return r
}

// InsertRun stores run, assigning a new run id and creation time.
func (db *DB) InsertRun(run *Run) error {
	run.RunID = uuid.New().String()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = db.clock.Now()
	}

	// The histogram is stored on its own so it can be charted without
	// decoding the full diagnostics.
	diag := run.Diagnostics
	hist := diag.Histogram
	diag.Histogram = volume.Histogram{}

	diagJSON, err := json.Marshal(diag)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}
	histJSON, err := json.Marshal(hist)
	if err != nil {
		return fmt.Errorf("failed to marshal histogram: %w", err)
	}
	feedback := run.Feedback
	if feedback == nil {
		feedback = []string{}
	}
	feedbackJSON, err := json.Marshal(feedback)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}

	var warning sql.NullString
	if run.Warning != "" {
		warning = sql.NullString{String: run.Warning, Valid: true}
	}

	_, err = db.Exec(`
		INSERT INTO volume_runs (
			run_id, created_at, label, dem_path, base_dem_path, polygon_path,
			rows, cols, cell_area, fill_rule, masked_cells, valid_cells,
			cut_volume, fill_volume, net_volume, warning,
			diagnostics_json, histogram_json, feedback_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.CreatedAt.UnixNano(), run.Label,
		run.DEMPath, run.BaseDEMPath, run.PolygonPath,
		run.Rows, run.Cols, run.Result.CellArea, run.FillRule,
		run.Diagnostics.MaskedCells, run.Result.ValidCells,
		run.Result.Cut, run.Result.Fill, run.Result.Net, warning,
		string(diagJSON), string(histJSON), string(feedbackJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

const runColumns = `
	run_id, created_at, label, dem_path, base_dem_path, polygon_path,
	rows, cols, cell_area, fill_rule, masked_cells, valid_cells,
	cut_volume, fill_volume, net_volume, warning,
	diagnostics_json, histogram_json, feedback_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (*Run, error) {
	var (
		r                               Run
		createdNanos                    int64
		demPath, basePath, polygonPath  sql.NullString
		warning                         sql.NullString
		maskedCells                     int
		diagJSON, histJSON, feedbackRaw string
	)
	if err := s.Scan(
		&r.RunID, &createdNanos, &r.Label, &demPath, &basePath, &polygonPath,
		&r.Rows, &r.Cols, &r.Result.CellArea, &r.FillRule, &maskedCells, &r.Result.ValidCells,
		&r.Result.Cut, &r.Result.Fill, &r.Result.Net, &warning,
		&diagJSON, &histJSON, &feedbackRaw,
	); err != nil {
		return nil, err
	}

	r.CreatedAt = time.Unix(0, createdNanos)
	if demPath.Valid {
		r.DEMPath = &demPath.String
	}
	if basePath.Valid {
		r.BaseDEMPath = &basePath.String
	}
	if polygonPath.Valid {
		r.PolygonPath = &polygonPath.String
	}
	if warning.Valid {
		r.Warning = warning.String
	}

	if err := json.Unmarshal([]byte(diagJSON), &r.Diagnostics); err != nil {
		return nil, fmt.Errorf("failed to decode diagnostics for run %s: %w", r.RunID, err)
	}
	if err := json.Unmarshal([]byte(histJSON), &r.Diagnostics.Histogram); err != nil {
		return nil, fmt.Errorf("failed to decode histogram for run %s: %w", r.RunID, err)
	}
	if err := json.Unmarshal([]byte(feedbackRaw), &r.Feedback); err != nil {
		return nil, fmt.Errorf("failed to decode feedback for run %s: %w", r.RunID, err)
	}
	r.Diagnostics.MaskedCells = maskedCells
	return &r, nil
}

// GetRun retrieves a run by id.
func (db *DB) GetRun(runID string) (*Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM volume_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := db.Query(`SELECT `+runColumns+` FROM volume_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// DeleteRun removes a run. It returns ErrRunNotFound when nothing matched.
func (db *DB) DeleteRun(runID string) error {
	res, err := db.Exec(`DELETE FROM volume_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}
