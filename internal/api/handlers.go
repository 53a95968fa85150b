package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/volume.report/internal/db"
	"github.com/banshee-data/volume.report/internal/httputil"
	"github.com/banshee-data/volume.report/internal/monitoring"
	"github.com/banshee-data/volume.report/internal/raster"
	"github.com/banshee-data/volume.report/internal/region"
	"github.com/banshee-data/volume.report/internal/report"
	"github.com/banshee-data/volume.report/internal/security"
	"github.com/banshee-data/volume.report/internal/version"
	"github.com/banshee-data/volume.report/internal/volume"
	"github.com/ctessum/geom"
)

// errInvalidRequest marks failures caused by the request itself.
var errInvalidRequest = errors.New("invalid request")

// computeRequest names each input either by a path relative to the data
// directory or inline. Exactly one form is allowed per input.
type computeRequest struct {
	Label string `json:"label"`

	DEMPath     string `json:"dem_path"`
	BaseDEMPath string `json:"base_dem_path"`
	PolygonPath string `json:"polygon_path"`

	DEMASC         string          `json:"dem_asc"`
	BaseDEMASC     string          `json:"base_dem_asc"`
	PolygonGeoJSON json.RawMessage `json:"polygon_geojson"`

	// FillRule overrides the server's configured rule for this request.
	FillRule string `json:"fill_rule"`

	// Store defaults to true when the server has a database.
	Store *bool `json:"store"`
}

type computeResponse struct {
	RunID       string             `json:"run_id,omitempty"`
	Outputs     map[string]float64 `json:"outputs"`
	Result      volume.Result      `json:"result"`
	Warning     string             `json:"warning,omitempty"`
	Diagnostics volume.Diagnostics `json:"diagnostics"`
	Feedback    []string           `json:"feedback"`
}

func (s *Server) handleCompute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	var req computeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	calc := s.calc
	if req.FillRule != "" {
		rule, err := raster.ParseFillRule(req.FillRule)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		opts := s.calc.Options()
		opts.FillRule = rule
		calc = volume.NewCalculator(opts)
	}

	dem, err := s.loadGrid("dem", req.DEMPath, req.DEMASC)
	if err != nil {
		s.writeComputeError(w, err)
		return
	}
	base, err := s.loadGrid("base_dem", req.BaseDEMPath, req.BaseDEMASC)
	if err != nil {
		s.writeComputeError(w, err)
		return
	}
	poly, err := s.loadPolygon(req.PolygonPath, req.PolygonGeoJSON)
	if err != nil {
		s.writeComputeError(w, err)
		return
	}

	rec := monitoring.NewRecorder(monitoring.Logf)
	analysis, err := calc.ComputeWithFeedback(r.Context(), dem, base, poly, rec.Logf)
	if err != nil {
		s.writeComputeError(w, err)
		return
	}

	resp := computeResponse{
		Outputs:     analysis.Result.Outputs(),
		Result:      analysis.Result,
		Diagnostics: analysis.Diagnostics,
		Feedback:    rec.Lines(),
	}
	if analysis.Result.Warning != nil {
		resp.Warning = analysis.Result.Warning.Error()
	}

	if s.db != nil && (req.Store == nil || *req.Store) {
		run := db.NewRun(req.Label, analysis, calc.Options().FillRule.String(), resp.Feedback)
		run.DEMPath = optionalString(req.DEMPath)
		run.BaseDEMPath = optionalString(req.BaseDEMPath)
		run.PolygonPath = optionalString(req.PolygonPath)
		if err := s.db.InsertRun(run); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to store run: %v", err))
			return
		}
		resp.RunID = run.RunID
	}

	httputil.WriteJSONOK(w, resp)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// loadGrid reads one ASCII grid from the data directory or from inline text.
func (s *Server) loadGrid(name, path, inline string) (*raster.Grid, error) {
	switch {
	case path != "" && inline != "":
		return nil, fmt.Errorf("%w: give either %s_path or %s_asc, not both", errInvalidRequest, name, name)
	case path != "":
		full, err := s.resolve(path)
		if err != nil {
			return nil, err
		}
		return raster.LoadASCIIGrid(full)
	case inline != "":
		g, err := raster.ReadASCIIGrid(strings.NewReader(inline))
		if err != nil {
			return nil, &raster.InputLoadError{Path: name + "_asc", Err: err}
		}
		return g, nil
	default:
		return nil, fmt.Errorf("%w: %s_path or %s_asc is required", errInvalidRequest, name, name)
	}
}

// loadPolygon reads the region from the data directory or inline GeoJSON.
// Inline GeoJSON may be an object or a string holding one.
func (s *Server) loadPolygon(path string, inline json.RawMessage) (geom.Polygon, error) {
	hasInline := len(inline) > 0 && string(inline) != "null"
	switch {
	case path != "" && hasInline:
		return nil, fmt.Errorf("%w: give either polygon_path or polygon_geojson, not both", errInvalidRequest)
	case path != "":
		full, err := s.resolve(path)
		if err != nil {
			return nil, err
		}
		return region.Load(full)
	case hasInline:
		b := []byte(inline)
		var text string
		if err := json.Unmarshal(inline, &text); err == nil {
			b = []byte(text)
		}
		poly, err := region.Decode(b)
		if err != nil {
			return nil, &raster.InputLoadError{Path: "polygon_geojson", Err: err}
		}
		return poly, nil
	default:
		return nil, fmt.Errorf("%w: polygon_path or polygon_geojson is required", errInvalidRequest)
	}
}

func (s *Server) resolve(rel string) (string, error) {
	if s.dataDir == "" {
		return "", fmt.Errorf("%w: path inputs are disabled (no data directory)", errInvalidRequest)
	}
	full, err := security.ResolveDataPath(s.dataDir, rel)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return full, nil
}

// writeComputeError maps computation failures onto status codes: grids that
// cannot be combined are 422, bad or unreadable input is 400.
func (s *Server) writeComputeError(w http.ResponseWriter, err error) {
	var shapeErr *raster.ShapeMismatchError
	var loadErr *raster.InputLoadError
	switch {
	case errors.As(err, &shapeErr):
		httputil.UnprocessableEntity(w, "shape_mismatch", err.Error())
	case errors.Is(err, raster.ErrTransformMismatch):
		httputil.UnprocessableEntity(w, "transform_mismatch", err.Error())
	case errors.Is(err, raster.ErrSpatialRefMismatch):
		httputil.UnprocessableEntity(w, "spatial_ref_mismatch", err.Error())
	case errors.Is(err, raster.ErrRotatedTransform):
		httputil.UnprocessableEntity(w, "rotated_transform", err.Error())
	case errors.Is(err, volume.ErrVolumeOverflow):
		httputil.UnprocessableEntity(w, "volume_overflow", err.Error())
	case errors.As(err, &loadErr):
		httputil.WriteJSONErrorKind(w, http.StatusBadRequest, "input_load", err.Error())
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, volume.ErrInvalidCellArea),
		errors.Is(err, region.ErrNotPolygon),
		errors.Is(err, region.ErrMultiplePolygons):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		monitoring.Logf("volume computation failed: %v", err)
		httputil.InternalServerError(w, err.Error())
	}
}

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "run history is disabled")
		return false
	}
	return true
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	limit := db.DefaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 || n > 1000 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = n
	}

	runs, err := s.db.ListRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to list runs: %v", err))
		return
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) (*db.Run, bool) {
	if !s.requireDB(w) {
		return nil, false
	}
	run, err := s.db.GetRun(r.PathValue("id"))
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, "run not found")
		return nil, false
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to get run: %v", err))
		return nil, false
	}
	return run, true
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if run, ok := s.getRun(w, r); ok {
		httputil.WriteJSONOK(w, run)
	}
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	err := s.db.DeleteRun(r.PathValue("id"))
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, "run not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to delete run: %v", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunHistogram(w http.ResponseWriter, r *http.Request) {
	run, ok := s.getRun(w, r)
	if !ok {
		return
	}
	title := run.Label
	if title == "" {
		title = "Run " + run.RunID
	}

	var buf bytes.Buffer
	if err := report.RenderHistogram(&buf, run.Diagnostics.Histogram, title); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	if r.URL.Query().Get("download") != "" {
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%s-histogram.html", security.SanitizeFilename(title)))
	}
	httputil.WriteHTML(w, buf.Bytes())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	opts := s.calc.Options()
	cfg := map[string]interface{}{
		"fill_rule":      opts.FillRule.String(),
		"chunk_rows":     opts.ChunkRows,
		"histogram_bins": opts.HistogramBins,
		"path_inputs":    s.dataDir != "",
		"store_runs":     s.db != nil,
		"version":        version.Version,
	}
	if opts.CellArea != nil {
		cfg["cell_area"] = *opts.CellArea
	}
	httputil.WriteJSONOK(w, cfg)
}
