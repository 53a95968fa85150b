// Package api serves volume computations and the run history over HTTP.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/volume.report/internal/db"
	"github.com/banshee-data/volume.report/internal/monitoring"
	"github.com/banshee-data/volume.report/internal/volume"
)

// ANSI escape codes for the request log
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxRequestBytes bounds POST bodies, which may carry inline grids.
const maxRequestBytes = 256 << 20

// Server handles the HTTP API. A nil database disables run storage and the
// /api/runs routes.
type Server struct {
	db      *db.DB
	calc    *volume.Calculator
	dataDir string
}

// NewServer returns a Server computing with calc. Path-based requests are
// resolved inside dataDir; an empty dataDir disables them.
func NewServer(database *db.DB, calc *volume.Calculator, dataDir string) *Server {
	return &Server{db: database, calc: calc, dataDir: dataDir}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes. Admin routes are attached separately with
// db.AttachAdminRoutes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/volume", s.handleCompute)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("DELETE /api/runs/{id}", s.handleDeleteRun)
	mux.HandleFunc("GET /api/runs/{id}/histogram", s.handleRunHistogram)
	mux.HandleFunc("GET /api/config", s.handleConfig)
	return mux
}
