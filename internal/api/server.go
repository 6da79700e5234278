// Package api serves the planner's admin JSON endpoints: effective tuning,
// recorded runs and the latest live decision.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/highway.planner/internal/config"
	"github.com/banshee-data/highway.planner/internal/db"
	"github.com/banshee-data/highway.planner/internal/httputil"
	"github.com/banshee-data/highway.planner/internal/monitoring"
	"github.com/banshee-data/highway.planner/internal/planner"
	"github.com/banshee-data/highway.planner/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultCycleLimit caps /api/runs/{id}/cycles when no limit is given.
const DefaultCycleLimit = 500

// LatestSource provides the most recent live decision.
type LatestSource interface {
	Latest() (planner.Decision, bool)
}

type Server struct {
	db     *db.DB
	tuning *config.TuningConfig
	latest LatestSource
	units  string
}

// NewServer returns an admin API server. database and latest may be nil; the
// endpoints that need them then answer 503.
func NewServer(database *db.DB, tuning *config.TuningConfig, latest LatestSource, displayUnits string) *Server {
	if !units.IsValid(displayUnits) {
		displayUnits = units.MPS
	}
	return &Server{
		db:     database,
		tuning: tuning,
		latest: latest,
		units:  displayUnits,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
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

// LoggingMiddleware logs method, path, query, status, and duration on the
// diag stream.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Diagf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/config", s.showConfig)
	mux.HandleFunc("GET /api/latest", s.showLatest)
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.showRun)
	mux.HandleFunc("GET /api/runs/{id}/cycles", s.listCycles)
	mux.HandleFunc("GET /api/runs/{id}/cycles/{cycle}/candidates", s.listCandidates)
	mux.HandleFunc("GET /api/runs/{id}/summary", s.showSummary)
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

// displayUnits resolves ?units= against the server default.
func (s *Server) displayUnits(w http.ResponseWriter, r *http.Request) (string, bool) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, true
	}
	if !units.IsValid(u) {
		httputil.BadRequest(w, fmt.Sprintf("Invalid 'units' parameter. Must be one of: %s", units.GetValidUnitsString()))
		return "", false
	}
	return u, true
}

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "decision recording is disabled")
		return false
	}
	return true
}

// writeDBError maps a missing run to 404 and everything else to 500.
func (s *Server) writeDBError(w http.ResponseWriter, what string, err error) {
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	monitoring.Opsf("[api] failed to retrieve %s: %v", what, err)
	httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve %s: %v", what, err))
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Units  string               `json:"units"`
		Tuning *config.TuningConfig `json:"tuning"`
	}{
		Units:  s.units,
		Tuning: s.tuning,
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) showLatest(w http.ResponseWriter, r *http.Request) {
	u, ok := s.displayUnits(w, r)
	if !ok {
		return
	}
	if s.latest == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no live decision history")
		return
	}
	d, ok := s.latest.Latest()
	if !ok {
		httputil.NotFound(w, "no decisions yet")
		return
	}
	httputil.WriteJSONOK(w, convertDecision(d, u))
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	runs, err := s.db.Runs(r.Context())
	if err != nil {
		s.writeDBError(w, "runs", err)
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	run, err := s.db.Run(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDBError(w, "run", err)
		return
	}
	httputil.WriteJSONOK(w, run)
}

func (s *Server) listCycles(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	u, ok := s.displayUnits(w, r)
	if !ok {
		return
	}
	limit, err := httputil.QueryInt(r, "limit", DefaultCycleLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	cycles, err := s.db.Cycles(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.writeDBError(w, "cycles", err)
		return
	}
	for i := range cycles {
		cycles[i].Speed = units.ConvertSpeed(cycles[i].Speed, u)
		cycles[i].TargetSpeed = units.ConvertSpeed(cycles[i].TargetSpeed, u)
	}
	if cycles == nil {
		cycles = []db.CycleRecord{}
	}
	httputil.WriteJSONOK(w, cycles)
}

func (s *Server) listCandidates(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	u, ok := s.displayUnits(w, r)
	if !ok {
		return
	}
	cycle, err := strconv.Atoi(r.PathValue("cycle"))
	if err != nil || cycle < 1 {
		httputil.BadRequest(w, "Invalid cycle number")
		return
	}

	candidates, err := s.db.Candidates(r.Context(), r.PathValue("id"), cycle)
	if err != nil {
		s.writeDBError(w, "candidates", err)
		return
	}
	if len(candidates) == 0 {
		httputil.NotFound(w, fmt.Sprintf("no candidates for cycle %d", cycle))
		return
	}
	for i := range candidates {
		candidates[i].Speed = units.ConvertSpeed(candidates[i].Speed, u)
	}
	httputil.WriteJSONOK(w, candidates)
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	u, ok := s.displayUnits(w, r)
	if !ok {
		return
	}
	sum, err := s.db.RunSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDBError(w, "run summary", err)
		return
	}
	sum.MeanSpeed = units.ConvertSpeed(sum.MeanSpeed, u)
	sum.StdDevSpeed = units.ConvertSpeed(sum.StdDevSpeed, u)
	sum.MaxSpeed = units.ConvertSpeed(sum.MaxSpeed, u)
	httputil.WriteJSONOK(w, sum)
}

// convertDecision returns a copy of d with speeds in u. Candidates are
// copied so the history ring is not modified.
func convertDecision(d planner.Decision, u string) planner.Decision {
	d.Speed = units.ConvertSpeed(d.Speed, u)
	d.TargetSpeed = units.ConvertSpeed(d.TargetSpeed, u)
	candidates := make([]planner.Candidate, len(d.Candidates))
	for i, c := range d.Candidates {
		c.Speed = units.ConvertSpeed(c.Speed, u)
		candidates[i] = c
	}
	d.Candidates = candidates
	return d
}
