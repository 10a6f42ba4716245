package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
	"github.com/MikeSquared-Agency/debrief/internal/runner"
	"github.com/MikeSquared-Agency/debrief/internal/store"
)

// Runs is the aggregation the API serves and triggers.
type Runs interface {
	Latest() *runner.Report
	Run(ctx context.Context) (*runner.Report, error)
}

// History is the stored run history. Its routes are only mounted when one is
// configured.
type History interface {
	LatestRun(ctx context.Context) (*store.RunRow, error)
	SourceHistory(ctx context.Context, filename string, limit int) ([]mission.SourceSummary, error)
}

type Server struct {
	router  *chi.Mux
	port    int
	runs    Runs
	history History
	srv     *http.Server
}

// NewServer wires the routes. history and metrics may be nil to leave their
// routes unmounted.
func NewServer(port int, apiToken string, runs Runs, history History, metrics http.Handler) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:  router,
		port:    port,
		runs:    runs,
		history: history,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/debrief/status", s.status)
	router.Get("/api/v1/mission", s.mission)
	router.Get("/api/v1/mission/events", s.events)
	router.Get("/api/v1/mission/sources", s.sources)
	router.Get("/api/v1/metrics", s.metrics)
	if history != nil {
		router.Get("/api/v1/runs/latest", s.latestRun)
		router.Get("/api/v1/mission/sources/{file}/history", s.sourceHistory)
	}
	if metrics != nil {
		router.Handle("/metrics", metrics)
	}
	router.Group(func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/api/v1/aggregate", s.aggregate)
	})

	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.srv = &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	slog.Info("API server starting", "addr", addr)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"service": "debrief",
		"status":  "waiting",
	}
	if report := s.runs.Latest(); report != nil {
		body["status"] = "ready"
		body["mission"] = report.Mission.Name
		body["last_run"] = report.FinishedAt
		body["sources"] = len(report.Mission.Sources)
		body["failures"] = len(report.Failures)
		body["from_cache"] = report.FromCache
	}
	writeJSON(w, http.StatusOK, body)
}

// latest writes a 404 and returns nil before the first run.
func (s *Server) latest(w http.ResponseWriter) *runner.Report {
	report := s.runs.Latest()
	if report == nil || report.Mission == nil {
		writeError(w, http.StatusNotFound, "no mission aggregated yet")
		return nil
	}
	return report
}

func (s *Server) mission(w http.ResponseWriter, r *http.Request) {
	if report := s.latest(w); report != nil {
		writeJSON(w, http.StatusOK, report.Mission)
	}
}

// events handles GET /api/v1/mission/events?type=kill
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	report := s.latest(w)
	if report == nil {
		return
	}

	events := report.Mission.Events
	if q := r.URL.Query().Get("type"); q != "" {
		t, ok := mission.ParseEventType(q)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown event type %q", q))
			return
		}
		events = report.Mission.EventsOfType(t)
	}
	if events == nil {
		events = []mission.MergedEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

type sourceView struct {
	mission.SourceSummary
	Status        string `json:"status"`
	AnchorMatches int    `json:"anchorMatches,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func (s *Server) sources(w http.ResponseWriter, r *http.Request) {
	report := s.latest(w)
	if report == nil {
		return
	}
	views := make([]sourceView, len(report.Mission.Sources))
	for i, src := range report.Mission.Sources {
		views[i] = sourceView{SourceSummary: src, Status: src.StatusLine()}
		if res, ok := report.Resolution(src.ID); ok {
			views[i].AnchorMatches = res.AnchorMatches
			views[i].Reason = res.Reason
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": views, "failures": report.Failures})
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	if report := s.latest(w); report != nil {
		writeJSON(w, http.StatusOK, report.Mission.Metrics)
	}
}

// aggregate handles POST /api/v1/aggregate
func (s *Server) aggregate(w http.ResponseWriter, r *http.Request) {
	report, err := s.runs.Run(r.Context())
	if errors.Is(err, runner.ErrNoRecordings) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("aggregation failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   report.RunID,
		"mission":  report.Mission.Name,
		"metrics":  report.Mission.Metrics,
		"failures": report.Failures,
		"warnings": report.Warnings,
	})
}

// latestRun handles GET /api/v1/runs/latest
func (s *Server) latestRun(w http.ResponseWriter, r *http.Request) {
	row, err := s.history.LatestRun(r.Context())
	if errors.Is(err, store.ErrNoRuns) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		slog.Error("failed to load latest run", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load latest run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":     row.ID,
		"created_at": row.CreatedAt,
		"mission":    row.Mission,
		"failures":   row.Failures,
	})
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// sourceHistory handles GET /api/v1/mission/sources/{file}/history?limit=20
func (s *Server) sourceHistory(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	limit := defaultHistoryLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", q))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	history, err := s.history.SourceHistory(r.Context(), file, limit)
	if err != nil {
		slog.Error("failed to load source history", "file", file, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load source history")
		return
	}
	if history == nil {
		history = []mission.SourceSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": file, "history": history, "count": len(history)})
}
