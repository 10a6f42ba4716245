// Package runner orchestrates an aggregation run: discover recordings, ingest
// them, aggregate, then hand the mission to every configured collaborator.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/debrief/internal/aggregate"
	"github.com/MikeSquared-Agency/debrief/internal/cache"
	"github.com/MikeSquared-Agency/debrief/internal/hermes"
	"github.com/MikeSquared-Agency/debrief/internal/ingest"
	"github.com/MikeSquared-Agency/debrief/internal/mission"
	"github.com/MikeSquared-Agency/debrief/internal/store"
)

// ErrNoRecordings is returned when the glob matches no files.
var ErrNoRecordings = errors.New("no recordings found")

// Config holds the run configuration.
type Config struct {
	Glob     string // recordings to aggregate, e.g. debriefings/*.xml
	CacheDir string // empty disables the cache files
	Workers  int
	Options  aggregate.Options
}

// RunStore persists run history.
type RunStore interface {
	SaveRun(ctx context.Context, m *mission.AggregatedMission, failures []store.Failure) (uuid.UUID, error)
}

// Publisher announces finished runs on the bus.
type Publisher interface {
	PublishMissionAggregated(signal hermes.MissionAggregatedSignal) error
}

// Notifier posts the run summary for humans.
type Notifier interface {
	PostMissionSummary(ctx context.Context, m *mission.AggregatedMission, failures []string) (string, error)
}

// Observer records run metrics.
type Observer interface {
	Observe(m *mission.AggregatedMission, failures int, dur time.Duration)
}

// Deps are the optional collaborators of a Runner. Nil fields are skipped.
type Deps struct {
	Store     RunStore
	Publisher Publisher
	Notifier  Notifier
	Observer  Observer
}

// Failure is a recording excluded from a run.
type Failure struct {
	Index      int    `json:"index"`
	File       string `json:"file"`
	Error      string `json:"error"`
	Diagnostic string `json:"diagnostic"`
}

// Report describes one run.
type Report struct {
	RunID       uuid.UUID                  `json:"run_id"`
	Mission     *mission.AggregatedMission `json:"-"`
	Files       []string                   `json:"files"`
	Failures    []Failure                  `json:"failures"`
	Resolutions []aggregate.Resolution     `json:"resolutions,omitempty"` // empty for cached reports
	Warnings    []string                   `json:"warnings,omitempty"`
	Duration    time.Duration              `json:"duration"`
	FinishedAt  time.Time                  `json:"finished_at"`
	FromCache   bool                       `json:"from_cache,omitempty"`
}

// Resolution returns how the source with the given id was aligned.
func (r *Report) Resolution(sourceID string) (aggregate.Resolution, bool) {
	for _, res := range r.Resolutions {
		if res.SourceID == sourceID {
			return res, true
		}
	}
	return aggregate.Resolution{}, false
}

// Diagnostics returns the operator-facing failure lines.
func (r *Report) Diagnostics() []string {
	out := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.Diagnostic
	}
	return out
}

// Runner runs aggregations. Runs are serialized; the latest report is kept for
// readers such as the API.
type Runner struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	runMu  sync.Mutex
	mu     sync.RWMutex
	latest *Report
}

// New creates a runner.
func New(cfg Config, deps Deps, logger *slog.Logger) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Runner{cfg: cfg, deps: deps, logger: logger}
}

// Latest returns the most recent report, or nil before the first run.
func (r *Runner) Latest() *Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Discover returns the files matching the configured glob, sorted so that
// ingestion order and therefore baseline selection are stable.
func (r *Runner) Discover() ([]string, error) {
	files, err := filepath.Glob(r.cfg.Glob)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", r.cfg.Glob, err)
	}
	sort.Strings(files)
	return files, nil
}

// Run executes one aggregation. A failure to ingest a file, write the cache or
// reach a collaborator never fails the run; only discovery errors do.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	start := time.Now()
	files, err := r.Discover()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		r.logger.Warn("no recordings found", "glob", r.cfg.Glob)
		return nil, ErrNoRecordings
	}
	r.logger.Info("recordings discovered", "files", len(files), "glob", r.cfg.Glob)

	ingested := ingest.IngestAll(ctx, files, r.cfg.Workers)
	report := &Report{Files: files, Failures: []Failure{}}
	for _, res := range ingested.Failures() {
		f := Failure{
			Index:      res.Index + 1,
			File:       filepath.Base(res.Path),
			Error:      res.Err.Error(),
			Diagnostic: res.Diagnostic(),
		}
		r.logger.Warn(f.Diagnostic, "path", res.Path)
		report.Failures = append(report.Failures, f)
	}

	engine := aggregate.New(r.cfg.Options, r.logger)
	m := engine.Run(ingested.Recordings())
	report.Mission = m
	report.Resolutions = engine.Resolutions()
	for _, s := range m.Sources {
		r.logger.Info("source aligned", "source", s.StatusLine())
	}
	for _, res := range report.Resolutions {
		if res.Reason != "" {
			r.logger.Info("anchor matching rejected", "source", res.Filename, "strategy", res.Strategy, "reason", res.Reason)
		}
	}

	r.writeCache(report)
	r.saveRun(ctx, report)
	r.publish(report)
	r.notify(ctx, report)

	report.Duration = time.Since(start)
	report.FinishedAt = time.Now().UTC()
	if r.deps.Observer != nil {
		r.deps.Observer.Observe(m, len(report.Failures), report.Duration)
	}

	r.logger.Info("aggregation complete",
		"mission", m.Name,
		"sources", len(m.Sources),
		"failures", len(report.Failures),
		"raw_events", m.Metrics.RawEventCount,
		"merged_events", m.Metrics.MergedEvents,
		"duplicates_suppressed", m.Metrics.DuplicatesSuppressed,
		"inferred_links", m.Metrics.InferredLinks,
		"duration", report.Duration,
	)

	r.mu.Lock()
	r.latest = report
	r.mu.Unlock()
	return report, nil
}

func (r *Runner) warn(report *Report, msg string, err error) {
	r.logger.Warn(msg, "error", err)
	report.Warnings = append(report.Warnings, fmt.Sprintf("%s: %v", msg, err))
}

func (r *Runner) writeCache(report *Report) {
	if r.cfg.CacheDir == "" {
		return
	}
	failures := make([]cache.Failure, len(report.Failures))
	for i, f := range report.Failures {
		failures[i] = cache.Failure{Index: f.Index, File: f.File, Error: f.Error}
	}
	if _, err := cache.NewWriter(r.cfg.CacheDir).Write(report.Mission, report.Files, failures); err != nil {
		r.warn(report, "cache write failed", err)
		return
	}
	r.logger.Info("cache written", "dir", r.cfg.CacheDir)
}

func (r *Runner) saveRun(ctx context.Context, report *Report) {
	if r.deps.Store == nil {
		return
	}
	failures := make([]store.Failure, len(report.Failures))
	for i, f := range report.Failures {
		failures[i] = store.Failure{File: f.File, Error: f.Error}
	}
	id, err := r.deps.Store.SaveRun(ctx, report.Mission, failures)
	if err != nil {
		r.warn(report, "failed to save run", err)
		return
	}
	report.RunID = id
}

func (r *Runner) publish(report *Report) {
	if r.deps.Publisher == nil {
		return
	}
	runID := ""
	if report.RunID != uuid.Nil {
		runID = report.RunID.String()
	}
	signal := hermes.NewMissionAggregatedSignal(runID, report.Mission, report.Diagnostics())
	if err := r.deps.Publisher.PublishMissionAggregated(signal); err != nil {
		r.warn(report, "failed to publish mission", err)
	}
}

func (r *Runner) notify(ctx context.Context, report *Report) {
	if r.deps.Notifier == nil {
		return
	}
	if _, err := r.deps.Notifier.PostMissionSummary(ctx, report.Mission, report.Diagnostics()); err != nil {
		r.warn(report, "failed to post summary", err)
	}
}

// Warm makes a mission available without re-aggregating when the cache is
// current: if the recorded file hashes still match the discovered files, the
// cached document becomes the latest report. Otherwise it runs.
func (r *Runner) Warm(ctx context.Context) (*Report, error) {
	if r.cfg.CacheDir != "" {
		if report, ok := r.fromCache(); ok {
			r.mu.Lock()
			r.latest = report
			r.mu.Unlock()
			r.logger.Info("loaded mission from cache", "dir", r.cfg.CacheDir, "mission", report.Mission.Name)
			return report, nil
		}
	}
	return r.Run(ctx)
}

func (r *Runner) fromCache() (*Report, bool) {
	files, err := r.Discover()
	if err != nil || len(files) == 0 {
		return nil, false
	}
	meta, err := cache.ReadMeta(r.cfg.CacheDir)
	if err != nil {
		return nil, false
	}
	stale, err := meta.Stale(files)
	if err != nil || stale {
		return nil, false
	}
	doc, err := cache.Read(r.cfg.CacheDir)
	if err != nil {
		r.logger.Warn("ignoring unreadable cache", "error", err)
		return nil, false
	}

	report := &Report{
		Files:      files,
		Failures:   make([]Failure, len(doc.Failures)),
		FinishedAt: time.Unix(doc.Generated, 0).UTC(),
		FromCache:  true,
		Mission: &mission.AggregatedMission{
			Name:      doc.Mission.Name,
			StartTime: doc.Mission.StartTime,
			Duration:  doc.Mission.Duration,
			Events:    doc.Mission.Events,
			Links:     doc.Mission.Links,
			Sources:   doc.Mission.Sources,
			Metrics:   doc.Metrics,
		},
	}
	for i, f := range doc.Failures {
		report.Failures[i] = Failure{
			Index:      f.Index,
			File:       f.File,
			Error:      f.Error,
			Diagnostic: ingest.Diagnostic(f.Index, f.Error),
		}
	}
	return report, true
}

// HandleRecordingStored re-runs the aggregation when a stored recording falls
// under the glob.
func (r *Runner) HandleRecordingStored(evt hermes.RecordingStoredEvent) {
	if !r.matches(evt.Path) {
		r.logger.Debug("ignoring recording outside glob", "path", evt.Path)
		return
	}
	r.logger.Info("recording stored, re-aggregating", "path", evt.Path)
	if _, err := r.Run(context.Background()); err != nil {
		r.logger.Error("aggregation failed", "error", err)
	}
}

// matches reports whether path falls under the configured glob. Both sides
// are made absolute so a relative glob matches absolute event paths.
func (r *Runner) matches(path string) bool {
	glob := r.cfg.Glob
	if abs, err := filepath.Abs(glob); err == nil {
		glob = abs
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	ok, err := filepath.Match(glob, path)
	return err == nil && ok
}
