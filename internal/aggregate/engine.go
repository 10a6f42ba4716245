package aggregate

import (
	"io"
	"log/slog"
	"sync"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

// Engine runs the aggregation passes over a closed set of recordings.
type Engine struct {
	opts    Options
	logger  *slog.Logger
	metrics Collector

	mu          sync.Mutex
	resolutions []Resolution
}

// New returns an Engine. A nil logger discards output.
func New(opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{opts: opts, logger: logger}
}

func (e *Engine) Options() Options { return e.opts }

// Run aggregates sources into a mission. Sources must be successfully
// ingested recordings in ingestion order; the first is the baseline unless
// Options.Baseline names another. The input slice is not modified.
func (e *Engine) Run(sources []mission.SourceRecording) *mission.AggregatedMission {
	e.metrics.Reset()

	if e.opts.Baseline != "" {
		if _, ok := SelectBaseline(sources, e.opts.Baseline); !ok && len(sources) > 0 {
			e.logger.Warn("configured baseline not among recordings, using first", "baseline", e.opts.Baseline)
		}
	}

	resolved, resolutions := ResolveOffsets(sources, e.opts)
	for _, r := range resolutions {
		e.logger.Debug("source offset resolved",
			"source", r.Filename,
			"strategy", r.Strategy,
			"offset", r.Offset,
			"anchor_matches", r.AnchorMatches,
			"reason", r.Reason,
		)
	}
	e.mu.Lock()
	e.resolutions = resolutions
	e.mu.Unlock()

	for _, s := range resolved {
		e.metrics.AddSource(s)
	}

	merged := Merge(resolved, e.opts)
	e.metrics.AddMerge(merged)

	explicit := ExplicitLinks(merged.Events, resolved)
	inferred := InferLinks(merged.Events, explicit, e.opts)
	e.metrics.AddLinks(inferred)

	m := Assemble(resolved, merged, explicit, inferred, e.metrics.Snapshot(), e.opts)
	e.logger.Debug("aggregation complete",
		"mission", m.Name,
		"sources", len(m.Sources),
		"raw_events", m.Metrics.RawEventCount,
		"merged_events", m.Metrics.MergedEvents,
		"duplicates_suppressed", m.Metrics.DuplicatesSuppressed,
		"inferred_links", m.Metrics.InferredLinks,
	)
	return m
}

// Metrics returns the counters of the latest run.
func (e *Engine) Metrics() mission.Metrics {
	return e.metrics.Snapshot()
}

// Resolutions returns how each source of the latest run was aligned.
func (e *Engine) Resolutions() []Resolution {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Resolution, len(e.resolutions))
	copy(out, e.resolutions)
	return out
}

// Aggregate is a one-shot Run with no logging.
func Aggregate(sources []mission.SourceRecording, opts Options) *mission.AggregatedMission {
	return New(opts, nil).Run(sources)
}
