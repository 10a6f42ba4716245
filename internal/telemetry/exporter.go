// Package telemetry exports aggregation metrics to Prometheus.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

type Exporter struct {
	registry *prometheus.Registry

	rawEvents      prometheus.Gauge
	mergedEvents   prometheus.Gauge
	duplicates     prometheus.Gauge
	inferredLinks  prometheus.Gauge
	sources        prometheus.Gauge
	sourceOffset   *prometheus.GaugeVec
	runsTotal      *prometheus.CounterVec
	ingestFailures prometheus.Counter
	runDur         prometheus.Summary
	lastRunTS      prometheus.Gauge
}

// NewExporter registers the debrief metrics on a private registry, so several
// exporters can coexist in one process (tests, embedded servers).
func NewExporter() *Exporter {
	e := &Exporter{registry: prometheus.NewRegistry()}

	e.rawEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "debrief",
		Name:      "raw_events",
		Help:      "Raw events ingested by the latest aggregation run",
	})
	e.mergedEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "debrief",
		Name:      "merged_events",
		Help:      "Merged events produced by the latest aggregation run",
	})
	e.duplicates = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "debrief",
		Name:      "duplicates_suppressed",
		Help:      "Raw events collapsed into an existing merged event in the latest run",
	})
	e.inferredLinks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "debrief",
		Name:      "inferred_links",
		Help:      "Hit to kill links inferred in the latest run",
	})
	e.sources = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "debrief",
		Name:      "sources",
		Help:      "Recordings aggregated in the latest run",
	})
	e.sourceOffset = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "debrief",
		Name:      "source_offset_seconds",
		Help:      "Resolved clock offset per recording",
	}, []string{"source", "strategy"})
	e.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "debrief",
		Name:      "runs_total",
		Help:      "Aggregation runs by status",
	}, []string{"status"})
	e.ingestFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "debrief",
		Name:      "ingest_failures_total",
		Help:      "Recordings that could not be ingested",
	})
	e.runDur = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: "debrief",
		Name:      "run_duration_seconds",
		Help:      "Time spent in one aggregation run",
	})
	e.lastRunTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "debrief",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the latest aggregation run",
	})

	e.registry.MustRegister(
		e.rawEvents, e.mergedEvents, e.duplicates, e.inferredLinks,
		e.sources, e.sourceOffset, e.runsTotal, e.ingestFailures,
		e.runDur, e.lastRunTS,
	)
	return e
}

// Observe records one finished aggregation run.
func (e *Exporter) Observe(m *mission.AggregatedMission, failures int, dur time.Duration) {
	e.runDur.Observe(dur.Seconds())
	e.lastRunTS.Set(float64(time.Now().Unix()))
	e.ingestFailures.Add(float64(failures))

	status := "ok"
	if failures > 0 {
		status = "partial"
	}
	if m == nil || len(m.Sources) == 0 {
		status = "empty"
	}
	e.runsTotal.WithLabelValues(status).Inc()
	if m == nil {
		return
	}

	e.rawEvents.Set(float64(m.Metrics.RawEventCount))
	e.mergedEvents.Set(float64(m.Metrics.MergedEvents))
	e.duplicates.Set(float64(m.Metrics.DuplicatesSuppressed))
	e.inferredLinks.Set(float64(m.Metrics.InferredLinks))
	e.sources.Set(float64(len(m.Sources)))

	e.sourceOffset.Reset()
	for _, s := range m.Sources {
		e.sourceOffset.WithLabelValues(s.Filename, string(s.OffsetStrategy)).Set(s.Offset)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
