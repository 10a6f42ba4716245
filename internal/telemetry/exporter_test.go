package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

func TestObserve(t *testing.T) {
	e := NewExporter()
	m := &mission.AggregatedMission{
		Sources: []mission.SourceSummary{
			{Filename: "lead.xml", OffsetStrategy: mission.StrategyNone, Baseline: true},
			{Filename: "wing.xml", Offset: 5.2, OffsetStrategy: mission.StrategyAnchor},
		},
		Metrics: mission.Metrics{RawEventCount: 8, MergedEvents: 4, DuplicatesSuppressed: 4, InferredLinks: 1},
	}

	e.Observe(m, 1, 250*time.Millisecond)

	assert.Equal(t, 8.0, testutil.ToFloat64(e.rawEvents))
	assert.Equal(t, 4.0, testutil.ToFloat64(e.mergedEvents))
	assert.Equal(t, 4.0, testutil.ToFloat64(e.duplicates))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.inferredLinks))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.sources))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.ingestFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.runsTotal.WithLabelValues("partial")))
	assert.Equal(t, 5.2, testutil.ToFloat64(e.sourceOffset.WithLabelValues("wing.xml", "anchor")))
}

func TestObserve_Empty(t *testing.T) {
	e := NewExporter()
	e.Observe(&mission.AggregatedMission{}, 0, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.runsTotal.WithLabelValues("empty")))
}

func TestHandler(t *testing.T) {
	e := NewExporter()
	e.Observe(&mission.AggregatedMission{
		Sources: []mission.SourceSummary{{Filename: "lead.xml", OffsetStrategy: mission.StrategyNone}},
		Metrics: mission.Metrics{RawEventCount: 3},
	}, 0, time.Second)

	srv := httptest.NewServer(e.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), "debrief_raw_events 3"))
	assert.Contains(t, string(body), `debrief_runs_total{status="ok"} 1`)
}
