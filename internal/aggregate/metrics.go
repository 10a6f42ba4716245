package aggregate

import (
	"sync"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

// Collector accumulates the counters of one aggregation run. It is safe for
// concurrent use so the API can read it while a run is in progress.
type Collector struct {
	mu sync.Mutex
	m  mission.Metrics
}

// Reset zeroes the counters before a new run.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.m = mission.Metrics{}
	c.mu.Unlock()
}

// AddSource counts the raw events of one ingested recording.
func (c *Collector) AddSource(s mission.SourceRecording) {
	c.mu.Lock()
	c.m.RawEventCount += len(s.Events)
	c.mu.Unlock()
}

// AddMerge records the matching pass output.
func (c *Collector) AddMerge(r MergeResult) {
	c.mu.Lock()
	c.m.MergedEvents += len(r.Events)
	c.m.DuplicatesSuppressed += r.DuplicatesSuppressed
	c.mu.Unlock()
}

// AddLinks counts inferred links; explicit ones are not counted.
func (c *Collector) AddLinks(links []mission.Link) {
	c.mu.Lock()
	for _, l := range links {
		if l.Inferred {
			c.m.InferredLinks++
		}
	}
	c.mu.Unlock()
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() mission.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m
}
