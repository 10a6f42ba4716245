package aggregate

import (
	"math"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

// Assemble builds the mission snapshot from resolved sources and the outputs
// of the matching and linking passes. Links are ordered explicit first, each
// group by event id.
func Assemble(sources []mission.SourceRecording, merged MergeResult, explicit, inferred []mission.Link, metrics mission.Metrics, opts Options) *mission.AggregatedMission {
	m := &mission.AggregatedMission{
		Name:    missionName(sources, opts),
		Events:  merged.Events,
		Links:   make([]mission.Link, 0, len(explicit)+len(inferred)),
		Sources: make([]mission.SourceSummary, 0, len(sources)),
		Metrics: metrics,
	}
	if m.Events == nil {
		m.Events = []mission.MergedEvent{}
	}
	m.Links = append(m.Links, explicit...)
	m.Links = append(m.Links, inferred...)

	if len(sources) > 0 {
		start := math.Inf(1)
		for _, s := range sources {
			start = math.Min(start, s.NormalizedStart())
			m.Sources = append(m.Sources, s.Summary())
		}
		m.StartTime = start
	}

	last := m.StartTime
	for _, e := range m.Events {
		last = math.Max(last, e.MissionTimestamp)
	}
	m.Duration = last - m.StartTime
	return m
}

// missionName prefers the baseline's declared name, then the first other
// source that declares one.
func missionName(sources []mission.SourceRecording, opts Options) string {
	for _, s := range sources {
		if s.IsBaseline && s.MissionName != "" {
			return s.MissionName
		}
	}
	for _, s := range sources {
		if s.MissionName != "" {
			return s.MissionName
		}
	}
	if opts.MissionName != "" {
		return opts.MissionName
	}
	return DefaultOptions().MissionName
}
