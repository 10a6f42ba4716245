// Package mission holds the record types shared by the ingestion, aggregation and
// publishing stages of a debrief run.
package mission

import "math"

// EventType classifies a combat log occurrence.
type EventType string

const (
	EventSpawn   EventType = "spawn"
	EventTakeoff EventType = "takeoff"
	EventLanding EventType = "landing"
	EventFired   EventType = "fired"
	EventHit     EventType = "hit"
	EventKill    EventType = "kill"
	EventDespawn EventType = "despawn"
	EventOther   EventType = "other"
)

var knownTypes = map[EventType]bool{
	EventSpawn:   true,
	EventTakeoff: true,
	EventLanding: true,
	EventFired:   true,
	EventHit:     true,
	EventKill:    true,
	EventDespawn: true,
	EventOther:   true,
}

// ParseEventType returns the EventType named by s and whether it is known.
func ParseEventType(s string) (EventType, bool) {
	t := EventType(s)
	return t, knownTypes[t]
}

// RawEvent is one event as captured by a single source, on that source's clock.
// Raw events are never modified after ingestion.
type RawEvent struct {
	SourceID       string            `json:"sourceId"`
	Index          int               `json:"index"`
	LocalTimestamp float64           `json:"localTimestamp"`
	Type           EventType         `json:"type"`
	ActorID        string            `json:"actorId"`
	TargetID       string            `json:"targetId,omitempty"`
	Ref            string            `json:"ref,omitempty"`      // source-local event reference
	CausedBy       string            `json:"causedBy,omitempty"` // Ref of the event that caused this one
	Attributes     map[string]string `json:"attributes,omitempty"`
}

// Attr returns the attribute value for key, or "".
func (e RawEvent) Attr(key string) string {
	return e.Attributes[key]
}

// OffsetStrategy records how a source's clock offset was obtained.
type OffsetStrategy string

const (
	StrategyUnresolved      OffsetStrategy = ""
	StrategyNone            OffsetStrategy = "none"
	StrategyAnchor          OffsetStrategy = "anchor"
	StrategyFallbackApplied OffsetStrategy = "fallback-applied"
	StrategyFallbackSkipped OffsetStrategy = "fallback-skipped"
)

// SourceRecording is one participant's captured event log.
type SourceRecording struct {
	ID                string     `json:"id"`
	Filename          string     `json:"filename"`
	Path              string     `json:"path"`
	MissionName       string     `json:"missionName,omitempty"`
	RecordedAt        string     `json:"recordedAt,omitempty"`
	DeclaredStartTime float64    `json:"declaredStartTime"`
	Events            []RawEvent `json:"events"`

	// Written once by offset resolution.
	OffsetSeconds  float64        `json:"offsetSeconds"`
	OffsetStrategy OffsetStrategy `json:"offsetStrategy"`
	IsBaseline     bool           `json:"isBaseline"`
}

// Normalize converts a source-local timestamp to mission time.
func (s SourceRecording) Normalize(local float64) float64 {
	return local + s.OffsetSeconds
}

// NormalizedStart is the declared start time in mission time.
func (s SourceRecording) NormalizedStart() float64 {
	return s.Normalize(s.DeclaredStartTime)
}

// Summary reduces the recording to the per-source entry of an AggregatedMission.
func (s SourceRecording) Summary() SourceSummary {
	return SourceSummary{
		ID:             s.ID,
		Filename:       s.Filename,
		Events:         len(s.Events),
		Offset:         s.OffsetSeconds,
		OffsetStrategy: s.OffsetStrategy,
		Baseline:       s.IsBaseline,
	}
}

// EventRef points at a contributing raw event.
type EventRef struct {
	SourceID string `json:"sourceId"`
	Index    int    `json:"rawEventIndex"`
}

// MergedEvent is one canonical occurrence built from one or more raw events.
type MergedEvent struct {
	ID               int               `json:"id"`
	MissionTimestamp float64           `json:"missionTimestamp"`
	Type             EventType         `json:"type"`
	ActorID          string            `json:"actorId"`
	TargetID         string            `json:"targetId,omitempty"`
	Attributes       map[string]string `json:"attributes,omitempty"`
	Sources          []EventRef        `json:"sources"`
}

// LinkKind names a relation between two merged events.
type LinkKind string

const (
	LinkCausalHitKill LinkKind = "causal-hit-kill"
	LinkCausal        LinkKind = "causal" // explicit relation between other event kinds
)

// Link relates two merged events by id.
type Link struct {
	FromEventID int      `json:"fromEventId"`
	ToEventID   int      `json:"toEventId"`
	Kind        LinkKind `json:"kind"`
	Confidence  float64  `json:"confidence"`
	Inferred    bool     `json:"inferred"`
}

// SourceSummary is the per-source entry of an AggregatedMission.
type SourceSummary struct {
	ID             string         `json:"id"`
	Filename       string         `json:"filename"`
	Events         int            `json:"events"`
	Offset         float64        `json:"offset"`
	OffsetStrategy OffsetStrategy `json:"offsetStrategy"`
	Baseline       bool           `json:"baseline"`
}

// Metrics are the counters of one aggregation run.
type Metrics struct {
	RawEventCount        int `json:"raw_event_count"`
	MergedEvents         int `json:"merged_events"`
	DuplicatesSuppressed int `json:"duplicates_suppressed"`
	InferredLinks        int `json:"inferred_links"`
}

// AggregatedMission is the read-only result of an aggregation run.
type AggregatedMission struct {
	Name      string          `json:"name"`
	StartTime float64         `json:"startTime"`
	Duration  float64         `json:"duration"`
	Events    []MergedEvent   `json:"events"`
	Links     []Link          `json:"links"`
	Sources   []SourceSummary `json:"sources"`
	Metrics   Metrics         `json:"metrics"`
}

// EventsOfType returns the merged events of type t in mission order.
func (m *AggregatedMission) EventsOfType(t EventType) []MergedEvent {
	var out []MergedEvent
	for _, e := range m.Events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Event looks up a merged event by id.
func (m *AggregatedMission) Event(id int) (MergedEvent, bool) {
	// ids are assigned 1..n in mission order
	if id >= 1 && id <= len(m.Events) && m.Events[id-1].ID == id {
		return m.Events[id-1], true
	}
	for _, e := range m.Events {
		if e.ID == id {
			return e, true
		}
	}
	return MergedEvent{}, false
}

// Baseline returns the baseline source summary, if any.
func (m *AggregatedMission) Baseline() (SourceSummary, bool) {
	for _, s := range m.Sources {
		if s.Baseline {
			return s, true
		}
	}
	return SourceSummary{}, false
}

// AbsOffset is |offset| of a source.
func (s SourceSummary) AbsOffset() float64 {
	return math.Abs(s.Offset)
}
