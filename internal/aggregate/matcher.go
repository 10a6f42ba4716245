package aggregate

import (
	"sort"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

// AttrKillerInferred marks a kill whose actor was taken from a preceding hit.
const AttrKillerInferred = "killer_inferred"

// MergeResult is the output of the matching pass.
type MergeResult struct {
	Events               []mission.MergedEvent
	DuplicatesSuppressed int
}

// timedEvent is a raw event placed on the mission clock.
type timedEvent struct {
	order int // position of the source in the input list
	raw   mission.RawEvent
	t     float64
	actor string
	attrs map[string]string
}

type openEvent struct {
	idx     int // into MergeResult.Events
	sources map[string]bool
}

type lastHit struct {
	t     float64
	actor string
}

// Merge normalizes every source's events to mission time and collapses raw
// events that describe the same occurrence. A raw event joins an open merged
// event when type and actor agree, targets agree where both are set, the
// timestamps differ by at most time_tolerance, and its source has not already
// contributed. The merged timestamp is that of the earliest contributor.
//
// Kills with no actor take the actor of the latest hit on the same target
// within hit_backtrack_window before they are matched.
func Merge(sources []mission.SourceRecording, opts Options) MergeResult {
	timeline := normalizeAll(sources)

	res := MergeResult{Events: make([]mission.MergedEvent, 0, len(timeline))}
	var open []openEvent
	hits := make(map[string]lastHit)

	for _, te := range timeline {
		open = expire(open, res.Events, te.t, opts.TimeTolerance)

		if te.raw.Type == mission.EventKill && te.actor == "" && te.raw.TargetID != "" {
			if h, ok := hits[te.raw.TargetID]; ok && te.t-h.t <= opts.HitBacktrackWindow {
				te.actor = h.actor
				te.attrs = withAttr(te.attrs, AttrKillerInferred, "true")
			}
		}
		if te.raw.Type == mission.EventHit && te.actor != "" && te.raw.TargetID != "" {
			hits[te.raw.TargetID] = lastHit{t: te.t, actor: te.actor}
		}

		ref := mission.EventRef{SourceID: te.raw.SourceID, Index: te.raw.Index}
		if j := bestOpen(open, res.Events, te); j >= 0 {
			m := &res.Events[open[j].idx]
			m.Sources = append(m.Sources, ref)
			if m.TargetID == "" {
				m.TargetID = te.raw.TargetID
			}
			for k, v := range te.attrs {
				if _, ok := m.Attributes[k]; !ok {
					if m.Attributes == nil {
						m.Attributes = make(map[string]string)
					}
					m.Attributes[k] = v
				}
			}
			open[j].sources[te.raw.SourceID] = true
			res.DuplicatesSuppressed++
			continue
		}

		res.Events = append(res.Events, mission.MergedEvent{
			ID:               len(res.Events) + 1,
			MissionTimestamp: te.t,
			Type:             te.raw.Type,
			ActorID:          te.actor,
			TargetID:         te.raw.TargetID,
			Attributes:       copyAttrs(te.attrs),
			Sources:          []mission.EventRef{ref},
		})
		open = append(open, openEvent{
			idx:     len(res.Events) - 1,
			sources: map[string]bool{te.raw.SourceID: true},
		})
	}
	return res
}

// normalizeAll returns every raw event on the mission clock, sorted by time
// with ties kept in source order, then raw index.
func normalizeAll(sources []mission.SourceRecording) []timedEvent {
	var n int
	for _, s := range sources {
		n += len(s.Events)
	}
	out := make([]timedEvent, 0, n)
	for order, s := range sources {
		for _, e := range s.Events {
			out = append(out, timedEvent{
				order: order,
				raw:   e,
				t:     s.Normalize(e.LocalTimestamp),
				actor: e.ActorID,
				attrs: e.Attributes,
			})
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].t != out[b].t {
			return out[a].t < out[b].t
		}
		if out[a].order != out[b].order {
			return out[a].order < out[b].order
		}
		return out[a].raw.Index < out[b].raw.Index
	})
	return out
}

// expire drops merged events that no later raw event can join.
func expire(open []openEvent, events []mission.MergedEvent, t, tolerance float64) []openEvent {
	kept := open[:0]
	for _, o := range open {
		if t-events[o.idx].MissionTimestamp <= tolerance {
			kept = append(kept, o)
		}
	}
	return kept
}

// bestOpen returns the position in open of the merged event te should join,
// or -1. The closest in time wins; ties go to the earliest created.
func bestOpen(open []openEvent, events []mission.MergedEvent, te timedEvent) int {
	best := -1
	var bestDelta float64
	for j, o := range open {
		m := events[o.idx]
		if m.Type != te.raw.Type || m.ActorID != te.actor || o.sources[te.raw.SourceID] {
			continue
		}
		if m.TargetID != "" && te.raw.TargetID != "" && m.TargetID != te.raw.TargetID {
			continue
		}
		delta := te.t - m.MissionTimestamp
		if best < 0 || delta < bestDelta {
			best, bestDelta = j, delta
		}
	}
	return best
}

func withAttr(attrs map[string]string, k, v string) map[string]string {
	out := copyAttrs(attrs)
	if out == nil {
		out = make(map[string]string, 1)
	}
	out[k] = v
	return out
}

func copyAttrs(attrs map[string]string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
