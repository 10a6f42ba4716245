package aggregate

import (
	"sort"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

type refKey struct {
	source string
	ref    string
}

// ExplicitLinks turns causedBy references recorded by a source into links
// between the merged events that absorbed the two raw events. References are
// resolved within the recording that made them.
func ExplicitLinks(events []mission.MergedEvent, sources []mission.SourceRecording) []mission.Link {
	bySource := make(map[string]mission.SourceRecording, len(sources))
	for _, s := range sources {
		bySource[s.ID] = s
	}
	raw := func(r mission.EventRef) (mission.RawEvent, bool) {
		s, ok := bySource[r.SourceID]
		if !ok || r.Index < 0 || r.Index >= len(s.Events) {
			return mission.RawEvent{}, false
		}
		return s.Events[r.Index], true
	}

	owner := make(map[refKey]int)
	for _, m := range events {
		for _, r := range m.Sources {
			if e, ok := raw(r); ok && e.Ref != "" {
				owner[refKey{r.SourceID, e.Ref}] = m.ID
			}
		}
	}

	typeOf := make(map[int]mission.EventType, len(events))
	for _, m := range events {
		typeOf[m.ID] = m.Type
	}

	seen := make(map[[2]int]bool)
	var links []mission.Link
	for _, m := range events {
		for _, r := range m.Sources {
			e, ok := raw(r)
			if !ok || e.CausedBy == "" {
				continue
			}
			from, ok := owner[refKey{r.SourceID, e.CausedBy}]
			if !ok || from == m.ID || seen[[2]int{from, m.ID}] {
				continue
			}
			seen[[2]int{from, m.ID}] = true
			links = append(links, mission.Link{
				FromEventID: from,
				ToEventID:   m.ID,
				Kind:        linkKind(typeOf[from], m.Type),
				Confidence:  1,
			})
		}
	}

	sortLinks(links)
	return links
}

func linkKind(from, to mission.EventType) mission.LinkKind {
	if from == mission.EventHit && (to == mission.EventKill || to == mission.EventDespawn) {
		return mission.LinkCausalHitKill
	}
	return mission.LinkCausal
}

// victim is the object an outcome event happened to. A despawn with no target
// is the actor leaving.
func victim(e mission.MergedEvent) string {
	switch e.Type {
	case mission.EventKill:
		return e.TargetID
	case mission.EventDespawn:
		if e.TargetID != "" {
			return e.TargetID
		}
		return e.ActorID
	}
	return ""
}

// InferLinks links each hit that has no explicit outcome to the nearest kill
// or despawn of the hit target up to hit_backtrack_window seconds later. Ties
// go to the smaller event id. Confidence falls linearly from 1 at a zero gap to
// 0 at the window edge.
func InferLinks(events []mission.MergedEvent, explicit []mission.Link, opts Options) []mission.Link {
	resolved := make(map[int]bool)
	for _, l := range explicit {
		if l.Kind == mission.LinkCausalHitKill {
			resolved[l.FromEventID] = true
		}
	}

	var links []mission.Link
	for i, hit := range events {
		if hit.Type != mission.EventHit || hit.TargetID == "" || resolved[hit.ID] {
			continue
		}

		best := -1
		var bestGap float64
		// events is in mission order, so the outcome can only sit at or after
		// the hit's timestamp; equal timestamps may precede it in the slice.
		for j := firstAt(events, i); j < len(events); j++ {
			e := events[j]
			gap := e.MissionTimestamp - hit.MissionTimestamp
			if gap > opts.HitBacktrackWindow {
				break
			}
			if j == i || victim(e) != hit.TargetID {
				continue
			}
			if best < 0 || gap < bestGap || (gap == bestGap && e.ID < events[best].ID) {
				best, bestGap = j, gap
			}
		}
		if best < 0 {
			continue
		}

		links = append(links, mission.Link{
			FromEventID: hit.ID,
			ToEventID:   events[best].ID,
			Kind:        mission.LinkCausalHitKill,
			Confidence:  linkConfidence(bestGap, opts.HitBacktrackWindow),
			Inferred:    true,
		})
	}
	return links
}

// firstAt returns the first index whose timestamp equals events[i]'s.
func firstAt(events []mission.MergedEvent, i int) int {
	t := events[i].MissionTimestamp
	for i > 0 && events[i-1].MissionTimestamp == t {
		i--
	}
	return i
}

func linkConfidence(gap, window float64) float64 {
	if window <= 0 {
		return 1
	}
	c := 1 - gap/window
	if c < 0 {
		return 0
	}
	return c
}

func sortLinks(links []mission.Link) {
	sort.Slice(links, func(a, b int) bool {
		if links[a].FromEventID != links[b].FromEventID {
			return links[a].FromEventID < links[b].FromEventID
		}
		return links[a].ToEventID < links[b].ToEventID
	})
}
