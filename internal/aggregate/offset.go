package aggregate

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

// anchorTypes are the event kinds used to anchor clocks. Weapon launches are
// left out: one sortie logs hundreds of them under the same actor.
var anchorTypes = map[mission.EventType]bool{
	mission.EventSpawn:   true,
	mission.EventTakeoff: true,
	mission.EventLanding: true,
	mission.EventHit:     true,
	mission.EventKill:    true,
	mission.EventDespawn: true,
}

// Resolution records how a source's offset was obtained.
type Resolution struct {
	SourceID      string                 `json:"sourceId"`
	Filename      string                 `json:"filename"`
	Strategy      mission.OffsetStrategy `json:"offsetStrategy"`
	Offset        float64                `json:"offset"`
	AnchorMatches int                    `json:"anchorMatches"`
	Reason        string                 `json:"reason,omitempty"` // why anchor or fallback was rejected, if they were
}

// ResolveOffsets returns copies of sources with offset fields populated. The
// baseline gets strategy none and offset 0; every other source is anchored,
// aligned by fallback, or skipped with offset 0. The input is not modified.
func ResolveOffsets(sources []mission.SourceRecording, opts Options) ([]mission.SourceRecording, []Resolution) {
	out := make([]mission.SourceRecording, len(sources))
	copy(out, sources)
	if len(out) == 0 {
		return out, nil
	}

	baseIdx, _ := SelectBaseline(out, opts.Baseline)
	base := out[baseIdx]

	resolutions := make([]Resolution, len(out))
	for i := range out {
		var res Resolution
		if i == baseIdx {
			res = Resolution{Strategy: mission.StrategyNone}
		} else {
			res = resolveSource(out[i], base, opts)
		}
		res.SourceID = out[i].ID
		res.Filename = out[i].Filename

		out[i].OffsetSeconds = res.Offset
		out[i].OffsetStrategy = res.Strategy
		out[i].IsBaseline = i == baseIdx
		resolutions[i] = res
	}
	return out, resolutions
}

func resolveSource(src, base mission.SourceRecording, opts Options) Resolution {
	var reason string

	if a, ok := resolveAnchor(src.Events, base.Events, opts); ok {
		if math.Abs(a.median) <= opts.MaxAnchorOffset {
			return Resolution{
				Strategy:      mission.StrategyAnchor,
				Offset:        a.median,
				AnchorMatches: len(a.pairs),
			}
		}
		reason = fmt.Sprintf("anchor offset %.2fs exceeds max_anchor_offset", a.median)
	} else {
		reason = "no anchor consensus"
	}

	if off, ok := resolveFallback(src.Events, base.Events, opts); ok {
		if math.Abs(off) <= opts.MaxFallbackOffset {
			return Resolution{Strategy: mission.StrategyFallbackApplied, Offset: off, Reason: reason}
		}
		reason += fmt.Sprintf("; fallback offset %.2fs exceeds max_fallback_offset", off)
	} else {
		reason += "; no fallback alignment"
	}

	return Resolution{Strategy: mission.StrategyFallbackSkipped, Offset: 0, Reason: reason}
}

type anchorKey struct {
	typ    mission.EventType
	target bool
	id     string
}

// anchorKeys returns the keys under which e can pair: type+actor and
// type+target.
func anchorKeys(e mission.RawEvent) []anchorKey {
	if !anchorTypes[e.Type] {
		return nil
	}
	var keys []anchorKey
	if e.ActorID != "" {
		keys = append(keys, anchorKey{typ: e.Type, id: e.ActorID})
	}
	if e.TargetID != "" {
		keys = append(keys, anchorKey{typ: e.Type, target: true, id: e.TargetID})
	}
	return keys
}

// anchorPair is a candidate correspondence between a source event and a
// baseline event; offset is what the source clock must be shifted by.
type anchorPair struct {
	src    int
	base   int
	offset float64
}

// anchorPairs lists every candidate pair with |offset| <= limit, sorted by
// offset. A pair sharing both actor and target is listed once.
func anchorPairs(src, base []mission.RawEvent, limit float64) []anchorPair {
	index := make(map[anchorKey][]int)
	for i, e := range base {
		for _, k := range anchorKeys(e) {
			index[k] = append(index[k], i)
		}
	}

	var pairs []anchorPair
	for j, e := range src {
		for _, k := range anchorKeys(e) {
			for _, i := range index[k] {
				if k.target && e.ActorID != "" && base[i].ActorID == e.ActorID {
					continue // already paired under the actor key
				}
				off := base[i].LocalTimestamp - e.LocalTimestamp
				if math.Abs(off) > limit {
					continue
				}
				pairs = append(pairs, anchorPair{src: j, base: i, offset: off})
			}
		}
	}

	sortPairs(pairs)
	return pairs
}

func sortPairs(pairs []anchorPair) {
	slices.SortFunc(pairs, func(a, b anchorPair) int {
		if c := cmp.Compare(a.offset, b.offset); c != 0 {
			return c
		}
		if c := cmp.Compare(a.src, b.src); c != 0 {
			return c
		}
		return cmp.Compare(a.base, b.base)
	})
}

// anchorCluster is a set of independent pairs: no source or baseline event is
// used twice.
type anchorCluster struct {
	pairs  []anchorPair
	median float64
	spread float64
}

// anchorWindow summarizes a run of offset-sorted pairs. events is the most
// independent pairs the run could hold: the smaller of its distinct source
// and distinct baseline event counts.
type anchorWindow struct {
	events int
	count  int
	spread float64
	median float64
}

// better ranks windows: more distinct events, then more pairs, then tighter
// spread, then the smaller shift, then the lower offset so the choice never
// depends on input order.
func (w anchorWindow) better(o anchorWindow) bool {
	if w.events != o.events {
		return w.events > o.events
	}
	if w.count != o.count {
		return w.count > o.count
	}
	if w.spread != o.spread {
		return w.spread < o.spread
	}
	if a, b := math.Abs(w.median), math.Abs(o.median); a != b {
		return a < b
	}
	return w.median < o.median
}

// windowCounter tracks distinct source and baseline events in a sliding run
// of pairs.
type windowCounter struct {
	srcUses, baseUses []int
	srcs, bases       int
}

func newWindowCounter(nSrc, nBase int) *windowCounter {
	return &windowCounter{srcUses: make([]int, nSrc), baseUses: make([]int, nBase)}
}

func (c *windowCounter) add(p anchorPair) {
	if c.srcUses[p.src] == 0 {
		c.srcs++
	}
	c.srcUses[p.src]++
	if c.baseUses[p.base] == 0 {
		c.bases++
	}
	c.baseUses[p.base]++
}

func (c *windowCounter) remove(p anchorPair) {
	c.srcUses[p.src]--
	if c.srcUses[p.src] == 0 {
		c.srcs--
	}
	c.baseUses[p.base]--
	if c.baseUses[p.base] == 0 {
		c.bases--
	}
}

// independent greedily keeps the pairs closest to center, skipping pairs that
// reuse an event. pairs must be sorted by offset; they are visited outward from
// center so no re-sort is needed.
func independent(pairs []anchorPair, center float64, nSrc, nBase int) anchorCluster {
	usedSrc := make([]bool, nSrc)
	usedBase := make([]bool, nBase)
	var picked []anchorPair
	take := func(p anchorPair) {
		if usedSrc[p.src] || usedBase[p.base] {
			return
		}
		usedSrc[p.src] = true
		usedBase[p.base] = true
		picked = append(picked, p)
	}

	r := sort.Search(len(pairs), func(k int) bool { return pairs[k].offset >= center })
	l := r - 1
	for l >= 0 || r < len(pairs) {
		if r < len(pairs) && (l < 0 || pairs[r].offset-center < center-pairs[l].offset) {
			take(pairs[r])
			r++
			continue
		}
		// Equal offsets below center keep their sorted order.
		k := l
		for k > 0 && pairs[k-1].offset == pairs[l].offset {
			k--
		}
		for m := k; m <= l; m++ {
			take(pairs[m])
		}
		l = k - 1
	}

	if len(picked) == 0 {
		return anchorCluster{}
	}
	sortPairs(picked)
	return anchorCluster{
		pairs:  picked,
		median: medianOffset(picked),
		spread: picked[len(picked)-1].offset - picked[0].offset,
	}
}

// medianOffset expects pairs sorted by offset.
func medianOffset(sorted []anchorPair) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2].offset
	}
	return (sorted[n/2-1].offset + sorted[n/2].offset) / 2
}

// resolveAnchor slides a window of width 2r over the offset-sorted pairs, where
// r is anchor_tolerance capped at half the congruence tolerance, and picks the
// best window. The independent pairs within r of that window's median form the
// cluster; it succeeds when at least anchor_min_matches remain. Pairs that
// could never land under max_anchor_offset are dropped up front.
func resolveAnchor(src, base []mission.RawEvent, opts Options) (anchorCluster, bool) {
	radius := math.Min(opts.AnchorTolerance, opts.MissionTimeCongruenceTolerance/2)
	pairs := anchorPairs(src, base, opts.MaxAnchorOffset+radius)
	if len(pairs) < opts.AnchorMinMatches {
		return anchorCluster{}, false
	}

	counter := newWindowCounter(len(src), len(base))
	var best anchorWindow
	found := false
	hi, lastHi := 0, -1
	for lo := range pairs {
		if lo > 0 {
			counter.remove(pairs[lo-1])
		}
		for hi < len(pairs) && (hi == lo || pairs[hi].offset-pairs[lo].offset <= 2*radius) {
			counter.add(pairs[hi])
			hi++
		}
		// A window whose end did not move is contained in the previous one.
		if hi == lastHi {
			continue
		}
		lastHi = hi

		w := anchorWindow{
			events: min(counter.srcs, counter.bases),
			count:  hi - lo,
			spread: pairs[hi-1].offset - pairs[lo].offset,
			median: medianOffset(pairs[lo:hi]),
		}
		if w.events < opts.AnchorMinMatches {
			continue
		}
		if !found || w.better(best) {
			best = w
			found = true
		}
	}
	if !found {
		return anchorCluster{}, false
	}

	from := sort.Search(len(pairs), func(k int) bool { return pairs[k].offset >= best.median-radius })
	to := sort.Search(len(pairs), func(k int) bool { return pairs[k].offset > best.median+radius })
	c := independent(pairs[from:to], best.median, len(src), len(base))
	if len(c.pairs) < opts.AnchorMinMatches {
		return anchorCluster{}, false
	}
	return c, true
}

// resolveFallback aligns the source's earliest event with the nearest baseline
// event of the same type. Baseline events within hit_backtrack_window of that
// nearest distance, before or after it, are also considered; among them an
// event by the same actor wins, then the closer one, then the earlier one.
func resolveFallback(src, base []mission.RawEvent, opts Options) (float64, bool) {
	if len(src) == 0 {
		return 0, false
	}
	first := src[0]

	nearest := math.Inf(1)
	for _, b := range base {
		if b.Type != first.Type {
			continue
		}
		if d := math.Abs(b.LocalTimestamp - first.LocalTimestamp); d < nearest {
			nearest = d
		}
	}
	if math.IsInf(nearest, 1) {
		return 0, false
	}

	chosen := -1
	chosenSameActor := false
	chosenDist := 0.0
	for i, b := range base {
		if b.Type != first.Type {
			continue
		}
		d := math.Abs(b.LocalTimestamp - first.LocalTimestamp)
		if d > nearest+opts.HitBacktrackWindow {
			continue
		}
		sameActor := first.ActorID != "" && b.ActorID == first.ActorID
		switch {
		case chosen < 0:
		case sameActor != chosenSameActor:
			if !sameActor {
				continue
			}
		case d >= chosenDist:
			continue
		}
		chosen, chosenSameActor, chosenDist = i, sameActor, d
	}

	return base[chosen].LocalTimestamp - first.LocalTimestamp, true
}
