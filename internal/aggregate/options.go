// Package aggregate reconciles several recordings of one mission into a single
// timeline: offset resolution, cross-source matching, link inference and
// metrics.
package aggregate

import (
	"errors"
	"fmt"
	"math"
)

// Options is the aggregator tuning record. All durations are seconds.
type Options struct {
	// TimeTolerance is the largest timestamp delta for two raw events to be
	// treated as the same occurrence.
	TimeTolerance float64 `yaml:"time_tolerance" toml:"time_tolerance" json:"time_tolerance"`
	// HitBacktrackWindow bounds the fallback alignment search, the kill
	// attribution look-back and the hit to kill link search.
	HitBacktrackWindow float64 `yaml:"hit_backtrack_window" toml:"hit_backtrack_window" json:"hit_backtrack_window"`
	// AnchorTolerance is the largest residual of an anchor pair against the
	// consensus offset.
	AnchorTolerance float64 `yaml:"anchor_tolerance" toml:"anchor_tolerance" json:"anchor_tolerance"`
	// AnchorMinMatches is the number of independent agreeing pairs required.
	AnchorMinMatches int `yaml:"anchor_min_matches" toml:"anchor_min_matches" json:"anchor_min_matches"`
	// MaxFallbackOffset caps |offset| accepted from fallback alignment.
	MaxFallbackOffset float64 `yaml:"max_fallback_offset" toml:"max_fallback_offset" json:"max_fallback_offset"`
	// MaxAnchorOffset caps |offset| accepted from anchor matching.
	MaxAnchorOffset float64 `yaml:"max_anchor_offset" toml:"max_anchor_offset" json:"max_anchor_offset"`
	// MissionTimeCongruenceTolerance is the largest spread among agreeing
	// anchor offsets.
	MissionTimeCongruenceTolerance float64 `yaml:"mission_time_congruence_tolerance" toml:"mission_time_congruence_tolerance" json:"mission_time_congruence_tolerance"`

	// Baseline names the baseline recording by source id or file name. Empty
	// means the first ingested recording.
	Baseline string `yaml:"baseline" toml:"baseline" json:"baseline"`
	// MissionName is used when no recording declares one.
	MissionName string `yaml:"mission_name" toml:"mission_name" json:"mission_name"`
}

// DefaultOptions returns the tuning used by the production debrief site.
func DefaultOptions() Options {
	return Options{
		TimeTolerance:                  1.5,
		HitBacktrackWindow:             5.0,
		AnchorTolerance:                120.0,
		AnchorMinMatches:               3,
		MaxFallbackOffset:              900.0,
		MaxAnchorOffset:                14400.0,
		MissionTimeCongruenceTolerance: 1800.0,
		MissionName:                    "Mission",
	}
}

// Validate rejects negative or non-finite windows and a non-positive match
// requirement.
func (o Options) Validate() error {
	var errs []error
	nonNegative := []struct {
		name string
		v    float64
	}{
		{"time_tolerance", o.TimeTolerance},
		{"hit_backtrack_window", o.HitBacktrackWindow},
		{"anchor_tolerance", o.AnchorTolerance},
		{"max_fallback_offset", o.MaxFallbackOffset},
		{"max_anchor_offset", o.MaxAnchorOffset},
		{"mission_time_congruence_tolerance", o.MissionTimeCongruenceTolerance},
	}
	for _, f := range nonNegative {
		switch {
		case math.IsNaN(f.v) || math.IsInf(f.v, 0):
			errs = append(errs, fmt.Errorf("%s must be a finite number, got %g", f.name, f.v))
		case f.v < 0:
			errs = append(errs, fmt.Errorf("%s must be >= 0, got %g", f.name, f.v))
		}
	}
	if o.AnchorMinMatches < 1 {
		errs = append(errs, fmt.Errorf("anchor_min_matches must be >= 1, got %d", o.AnchorMinMatches))
	}
	return errors.Join(errs...)
}
