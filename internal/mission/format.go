package mission

import (
	"fmt"
	"strings"
)

// StatusLine renders a source the way the debrief page lists it, e.g.
// "bravo.xml (812 events, offset +5.20s via anchor match)".
func (s SourceSummary) StatusLine() string {
	label := s.Filename
	if label == "" {
		label = s.ID
	}
	if label == "" {
		label = "unknown"
	}

	var sb strings.Builder
	sb.WriteString(label)
	if s.Baseline {
		sb.WriteString(" (baseline)")
	}
	fmt.Fprintf(&sb, " (%d events, offset %+.2fs%s)", s.Events, s.Offset, strategyLabel(s.OffsetStrategy))
	return sb.String()
}

func strategyLabel(s OffsetStrategy) string {
	switch s {
	case StrategyAnchor:
		return " via anchor match"
	case StrategyFallbackApplied:
		return " via fallback"
	case StrategyFallbackSkipped:
		return " (fallback skipped)"
	default:
		return ""
	}
}

// FormatSummary renders the aggregation summary block followed by the source list.
func FormatSummary(m *AggregatedMission) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Aggregation Summary: %s\n", m.Name)
	fmt.Fprintf(&sb, "  Total raw events: %d\n", m.Metrics.RawEventCount)
	fmt.Fprintf(&sb, "  Merged events: %d\n", m.Metrics.MergedEvents)
	fmt.Fprintf(&sb, "  Duplicates suppressed: %d\n", m.Metrics.DuplicatesSuppressed)
	fmt.Fprintf(&sb, "  Inferred links: %d\n", m.Metrics.InferredLinks)
	if len(m.Sources) > 0 {
		sb.WriteString("Source Recordings\n")
		for _, s := range m.Sources {
			fmt.Fprintf(&sb, "  - %s\n", s.StatusLine())
		}
	}
	return sb.String()
}
