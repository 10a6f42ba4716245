package hermes

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

const (
	// SubjectMissionAggregated carries a MissionAggregatedSignal after every run.
	SubjectMissionAggregated = "debrief.mission.aggregated"
	// SubjectRecordingStored announces a new or replaced recording file.
	SubjectRecordingStored = "debrief.recording.stored"
)

// MissionAggregatedSignal summarizes a finished aggregation run for
// downstream consumers. It does not carry the event timeline.
type MissionAggregatedSignal struct {
	RunID     string                  `json:"run_id,omitempty"`
	Mission   string                  `json:"mission"`
	StartTime float64                 `json:"start_time"`
	Duration  float64                 `json:"duration"`
	Sources   []mission.SourceSummary `json:"sources"`
	Metrics   mission.Metrics         `json:"metrics"`
	Failures  []string                `json:"failures,omitempty"`
}

// NewMissionAggregatedSignal builds the signal for m.
func NewMissionAggregatedSignal(runID string, m *mission.AggregatedMission, failures []string) MissionAggregatedSignal {
	return MissionAggregatedSignal{
		RunID:     runID,
		Mission:   m.Name,
		StartTime: m.StartTime,
		Duration:  m.Duration,
		Sources:   m.Sources,
		Metrics:   m.Metrics,
		Failures:  failures,
	}
}

// RecordingStoredEvent is published by the upload service when a recording
// lands in the debriefings directory.
type RecordingStoredEvent struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
}

// DecodeRecordingStored parses a RecordingStoredEvent. The path is required;
// a missing filename is taken from it.
func DecodeRecordingStored(data []byte) (RecordingStoredEvent, error) {
	var evt RecordingStoredEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return evt, fmt.Errorf("decode recording event: %w", err)
	}
	if evt.Path == "" {
		return evt, errors.New("recording event without path")
	}
	if evt.Filename == "" {
		evt.Filename = filepath.Base(evt.Path)
	}
	return evt, nil
}
