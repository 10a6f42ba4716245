package ingest

import "github.com/MikeSquared-Agency/debrief/internal/mission"

// parsedRecording is what a format parser hands back before ids, ordering and
// indexes are assigned.
type parsedRecording struct {
	MissionName string
	RecordedAt  string
	StartTime   float64
	HasStart    bool
	Events      []mission.RawEvent
}

// Format identifies the parser used for a file.
type Format int

const (
	FormatUnknown Format = iota
	FormatTacviewXML
	FormatJSONL
)

func (f Format) String() string {
	switch f {
	case FormatTacviewXML:
		return "tacview-xml"
	case FormatJSONL:
		return "jsonl"
	default:
		return "unknown"
	}
}
