package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

// jsonlLine is one line of a raw-event JSONL recording. The first line may be a
// mission header; every other line is an event.
type jsonlLine struct {
	Kind       string            `json:"kind"`
	Name       string            `json:"name"`
	StartTime  *float64          `json:"startTime"`
	RecordedAt string            `json:"recordedAt"`
	T          *float64          `json:"t"`
	Type       string            `json:"type"`
	Actor      string            `json:"actor"`
	Target     string            `json:"target"`
	Attrs      map[string]string `json:"attrs"`
	Ref        string            `json:"ref"`
	CausedBy   string            `json:"causedBy"`
}

// parseJSONL decodes a raw-event JSONL recording. Unlike transcript logs, a
// malformed line fails the whole file: a partial recording would skew offsets.
func parseJSONL(r io.Reader) (parsedRecording, error) {
	var rec parsedRecording

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024) // 10MB line buffer
	lineNo := 0
	sawEvent := false
	for scanner.Scan() {
		lineNo++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		var line jsonlLine
		if err := json.Unmarshal(data, &line); err != nil {
			return parsedRecording{}, &ParseError{Line: lineNo, Err: err}
		}

		switch line.Kind {
		case "mission":
			if sawEvent {
				return parsedRecording{}, &ParseError{Line: lineNo, Err: errors.New("mission header after events")}
			}
			rec.MissionName = strings.TrimSpace(line.Name)
			rec.RecordedAt = strings.TrimSpace(line.RecordedAt)
			if line.StartTime != nil {
				rec.StartTime = *line.StartTime
				rec.HasStart = true
			}
		case "event", "":
			ev, err := jsonlEvent(line)
			if err != nil {
				return parsedRecording{}, &ParseError{Line: lineNo, Err: err}
			}
			rec.Events = append(rec.Events, ev)
			sawEvent = true
		default:
			return parsedRecording{}, &ParseError{Line: lineNo, Err: fmt.Errorf("unknown line kind %q", line.Kind)}
		}
	}
	if err := scanner.Err(); err != nil {
		return parsedRecording{}, fmt.Errorf("scan: %w", err)
	}
	return rec, nil
}

func jsonlEvent(line jsonlLine) (mission.RawEvent, error) {
	if line.T == nil {
		return mission.RawEvent{}, errors.New("event without timestamp")
	}
	typ, ok := mission.ParseEventType(line.Type)
	if !ok {
		return mission.RawEvent{}, fmt.Errorf("unknown event type %q", line.Type)
	}

	var attrs map[string]string
	if len(line.Attrs) > 0 {
		attrs = make(map[string]string, len(line.Attrs))
		for k, v := range line.Attrs {
			attrs[k] = v
		}
	}

	return mission.RawEvent{
		LocalTimestamp: *line.T,
		Type:           typ,
		ActorID:        strings.TrimSpace(line.Actor),
		TargetID:       strings.TrimSpace(line.Target),
		Ref:            line.Ref,
		CausedBy:       line.CausedBy,
		Attributes:     attrs,
	}, nil
}
