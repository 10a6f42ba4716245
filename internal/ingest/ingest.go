// Package ingest turns recording files into mission.SourceRecording values.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

// sourceNamespace scopes the name-based UUIDs given to recordings.
var sourceNamespace = uuid.MustParse("6f1c4a52-9a0e-4f43-8d5e-3b7a2c9e1d40")

// SourceID returns the stable id of the recording at path.
func SourceID(path string) string {
	return uuid.NewSHA1(sourceNamespace, []byte(filepath.ToSlash(filepath.Clean(path)))).String()
}

// DetectFormat picks a parser from the file extension.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml":
		return FormatTacviewXML
	case ".jsonl", ".ndjson":
		return FormatJSONL
	default:
		return FormatUnknown
	}
}

// Ingest reads and parses one recording. Events are sorted by local timestamp
// with ties kept in file order, and indexed by their sorted position.
func Ingest(path string) (mission.SourceRecording, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return mission.SourceRecording{}, &ParseError{Path: path, Err: fmt.Errorf("unsupported format %q", filepath.Ext(path))}
	}

	f, err := os.Open(path)
	if err != nil {
		return mission.SourceRecording{}, &IoError{Path: path, Err: err}
	}
	defer f.Close()

	parsed, err := parse(format, f)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
			return mission.SourceRecording{}, pe
		}
		return mission.SourceRecording{}, &IoError{Path: path, Err: err}
	}

	return buildRecording(path, parsed), nil
}

func parse(format Format, r io.Reader) (parsedRecording, error) {
	switch format {
	case FormatTacviewXML:
		return parseTacview(r)
	case FormatJSONL:
		return parseJSONL(r)
	default:
		return parsedRecording{}, &ParseError{Err: errors.New("unsupported format")}
	}
}

func buildRecording(path string, parsed parsedRecording) mission.SourceRecording {
	id := SourceID(path)

	events := parsed.Events
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].LocalTimestamp < events[j].LocalTimestamp
	})
	for i := range events {
		events[i].SourceID = id
		events[i].Index = i
	}

	start := parsed.StartTime
	if !parsed.HasStart && len(events) > 0 {
		start = events[0].LocalTimestamp
	}

	return mission.SourceRecording{
		ID:                id,
		Filename:          filepath.Base(path),
		Path:              path,
		MissionName:       parsed.MissionName,
		RecordedAt:        parsed.RecordedAt,
		DeclaredStartTime: start,
		Events:            events,
	}
}
