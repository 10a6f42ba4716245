package aggregate

import "github.com/MikeSquared-Agency/debrief/internal/mission"

// SelectBaseline returns the index of the baseline recording. An explicit
// choice matches a source id or file name; otherwise, or when the explicit
// choice names no recording, the first recording wins. matched reports whether
// the explicit choice was honoured. It returns -1 for an empty list.
func SelectBaseline(sources []mission.SourceRecording, explicit string) (idx int, matched bool) {
	if len(sources) == 0 {
		return -1, false
	}
	if explicit != "" {
		for i, s := range sources {
			if s.ID == explicit || s.Filename == explicit {
				return i, true
			}
		}
	}
	return 0, false
}
