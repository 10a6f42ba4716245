package ingest

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

// Result is the outcome of one ingestion attempt.
type Result struct {
	Index     int // position in the input path list
	Path      string
	Recording mission.SourceRecording
	Err       error
}

// OK reports whether the file was ingested.
func (r Result) OK() bool { return r.Err == nil }

// Diagnostic is the operator-facing line for a failed attempt.
func (r Result) Diagnostic() string {
	return Diagnostic(r.Index+1, r.Err.Error())
}

// Diagnostic formats the failure line for the file at 1-based position n.
func Diagnostic(n int, reason string) string {
	return fmt.Sprintf("file %d could not be ingested: %s", n, reason)
}

// Report collects every attempt of an IngestAll call in input order.
type Report struct {
	Results []Result
}

// Recordings returns the successfully ingested recordings in input order.
func (r Report) Recordings() []mission.SourceRecording {
	var out []mission.SourceRecording
	for _, res := range r.Results {
		if res.OK() {
			out = append(out, res.Recording)
		}
	}
	return out
}

// Failures returns the failed attempts in input order.
func (r Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// IngestAll ingests paths on up to workers goroutines. Files share no state, so
// one failure never cancels its siblings; results keep input order regardless
// of completion order.
func IngestAll(ctx context.Context, paths []string, workers int) Report {
	if workers < 1 {
		workers = 1
	}

	results := make([]Result, len(paths))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			res := Result{Index: i, Path: path}
			if err := ctx.Err(); err != nil {
				res.Err = &IoError{Path: path, Err: err}
			} else {
				res.Recording, res.Err = Ingest(path)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return Report{Results: results}
}
