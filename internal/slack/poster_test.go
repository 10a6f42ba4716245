package slack

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleMission() *mission.AggregatedMission {
	return &mission.AggregatedMission{
		Name:     "Operation Tinfoil",
		Duration: 1342.4,
		Sources: []mission.SourceSummary{
			{ID: "a", Filename: "lead.xml", Events: 812, OffsetStrategy: mission.StrategyNone, Baseline: true},
			{ID: "b", Filename: "wing.xml", Events: 640, Offset: 5.2, OffsetStrategy: mission.StrategyAnchor},
		},
		Metrics: mission.Metrics{RawEventCount: 1452, MergedEvents: 901, DuplicatesSuppressed: 551, InferredLinks: 12},
	}
}

func TestFormatMissionMessage(t *testing.T) {
	msg := formatMissionMessage(sampleMission(), 1)

	checks := []string{
		"Operation Tinfoil",
		"22m22s",
		"901 merged from 1452 raw",
		"551 duplicates suppressed",
		"12 inferred links",
		"Recordings: 2",
		"1. lead.xml (baseline) (812 events, offset +0.00s)",
		"2. wing.xml (640 events, offset +5.20s via anchor match)",
		"1 file(s) could not be ingested",
	}
	for _, check := range checks {
		if !strings.Contains(msg, check) {
			t.Errorf("expected message to contain %q, got:\n%s", check, msg)
		}
	}
}

func TestFormatMissionMessage_Empty(t *testing.T) {
	msg := formatMissionMessage(&mission.AggregatedMission{Name: "Mission"}, 0)

	if !strings.Contains(msg, "No recordings could be aggregated") {
		t.Errorf("expected empty message, got %q", msg)
	}
	if strings.Contains(msg, "could not be ingested") {
		t.Errorf("unexpected failure note in %q", msg)
	}
}

func TestPostMissionSummary_Success(t *testing.T) {
	var (
		mu       sync.Mutex
		payloads []map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer xoxb-test" {
			t.Errorf("expected Bearer xoxb-test, got %q", r.Header.Get("Authorization"))
		}

		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		json.Unmarshal(body, &payload)
		mu.Lock()
		payloads = append(payloads, payload)
		mu.Unlock()

		if payload["channel"] != "C123" {
			t.Errorf("expected channel C123, got %v", payload["channel"])
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"ts": "1234567890.123456",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	ts, err := p.PostMissionSummary(context.Background(), sampleMission(), []string{"file 3 could not be ingested: bad xml"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != "1234567890.123456" {
		t.Errorf("expected ts 1234567890.123456, got %q", ts)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 2 {
		t.Fatalf("expected summary and thread reply, got %d posts", len(payloads))
	}
	if payloads[1]["thread_ts"] != "1234567890.123456" {
		t.Errorf("expected thread reply, got %v", payloads[1])
	}
	if !strings.Contains(payloads[1]["text"].(string), "bad xml") {
		t.Errorf("expected failure in thread, got %v", payloads[1]["text"])
	}
}

func TestPostMissionSummary_SlackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"ok":    false,
			"error": "channel_not_found",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	_, err := p.PostMissionSummary(context.Background(), sampleMission(), nil)
	if err == nil {
		t.Fatal("expected error for slack error response")
	}
	if !strings.Contains(err.Error(), "channel_not_found") {
		t.Errorf("expected slack error in %v", err)
	}
}
