//go:build integration

package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_SaveAndLoadRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	filename := "integration-" + uuid.New().String()[:8] + ".xml"

	m := &mission.AggregatedMission{
		Name:      "Integration Mission",
		StartTime: 12,
		Duration:  300,
		Events: []mission.MergedEvent{
			{ID: 1, MissionTimestamp: 40, Type: mission.EventKill, ActorID: "Viper 1-1", TargetID: "Bandit 1",
				Sources: []mission.EventRef{{SourceID: "a", Index: 3}}},
		},
		Links: []mission.Link{},
		Sources: []mission.SourceSummary{
			{ID: "a", Filename: filename, Events: 10, OffsetStrategy: mission.StrategyNone, Baseline: true},
			{ID: "b", Filename: "wing.xml", Events: 8, Offset: -5.2, OffsetStrategy: mission.StrategyAnchor},
		},
		Metrics: mission.Metrics{RawEventCount: 18, MergedEvents: 12, DuplicatesSuppressed: 6, InferredLinks: 0},
	}

	id, err := s.SaveRun(ctx, m, []Failure{{File: "broken.xml", Error: "unexpected EOF"}})
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("expected non-nil run ID")
	}

	row, err := s.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if row.ID != id {
		t.Fatalf("expected latest run %s, got %s", id, row.ID)
	}
	if row.Mission.Name != "Integration Mission" {
		t.Errorf("expected mission name, got %q", row.Mission.Name)
	}
	if row.Mission.Metrics != m.Metrics {
		t.Errorf("expected metrics %+v, got %+v", m.Metrics, row.Mission.Metrics)
	}
	if len(row.Mission.Events) != 1 || row.Mission.Events[0].Sources[0].Index != 3 {
		t.Errorf("unexpected events: %+v", row.Mission.Events)
	}
	if len(row.Failures) != 1 || row.Failures[0].File != "broken.xml" {
		t.Errorf("unexpected failures: %+v", row.Failures)
	}

	history, err := s.SourceHistory(ctx, filename, 5)
	if err != nil {
		t.Fatalf("SourceHistory failed: %v", err)
	}
	if len(history) != 1 || !history[0].Baseline || history[0].OffsetStrategy != mission.StrategyNone {
		t.Errorf("unexpected history: %+v", history)
	}
}
