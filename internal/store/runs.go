package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

// ErrNoRuns is returned by LatestRun before the first run is saved.
var ErrNoRuns = errors.New("no aggregation runs recorded")

// Failure is a recording excluded from a run.
type Failure struct {
	File  string
	Error string
}

// RunRow is one stored aggregation run.
type RunRow struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Mission   mission.AggregatedMission
	Failures  []Failure
}

// SaveRun writes a run across the history tables.
// Tables: aggregation_runs, aggregation_sources, ingest_failures.
func (s *Store) SaveRun(ctx context.Context, m *mission.AggregatedMission, failures []Failure) (uuid.UUID, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal mission: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	runID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO aggregation_runs (id, mission_name, start_time, duration, raw_event_count, merged_events, duplicates_suppressed, inferred_links, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`,
		runID, m.Name, m.StartTime, m.Duration,
		m.Metrics.RawEventCount, m.Metrics.MergedEvents, m.Metrics.DuplicatesSuppressed, m.Metrics.InferredLinks,
		payload,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert run: %w", err)
	}

	for _, src := range m.Sources {
		_, err = tx.Exec(ctx, `
			INSERT INTO aggregation_sources (id, run_id, source_id, filename, events, offset_seconds, offset_strategy, baseline)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New(), runID, src.ID, src.Filename, src.Events, src.Offset, string(src.OffsetStrategy), src.Baseline,
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert source: %w", err)
		}
	}

	for _, f := range failures {
		_, err = tx.Exec(ctx, `
			INSERT INTO ingest_failures (id, run_id, file, error)
			VALUES ($1, $2, $3, $4)`,
			uuid.New(), runID, f.File, f.Error,
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert failure: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}

	return runID, nil
}

// LatestRun returns the most recently saved run.
func (s *Store) LatestRun(ctx context.Context) (*RunRow, error) {
	var (
		row     RunRow
		payload []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, created_at, payload FROM aggregation_runs
		ORDER BY created_at DESC LIMIT 1`,
	).Scan(&row.ID, &row.CreatedAt, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("query latest run: %w", err)
	}
	if err := json.Unmarshal(payload, &row.Mission); err != nil {
		return nil, fmt.Errorf("parse run payload: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT file, error FROM ingest_failures WHERE run_id = $1 ORDER BY file`, row.ID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.File, &f.Error); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		row.Failures = append(row.Failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return &row, nil
}

// SourceHistory returns the offsets a file was resolved with in the most recent
// runs, newest first.
func (s *Store) SourceHistory(ctx context.Context, filename string, limit int) ([]mission.SourceSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.source_id, s.filename, s.events, s.offset_seconds, s.offset_strategy, s.baseline
		FROM aggregation_sources s JOIN aggregation_runs r ON r.id = s.run_id
		WHERE s.filename = $1
		ORDER BY r.created_at DESC LIMIT $2`, filename, limit)
	if err != nil {
		return nil, fmt.Errorf("query source history: %w", err)
	}
	defer rows.Close()

	var out []mission.SourceSummary
	for rows.Next() {
		var (
			src      mission.SourceSummary
			strategy string
		)
		if err := rows.Scan(&src.ID, &src.Filename, &src.Events, &src.Offset, &strategy, &src.Baseline); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		src.OffsetStrategy = mission.OffsetStrategy(strategy)
		out = append(out, src)
	}
	return out, rows.Err()
}
