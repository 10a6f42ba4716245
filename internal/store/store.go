package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS aggregation_runs (
	id                    uuid PRIMARY KEY,
	mission_name          text        NOT NULL,
	start_time            double precision NOT NULL,
	duration              double precision NOT NULL,
	raw_event_count       integer     NOT NULL,
	merged_events         integer     NOT NULL,
	duplicates_suppressed integer     NOT NULL,
	inferred_links        integer     NOT NULL,
	payload               jsonb       NOT NULL,
	created_at            timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS aggregation_runs_created_at_idx ON aggregation_runs (created_at DESC);

CREATE TABLE IF NOT EXISTS aggregation_sources (
	id              uuid PRIMARY KEY,
	run_id          uuid    NOT NULL REFERENCES aggregation_runs (id) ON DELETE CASCADE,
	source_id       text    NOT NULL,
	filename        text    NOT NULL,
	events          integer NOT NULL,
	offset_seconds  double precision NOT NULL,
	offset_strategy text    NOT NULL,
	baseline        boolean NOT NULL
);

CREATE TABLE IF NOT EXISTS ingest_failures (
	id      uuid PRIMARY KEY,
	run_id  uuid NOT NULL REFERENCES aggregation_runs (id) ON DELETE CASCADE,
	file    text NOT NULL,
	error   text NOT NULL
);
`

// Migrate creates the run history tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
