package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketsearch/internal/domain"
)

// IngestRunStore implements domain.IngestRunRecorder.
type IngestRunStore struct {
	pool *pgxpool.Pool
}

// NewIngestRunStore creates an IngestRunStore backed by pool.
func NewIngestRunStore(pool *pgxpool.Pool) *IngestRunStore {
	return &IngestRunStore{pool: pool}
}

var _ domain.IngestRunRecorder = (*IngestRunStore)(nil)

// RecordRun inserts run, or replaces the row with the same id.
func (s *IngestRunStore) RecordRun(ctx context.Context, run domain.IngestRun) error {
	const query = `
		INSERT INTO ingest_runs (
			id, site, started_at, finished_at, fetched, upserted, archive_key, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			fetched     = EXCLUDED.fetched,
			upserted    = EXCLUDED.upserted,
			archive_key = EXCLUDED.archive_key,
			error       = EXCLUDED.error`

	_, err := s.pool.Exec(ctx, query,
		run.ID, string(run.Site), run.StartedAt, nullTime(run.FinishedAt),
		run.Fetched, run.Upserted, nullString(run.ArchiveKey), nullString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("postgres: record ingest run %s: %w", run.ID, err)
	}
	return nil
}
