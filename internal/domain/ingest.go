package domain

import (
	"context"
	"time"
)

// IngestRun summarizes one pass of a source through the ingestion pipeline.
type IngestRun struct {
	ID         string
	Site       Site
	StartedAt  time.Time
	FinishedAt time.Time
	Fetched    int
	Upserted   int
	ArchiveKey string
	Error      string
}

// IngestRunRecorder persists ingestion run summaries.
type IngestRunRecorder interface {
	RecordRun(ctx context.Context, run IngestRun) error
}
