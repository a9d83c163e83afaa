package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/marketsearch/internal/domain"
	"github.com/alanyoungcy/marketsearch/internal/platform"
	"github.com/alanyoungcy/marketsearch/internal/search"
)

// DefaultBackfillSince is the earliest close time worth ingesting.
var DefaultBackfillSince = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

// Observer receives ingestion measurements. A nil Observer is allowed.
type Observer interface {
	ObservePage(site domain.Site, fetched, upserted int)
	ObserveRun(site domain.Site, d time.Duration, err error)
}

// IngesterConfig tunes one Ingester.
type IngesterConfig struct {
	// BackfillSince drops markets that closed before it. Markets without a
	// close time are kept.
	BackfillSince time.Time
	// Dimensions is the stored embedding length.
	Dimensions int
	// MaxPages bounds one run; zero means no bound.
	MaxPages int
}

// Ingester pulls one venue's listing, embeds every market and upserts it.
type Ingester struct {
	source   platform.Source
	embedder domain.Embedder
	writer   domain.MarketWriter
	archiver domain.Archiver
	runs     domain.IngestRunRecorder
	observer Observer
	cfg      IngesterConfig
	logger   *slog.Logger
}

// NewIngester creates an Ingester. archiver, runs and observer may be nil.
func NewIngester(
	source platform.Source,
	embedder domain.Embedder,
	writer domain.MarketWriter,
	archiver domain.Archiver,
	runs domain.IngestRunRecorder,
	observer Observer,
	cfg IngesterConfig,
	logger *slog.Logger,
) *Ingester {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = domain.EmbeddingDimensions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		source:   source,
		embedder: embedder,
		writer:   writer,
		archiver: archiver,
		runs:     runs,
		observer: observer,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "ingester"), slog.String("site", string(source.Site()))),
	}
}

// Site returns the venue this ingester pulls from.
func (s *Ingester) Site() domain.Site { return s.source.Site() }

// Run pages through the whole listing once.
func (s *Ingester) Run(ctx context.Context) (domain.IngestRun, error) {
	run := domain.IngestRun{
		ID:        uuid.NewString(),
		Site:      s.source.Site(),
		StartedAt: time.Now().UTC(),
	}

	err := s.pages(ctx, &run)

	run.FinishedAt = time.Now().UTC()
	if err != nil {
		run.Error = err.Error()
	}
	if s.observer != nil {
		s.observer.ObserveRun(run.Site, run.FinishedAt.Sub(run.StartedAt), err)
	}
	if s.runs != nil {
		// Recorded even when ctx is done so shutdown still leaves a trace.
		recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if recErr := s.runs.RecordRun(recCtx, run); recErr != nil {
			s.logger.Warn("record ingest run failed", slog.String("error", recErr.Error()))
		}
		cancel()
	}

	s.logger.Info("ingest run finished",
		slog.String("run_id", run.ID),
		slog.Int("fetched", run.Fetched),
		slog.Int("upserted", run.Upserted),
		slog.Duration("took", run.FinishedAt.Sub(run.StartedAt)),
	)
	return run, err
}

func (s *Ingester) pages(ctx context.Context, run *domain.IngestRun) error {
	token := ""
	for n := 0; s.cfg.MaxPages == 0 || n < s.cfg.MaxPages; n++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline: %s: %w", run.Site, err)
		}

		page, err := s.source.Fetch(ctx, token)
		if err != nil {
			return fmt.Errorf("pipeline: %s: fetch page %d: %w", run.Site, n, err)
		}
		upserted, key, err := s.ingestPage(ctx, page)
		run.Fetched += len(page.Markets)
		run.Upserted += upserted
		if key != "" {
			run.ArchiveKey = key
		}
		if err != nil {
			return fmt.Errorf("pipeline: %s: page %d: %w", run.Site, n, err)
		}
		if s.observer != nil {
			s.observer.ObservePage(run.Site, len(page.Markets), upserted)
		}

		if page.Next == "" || page.Next == token {
			return nil
		}
		token = page.Next
	}
	return nil
}

// ingestPage embeds and stores the markets of one page that pass the
// backfill filter, then archives the page. It returns the number upserted
// and the archive key.
func (s *Ingester) ingestPage(ctx context.Context, page platform.Page) (int, string, error) {
	keep := make([]domain.Market, 0, len(page.Markets))
	for _, m := range page.Markets {
		if !m.CloseTime.IsZero() && m.CloseTime.Before(s.cfg.BackfillSince) {
			continue
		}
		keep = append(keep, m)
	}

	if len(keep) > 0 {
		texts := make([]string, len(keep))
		for i, m := range keep {
			texts[i] = m.EmbeddingText()
		}
		vecs, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, "", &domain.UpstreamError{Service: "embedder", Err: err}
		}
		if len(vecs) != len(keep) {
			return 0, "", fmt.Errorf("embedder returned %d vectors for %d markets", len(vecs), len(keep))
		}
		for i := range keep {
			v, err := search.Fit(vecs[i], s.cfg.Dimensions)
			if err != nil {
				return 0, "", err
			}
			keep[i].Embedding = v
		}
		if err := s.writer.UpsertBatch(ctx, keep); err != nil {
			return 0, "", &domain.UpstreamError{Service: "store", Err: err}
		}
	}

	var key string
	if s.archiver != nil && len(page.Raw) > 0 {
		var err error
		key, err = s.archiver.Archive(ctx, s.source.Site(), page.Raw)
		if err != nil {
			// The markets are already stored; a lost archive is not worth
			// failing the run for.
			s.logger.Warn("archive page failed", slog.String("error", err.Error()))
		}
	}
	return len(keep), key, nil
}

// RunLoop runs immediately and then every interval until ctx is cancelled.
// A failed run is logged and retried on the next tick.
func (s *Ingester) RunLoop(ctx context.Context, interval time.Duration) error {
	if _, err := s.Run(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("ingest run failed", slog.String("error", err.Error()))
	}
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ingest loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("ingest run failed", slog.String("error", err.Error()))
			}
		}
	}
}
