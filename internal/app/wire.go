package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/marketsearch/internal/blob/s3"
	"github.com/alanyoungcy/marketsearch/internal/cache/redis"
	"github.com/alanyoungcy/marketsearch/internal/config"
	"github.com/alanyoungcy/marketsearch/internal/domain"
	"github.com/alanyoungcy/marketsearch/internal/embedding/mock"
	"github.com/alanyoungcy/marketsearch/internal/embedding/openai"
	"github.com/alanyoungcy/marketsearch/internal/metrics"
	"github.com/alanyoungcy/marketsearch/internal/search"
	"github.com/alanyoungcy/marketsearch/internal/server/handler"
	"github.com/alanyoungcy/marketsearch/internal/store/memory"
	"github.com/alanyoungcy/marketsearch/internal/store/postgres"
)

// Dependencies bundles the concrete implementations the modes run on. It is
// constructed by Wire and torn down by the returned cleanup function.
// Optional collaborators are nil interfaces when not configured.
type Dependencies struct {
	Store    search.Store
	Writer   domain.MarketWriter
	Runs     domain.IngestRunRecorder
	Embedder domain.Embedder
	Limiter  domain.RateLimiter
	Archiver domain.Archiver
	Metrics  *metrics.Exporter

	// Health lists the dependencies /api/health pings.
	Health map[string]handler.Pinger
}

// Wire constructs every dependency the configuration asks for and returns
// them together with a cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{Health: map[string]handler.Pinger{}}

	// --- Vector store ---
	switch cfg.Search.Store {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:         cfg.Postgres.DSN,
			Host:        cfg.Postgres.Host,
			Port:        cfg.Postgres.Port,
			Database:    cfg.Postgres.Database,
			User:        cfg.Postgres.User,
			Password:    cfg.Postgres.Password,
			SSLMode:     cfg.Postgres.SSLMode,
			MaxConns:    cfg.Postgres.PoolMaxConns,
			MinConns:    cfg.Postgres.PoolMinConns,
			ConnTimeout: cfg.Postgres.ConnTimeout.Duration,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		markets := postgres.NewMarketStore(pg.Pool())
		deps.Store = markets
		deps.Writer = markets
		deps.Runs = postgres.NewIngestRunStore(pg.Pool())
		deps.Health["postgres"] = pg
	case "memory":
		logger.WarnContext(ctx, "wire: using the in-memory store; markets are lost on exit")
		markets := memory.NewMarketStore()
		deps.Store = markets
		deps.Writer = markets
	default:
		return fail("store", fmt.Errorf("unknown store %q", cfg.Search.Store))
	}

	// --- Embedding provider ---
	switch cfg.Embedding.Provider {
	case "openai":
		e, err := openai.NewEmbedder(openai.Config{
			APIKey:    cfg.Embedding.APIKey,
			BaseURL:   cfg.Embedding.BaseURL,
			Model:     cfg.Embedding.Model,
			BatchSize: cfg.Embedding.BatchSize,
		}, logger)
		if err != nil {
			return fail("embedding", err)
		}
		deps.Embedder = e
	case "mock":
		deps.Embedder = mock.NewEmbedder(cfg.Search.Dimensions)
	default:
		return fail("embedding", fmt.Errorf("unknown provider %q", cfg.Embedding.Provider))
	}

	// --- Redis: embedding cache and API rate limiter ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.Embedder = redis.NewEmbeddingCache(rc, deps.Embedder, cfg.Embedding.Model, cfg.Redis.EmbeddingTTL.Duration, logger)
		deps.Limiter = redis.NewRateLimiter(rc)
		deps.Health["redis"] = rc
	}

	// --- S3 raw archive (ingest only) ---
	if cfg.S3.Enabled && cfg.Ingests() {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Archiver = s3blob.NewBatchArchiver(s3blob.NewWriter(sc), cfg.S3.Prefix)
		deps.Health["s3"] = handler.PingFunc(sc.Health)
	}

	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.New(metrics.DefaultConfig())
	}

	return deps, cleanup, nil
}
