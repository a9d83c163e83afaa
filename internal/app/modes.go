package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketsearch/internal/domain"
	"github.com/alanyoungcy/marketsearch/internal/pipeline"
	"github.com/alanyoungcy/marketsearch/internal/platform"
	"github.com/alanyoungcy/marketsearch/internal/platform/kalshi"
	"github.com/alanyoungcy/marketsearch/internal/platform/manifold"
	"github.com/alanyoungcy/marketsearch/internal/platform/polymarket"
	"github.com/alanyoungcy/marketsearch/internal/search"
	"github.com/alanyoungcy/marketsearch/internal/server"
	"github.com/alanyoungcy/marketsearch/internal/server/handler"
)

// ServeMode runs the search API until ctx is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// IngestMode crawls every configured source. With a zero ingest interval it
// makes one pass and returns; otherwise it repeats until ctx is cancelled.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	orch, err := a.buildOrchestrator(deps)
	if err != nil {
		return err
	}
	return orch.Run(ctx)
}

// FullMode serves the API and keeps the index fresh in the same process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	orch, err := a.buildOrchestrator(deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	g.Go(func() error { return orch.Run(ctx) })
	return g.Wait()
}

func (a *App) buildEngine(deps *Dependencies) *search.Engine {
	return search.NewEngine(deps.Store, search.NewResolver(deps.Embedder, a.cfg.Search.Dimensions), search.Config{
		PageSize:     a.cfg.Search.PageSize,
		EmbedTimeout: a.cfg.Search.EmbedTimeout.Duration,
		QueryTimeout: a.cfg.Search.QueryTimeout.Duration,
	}, a.logger.With(slog.String("component", "search")))
}

// startHTTPServer adds the HTTP server to g and shuts it down gracefully
// once ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var observer handler.SearchObserver
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Health, a.logger),
		Limiter: deps.Limiter,
	}
	if deps.Metrics != nil {
		observer = deps.Metrics
		handlers.Metrics = deps.Metrics
	}
	handlers.Search = handler.NewSearchHandler(a.buildEngine(deps), observer, a.logger)

	sc := a.cfg.Server
	srv := server.NewServer(server.Config{
		Host:         sc.Host,
		Port:         sc.Port,
		CORSOrigins:  sc.CORSOrigins,
		APIKey:       sc.APIKey,
		RateLimit:    sc.RateLimit,
		RateWindow:   sc.RateWindow.Duration,
		ReadTimeout:  sc.ReadTimeout.Duration,
		WriteTimeout: sc.WriteTimeout.Duration,
	}, handlers, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		grace := sc.ShutdownTimeout.Duration
		if grace <= 0 {
			grace = shutdownGrace
		}
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func (a *App) buildOrchestrator(deps *Dependencies) (*pipeline.Orchestrator, error) {
	sources, err := a.buildSources()
	if err != nil {
		return nil, err
	}
	since, err := a.cfg.Ingest.BackfillTime()
	if err != nil {
		return nil, fmt.Errorf("app: backfill_since: %w", err)
	}

	var observer pipeline.Observer
	if deps.Metrics != nil {
		observer = deps.Metrics
	}
	ingesters := make([]*pipeline.Ingester, 0, len(sources))
	for _, src := range sources {
		ingesters = append(ingesters, pipeline.NewIngester(src, deps.Embedder, deps.Writer, deps.Archiver, deps.Runs, observer,
			pipeline.IngesterConfig{
				BackfillSince: since,
				Dimensions:    a.cfg.Search.Dimensions,
				MaxPages:      a.cfg.Ingest.MaxPages,
			}, a.logger))
	}
	return pipeline.NewOrchestrator(ingesters, a.cfg.Ingest.Interval.Duration, a.logger), nil
}

// buildSources creates one rate-limited client per enabled venue.
func (a *App) buildSources() ([]platform.Source, error) {
	ic := a.cfg.Ingest
	getter := func(baseURL string) *platform.Getter {
		return platform.NewGetter(platform.GetterConfig{
			BaseURL:           baseURL,
			RequestsPerSecond: ic.RequestsPerSecond,
			Timeout:           ic.Timeout.Duration,
		})
	}

	var sources []platform.Source
	for _, name := range ic.Sources {
		site, err := domain.ParseSite(name)
		if err != nil {
			return nil, fmt.Errorf("app: ingest sources: %w", err)
		}
		switch site {
		case domain.SitePolymarket:
			sources = append(sources, polymarket.NewGammaClient(getter(ic.Polymarket.GammaHost), ic.Polymarket.SiteURL, ic.PageSize))
		case domain.SiteKalshi:
			c := kalshi.NewClient(getter(ic.Kalshi.BaseURL), ic.Kalshi.SiteURL, ic.PageSize)
			if ic.Kalshi.APIKeyID != "" {
				pem, err := os.ReadFile(ic.Kalshi.RsaPrivateKeyPath)
				if err != nil {
					return nil, fmt.Errorf("app: read kalshi private key: %w", err)
				}
				if err := c.SetCredentials(ic.Kalshi.APIKeyID, pem); err != nil {
					return nil, fmt.Errorf("app: %w", err)
				}
			}
			sources = append(sources, c)
		case domain.SiteManifold:
			sources = append(sources, manifold.NewClient(getter(ic.Manifold.BaseURL), ic.PageSize))
		}
	}
	if len(sources) == 0 {
		return nil, errors.New("app: no ingest sources configured")
	}
	return sources, nil
}

// shutdownGrace is used when the configured shutdown timeout is unset.
const shutdownGrace = 10 * time.Second
