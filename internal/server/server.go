// Package server exposes the search engine over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketsearch/internal/domain"
	"github.com/alanyoungcy/marketsearch/internal/server/handler"
	"github.com/alanyoungcy/marketsearch/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit is the per-IP request budget per RateWindow. Zero disables
	// rate limiting.
	RateLimit  int
	RateWindow time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Metrics is the part of the metrics exporter the server uses.
type Metrics interface {
	middleware.HTTPObserver
	Handler() http.Handler
}

// Handlers aggregates the HTTP handlers and optional collaborators the
// server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Search  *handler.SearchHandler
	Metrics Metrics            // nil disables /metrics
	Limiter domain.RateLimiter // nil disables rate limiting
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and builds the middleware chain.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
			Handler:           routes(cfg, handlers, logger),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       orDefault(cfg.ReadTimeout, 15*time.Second),
			WriteTimeout:      orDefault(cfg.WriteTimeout, 30*time.Second),
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

func routes(cfg Config, handlers Handlers, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("POST /api/embed", handlers.Search.Embed)
	mux.HandleFunc("POST /api/search", handlers.Search.Search)
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics.Handler())
	}

	// Innermost first.
	var h http.Handler = mux
	if handlers.Metrics != nil {
		h = middleware.Metrics(handlers.Metrics)(h)
	}
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	if handlers.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(handlers.Limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens for HTTP requests and blocks until the server fails or is
// shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests to finish within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
