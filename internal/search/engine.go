package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/alanyoungcy/marketsearch/internal/domain"
)

// Page size bounds. DefaultPageSize is the number of markets per page when
// the operator does not configure one.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Query is one similarity lookup against a Store.
type Query struct {
	Vector []float32
	Filter Filter
	Limit  int
}

// Store returns up to q.Limit markets satisfying q.Filter, ordered by
// OrderBy, each with its similarity to q.Vector.
type Store interface {
	SearchSimilar(ctx context.Context, q Query) ([]Candidate, error)
}

// Config tunes an Engine.
type Config struct {
	PageSize     int
	EmbedTimeout time.Duration
	QueryTimeout time.Duration
}

// Engine answers search requests one page at a time. It keeps no state
// between requests; the cursor carries everything needed to continue.
type Engine struct {
	store    Store
	resolver *Resolver
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
}

// NewEngine creates an Engine. A PageSize outside 1..MaxPageSize falls back
// to DefaultPageSize.
func NewEngine(store Store, resolver *Resolver, cfg Config, logger *slog.Logger) *Engine {
	if cfg.PageSize < 1 || cfg.PageSize > MaxPageSize {
		cfg.PageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		resolver: resolver,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock replaces the time source used for status filtering.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// PageSize returns the configured page size.
func (e *Engine) PageSize() int { return e.cfg.PageSize }

// Dimensions returns the embedding length requests must carry.
func (e *Engine) Dimensions() int { return e.resolver.Dimensions() }

// Embed returns the truncated provider embedding for text.
func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	n := utf8.RuneCountInString(text)
	if n < domain.MinQueryLength || n > domain.MaxQueryLength {
		return nil, domain.Validationf("text", "length must be %d-%d characters, got %d",
			domain.MinQueryLength, domain.MaxQueryLength, n)
	}
	ctx, cancel := withTimeout(ctx, e.cfg.EmbedTimeout)
	defer cancel()
	return e.resolver.Embed(ctx, text)
}

// Search returns one page of markets ranked by similarity to the request.
//
// Validation, including the embedding length check, happens before the
// provider or the store is contacted. The store is asked for one row more
// than the page size; the extra row only signals that another page exists.
func (e *Engine) Search(ctx context.Context, req domain.SearchRequest) (domain.SearchPage, error) {
	if err := req.Validate(e.resolver.Dimensions()); err != nil {
		return domain.SearchPage{}, err
	}

	var after *Cursor
	if req.Cursor != "" {
		c, err := DecodeCursor(req.Cursor)
		if err != nil {
			return domain.SearchPage{}, err
		}
		after = &c
	}

	vector, err := e.resolve(ctx, req)
	if err != nil {
		return domain.SearchPage{}, err
	}

	now := e.now()
	q := Query{
		Vector: vector,
		Filter: Compose(req.Status, req.Sources, after, now),
		Limit:  e.cfg.PageSize + 1,
	}

	rows, err := e.query(ctx, q)
	if err != nil {
		return domain.SearchPage{}, err
	}

	hasMore := len(rows) > e.cfg.PageSize
	if hasMore {
		rows = rows[:e.cfg.PageSize]
	}

	page := domain.SearchPage{Markets: make([]domain.MarketView, 0, len(rows))}
	for _, r := range rows {
		page.Markets = append(page.Markets, r.Market.View())
	}
	if hasMore {
		token, err := CursorOf(rows[len(rows)-1]).Encode()
		if err != nil {
			return domain.SearchPage{}, err
		}
		page.NextCursor = &token
	}

	e.logger.Debug("search page",
		slog.Int("results", len(page.Markets)),
		slog.Bool("has_more", hasMore),
		slog.String("status", string(req.Status)),
		slog.Int("sources", len(req.Sources)),
		slog.Bool("cursor", after != nil),
		slog.Bool("embedding_supplied", req.Embedding != nil),
	)
	return page, nil
}

func (e *Engine) resolve(ctx context.Context, req domain.SearchRequest) ([]float32, error) {
	if req.Embedding != nil {
		return e.resolver.Resolve(ctx, req.Query, req.Embedding)
	}
	ctx, cancel := withTimeout(ctx, e.cfg.EmbedTimeout)
	defer cancel()
	return e.resolver.Resolve(ctx, req.Query, nil)
}

func (e *Engine) query(ctx context.Context, q Query) ([]Candidate, error) {
	ctx, cancel := withTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()

	rows, err := e.store.SearchSimilar(ctx, q)
	if err != nil {
		return nil, &domain.UpstreamError{Service: "store", Err: err}
	}
	if len(rows) > q.Limit {
		return nil, fmt.Errorf("search: store returned %d rows for limit %d", len(rows), q.Limit)
	}
	return rows, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
