package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketsearch/internal/domain"
)

// SearchEngine is what the search handler needs from the engine. It is
// declared locally so the handler package does not depend on the concrete
// implementation.
type SearchEngine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Search(ctx context.Context, req domain.SearchRequest) (domain.SearchPage, error)
}

// SearchObserver receives the outcome of every search request.
type SearchObserver interface {
	ObserveSearch(outcome string, results int)
}

// SearchHandler serves the embed and search endpoints.
type SearchHandler struct {
	engine   SearchEngine
	observer SearchObserver
	logger   *slog.Logger
}

// NewSearchHandler creates a SearchHandler. observer may be nil.
func NewSearchHandler(engine SearchEngine, observer SearchObserver, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		engine:   engine,
		observer: observer,
		logger:   logHandler(logger, "search"),
	}
}

type embedRequest struct {
	Query string `json:"query"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the embedding of a query so the caller can reuse it across
// pages.
// POST /api/embed
func (h *SearchHandler) Embed(w http.ResponseWriter, r *http.Request) {
	var req embedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		failWith(w, r, h.logger, "embed", err)
		return
	}
	vec, err := h.engine.Embed(r.Context(), req.Query)
	if err != nil {
		failWith(w, r, h.logger, "embed", err)
		return
	}
	writeJSON(w, http.StatusOK, embedResponse{Embedding: vec})
}

type searchRequest struct {
	Query     string    `json:"query"`
	Cursor    *string   `json:"cursor"`
	Embedding []float32 `json:"embedding"`
	Status    string    `json:"status"`
	Sources   []string  `json:"sources"`
}

func (s searchRequest) toDomain() (domain.SearchRequest, error) {
	status, err := domain.ParseStatus(s.Status)
	if err != nil {
		return domain.SearchRequest{}, err
	}
	out := domain.SearchRequest{
		Query:     s.Query,
		Embedding: s.Embedding,
		Status:    status,
	}
	if s.Cursor != nil {
		out.Cursor = *s.Cursor
	}
	for _, src := range s.Sources {
		site, err := domain.ParseSite(src)
		if err != nil {
			return domain.SearchRequest{}, err
		}
		out.Sources = append(out.Sources, site)
	}
	return out, nil
}

// Search returns one page of markets ranked by similarity to the query.
// POST /api/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	req, err := body.toDomain()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	page, err := h.engine.Search(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if page.Markets == nil {
		page.Markets = []domain.MarketView{}
	}
	if h.observer != nil {
		h.observer.ObserveSearch("ok", len(page.Markets))
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *SearchHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.observer != nil {
		h.observer.ObserveSearch(outcome(err), 0)
	}
	failWith(w, r, h.logger, "search", err)
}
