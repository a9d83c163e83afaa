package search

import (
	"context"

	"github.com/alanyoungcy/marketsearch/internal/domain"
)

// Resolver produces the query vector for a request. It holds no state
// between calls.
type Resolver struct {
	embedder domain.Embedder
	dims     int
}

// NewResolver returns a Resolver fitting provider output to dims components.
func NewResolver(embedder domain.Embedder, dims int) *Resolver {
	if dims <= 0 {
		dims = domain.EmbeddingDimensions
	}
	return &Resolver{embedder: embedder, dims: dims}
}

// Dimensions returns the vector length the resolver produces.
func (r *Resolver) Dimensions() int { return r.dims }

// Resolve returns supplied unchanged when it has exactly the configured
// length, and otherwise embeds query. A supplied vector of the wrong length
// is a ValidationError; no provider call is made for it.
func (r *Resolver) Resolve(ctx context.Context, query string, supplied []float32) ([]float32, error) {
	if supplied != nil {
		if len(supplied) != r.dims {
			return nil, domain.Validationf("embedding", "must have exactly %d dimensions, got %d", r.dims, len(supplied))
		}
		return supplied, nil
	}
	return r.Embed(ctx, query)
}

// Embed makes one provider call for text and truncates the result.
func (r *Resolver) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, &domain.UpstreamError{Service: "embedder", Err: err}
	}
	return Fit(vec, r.dims)
}

// Fit truncates vec to dims components. It never pads: a shorter vector is
// a DimensionError.
func Fit(vec []float32, dims int) ([]float32, error) {
	if len(vec) < dims {
		return nil, &domain.DimensionError{Got: len(vec), Want: dims}
	}
	return vec[:dims:dims], nil
}
