// Package mock provides a deterministic domain.Embedder for tests.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"

	"github.com/alanyoungcy/marketsearch/internal/domain"
)

// Embedder is a test double for domain.Embedder. Func fields override the
// default hash-derived vectors.
type Embedder struct {
	// Dims is the length of generated vectors. Zero means
	// domain.EmbeddingDimensions.
	Dims int

	EmbedFunc      func(ctx context.Context, text string) ([]float32, error)
	EmbedBatchFunc func(ctx context.Context, texts []string) ([][]float32, error)

	calls atomic.Int64
}

var _ domain.Embedder = (*Embedder)(nil)

// NewEmbedder returns an Embedder producing dims-long vectors.
func NewEmbedder(dims int) *Embedder {
	return &Embedder{Dims: dims}
}

func (m *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Vector(text, m.dims()), nil
}

func (m *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if m.EmbedBatchFunc != nil {
		return m.EmbedBatchFunc(ctx, texts)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t, m.dims())
	}
	return out, nil
}

// Calls returns how many times either method was invoked.
func (m *Embedder) Calls() int { return int(m.calls.Load()) }

func (m *Embedder) dims() int {
	if m.Dims > 0 {
		return m.Dims
	}
	return domain.EmbeddingDimensions
}

// Vector derives a unit vector from text. Equal texts give equal vectors.
func Vector(text string, dims int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	v := make([]float32, dims)
	var sum float64
	for i := range v {
		seed = seed*1664525 + 1013904223
		v[i] = float32(seed%1000)/1000 + 0.001
		sum += float64(v[i]) * float64(v[i])
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= norm
	}
	return v
}
