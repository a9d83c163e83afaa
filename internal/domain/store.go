package domain

import "context"

// MarketWriter persists ingested markets. Upserts are keyed on
// (Site, MarketID); the store-assigned ID never changes once issued.
type MarketWriter interface {
	UpsertBatch(ctx context.Context, markets []Market) error
	Count(ctx context.Context) (int64, error)
}

// Embedder turns text into a vector. Implementations return the provider's
// full-length output; fitting to EmbeddingDimensions is the caller's job.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
