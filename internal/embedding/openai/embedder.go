// Package openai embeds text with an OpenAI-compatible embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/alanyoungcy/marketsearch/internal/domain"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-3-large"

// defaultBatchSize stays under the provider's per-request input cap.
const defaultBatchSize = 256

// Config holds provider settings.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	BatchSize int
}

// Embedder implements domain.Embedder. It returns the provider's
// full-length vectors; truncation happens in the caller.
type Embedder struct {
	client    *openai.Client
	model     string
	batchSize int
	logger    *slog.Logger
}

var _ domain.Embedder = (*Embedder)(nil)

// NewEmbedder creates an Embedder from cfg.
func NewEmbedder(cfg Config, logger *slog.Logger) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		batchSize: batch,
		logger:    logger.With(slog.String("component", "openai-embedder")),
	}, nil
}

// Model returns the configured model name.
func (e *Embedder) Model() string { return e.model }

// Embed returns the embedding of a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.create(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in provider-sized chunks, preserving order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.create(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *Embedder) create(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		e.logger.WarnContext(ctx, "create embeddings failed",
			slog.Int("inputs", len(texts)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("openai: create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || vecs[d.Index] != nil {
			return nil, fmt.Errorf("openai: unexpected embedding index %d", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}
