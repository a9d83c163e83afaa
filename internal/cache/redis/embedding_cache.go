package redis

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/marketsearch/internal/domain"
)

// DefaultEmbeddingTTL bounds how long a cached vector is reused.
const DefaultEmbeddingTTL = 24 * time.Hour

// EmbeddingCache decorates a domain.Embedder with a Redis lookaside cache
// keyed by model and text. Cache failures are logged and bypassed; they
// never fail an embedding call.
//
// Key schema:
//
//	marketsearch:emb:{model}:{sha256(text)} - little-endian float32 bytes
type EmbeddingCache struct {
	rdb    *redis.Client
	inner  domain.Embedder
	model  string
	ttl    time.Duration
	logger *slog.Logger
}

var _ domain.Embedder = (*EmbeddingCache)(nil)

// NewEmbeddingCache wraps inner. model namespaces the keys so switching
// models never serves stale vectors.
func NewEmbeddingCache(c *Client, inner domain.Embedder, model string, ttl time.Duration, logger *slog.Logger) *EmbeddingCache {
	if ttl <= 0 {
		ttl = DefaultEmbeddingTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EmbeddingCache{
		rdb:    c.rdb,
		inner:  inner,
		model:  model,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "embedding-cache")),
	}
}

func (c *EmbeddingCache) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "marketsearch:emb:" + c.model + ":" + hex.EncodeToString(sum[:])
}

// Embed returns the cached vector for text or embeds and caches it.
func (c *EmbeddingCache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if vec, decErr := decodeVector(raw); decErr == nil {
			return vec, nil
		}
		c.logger.WarnContext(ctx, "discarding corrupt cache entry", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "embedding cache get failed", slog.String("error", err.Error()))
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.rdb.Set(ctx, key, encodeVector(vec), c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "embedding cache set failed", slog.String("error", err.Error()))
	}
	return vec, nil
}

// EmbedBatch serves cached vectors and embeds only the misses, in one
// provider call.
func (c *EmbeddingCache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out := make([][]float32, len(texts))
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.WarnContext(ctx, "embedding cache mget failed", slog.String("error", err.Error()))
		vals = nil
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			if vec, decErr := decodeVector([]byte(s)); decErr == nil {
				out[i] = vec
			}
		}
	}

	var missIdx []int
	var missTexts []string
	for i, vec := range out {
		if vec == nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("redis: embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}

	pipe := c.rdb.Pipeline()
	for j, i := range missIdx {
		out[i] = vecs[j]
		pipe.Set(ctx, keys[i], encodeVector(vecs[j]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.WarnContext(ctx, "embedding cache pipeline failed", slog.String("error", err.Error()))
	}
	return out, nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil, fmt.Errorf("redis: vector payload of %d bytes", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, nil
}
