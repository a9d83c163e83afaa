package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketsearch/internal/embedding/mock"
)

// unreachable returns a Client whose every command fails fast.
func unreachable(t *testing.T) *Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return &Client{rdb: rdb}
}

func TestVectorCodec(t *testing.T) {
	vec := []float32{0, 1.5, -2.25, 3.4028235e38}
	got, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
	_, err = decodeVector(nil)
	assert.Error(t, err)
}

func TestEmbeddingCacheKey(t *testing.T) {
	a := NewEmbeddingCache(unreachable(t), mock.NewEmbedder(4), "m1", 0, nil)
	b := NewEmbeddingCache(unreachable(t), mock.NewEmbedder(4), "m2", 0, nil)

	assert.Equal(t, a.key("rain"), a.key("rain"))
	assert.NotEqual(t, a.key("rain"), a.key("snow"))
	assert.NotEqual(t, a.key("rain"), b.key("rain"))
	assert.Contains(t, a.key("rain"), "marketsearch:emb:m1:")
	assert.Equal(t, DefaultEmbeddingTTL, a.ttl)
}

func TestEmbeddingCacheFallsThroughWhenRedisIsDown(t *testing.T) {
	inner := mock.NewEmbedder(4)
	c := NewEmbeddingCache(unreachable(t), inner, "m", time.Minute, nil)

	vec, err := c.Embed(context.Background(), "rain")
	require.NoError(t, err)
	assert.Equal(t, mock.Vector("rain", 4), vec)

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{mock.Vector("a", 4), mock.Vector("b", 4)}, vecs)
	assert.Equal(t, 2, inner.Calls())
}

func TestEmbeddingCacheEmptyBatch(t *testing.T) {
	inner := mock.NewEmbedder(4)
	c := NewEmbeddingCache(unreachable(t), inner, "m", time.Minute, nil)

	vecs, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Zero(t, inner.Calls())
}

func TestRateLimiterRejectsNonPositiveLimit(t *testing.T) {
	rl := NewRateLimiter(unreachable(t))
	ok, err := rl.Allow(context.Background(), "ip", 0, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = rl.Allow(context.Background(), "ip", 5, time.Second)
	assert.Error(t, err, "unreachable redis surfaces as an error")
}
