package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

func newTestServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// Answer in reverse order to exercise index placement.
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(req.Input[i])), 1, 2},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestEmbedBatchChunksAndOrders(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, &calls)
	defer srv.Close()

	e, err := NewEmbedder(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1", BatchSize: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, e.Model())

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for i, v := range vecs {
		assert.Equal(t, float32(i+1), v[0])
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbedSingle(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, &calls)
	defer srv.Close()

	e, err := NewEmbedder(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"}, nil)
	require.NoError(t, err)

	v, err := e.Embed(context.Background(), "rain")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 1, 2}, v)
}

func TestEmbedProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	e, err := NewEmbedder(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"}, nil)
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "rain")
	assert.Error(t, err)
}

func TestNewEmbedderRequiresKey(t *testing.T) {
	_, err := NewEmbedder(Config{}, nil)
	assert.Error(t, err)
}
