package manifold

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketsearch/internal/domain"
	"github.com/alanyoungcy/marketsearch/internal/platform"
)

const page = `[
  {
    "id": "abc123",
    "question": "Will GPT-5 be released before 2025?",
    "url": "https://manifold.markets/user/will-gpt5-be-released",
    "outcomeType": "BINARY",
    "probability": 0.12,
    "volume": 5400.25,
    "uniqueBettorCount": 87,
    "createdTime": 1700000000000,
    "closeTime": 1735689599000
  },
  {
    "id": "def456",
    "question": "Which team wins?",
    "url": "https://manifold.markets/user/which-team",
    "outcomeType": "MULTIPLE_CHOICE",
    "volume": 10,
    "createdTime": 1700000001000
  }
]`

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/markets", r.URL.Path)
		assert.Equal(t, "xyz", r.URL.Query().Get("before"))
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	c := NewClient(platform.NewGetter(platform.GetterConfig{BaseURL: srv.URL}), 2)
	assert.Equal(t, domain.SiteManifold, c.Site())

	got, err := c.Fetch(context.Background(), "xyz")
	require.NoError(t, err)
	require.Len(t, got.Markets, 2)
	assert.Equal(t, "def456", got.Next)

	m := got.Markets[0]
	assert.Equal(t, "abc123", m.MarketID)
	assert.Equal(t, "https://manifold.markets/user/will-gpt5-be-released", m.URL)
	assert.Equal(t, time.UnixMilli(1735689599000).UTC(), m.CloseTime)
	assert.Equal(t, domain.Details{
		domain.Probability(0.12),
		domain.BettorCount(87),
		domain.Volume(5400.25),
	}, m.Details)

	assert.True(t, got.Markets[1].CloseTime.IsZero())
	assert.Equal(t, domain.Details{domain.Volume(10)}, got.Markets[1].Details)
}

func TestFetchShortPageEnds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	got, err := NewClient(platform.NewGetter(platform.GetterConfig{BaseURL: srv.URL}), 50).Fetch(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, got.Next)
}

func TestFetchUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(platform.NewGetter(platform.GetterConfig{BaseURL: srv.URL}), 50).Fetch(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}
