package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]Status{"": StatusOpen, "open": StatusOpen, "closed": StatusClosed, " all ": StatusAll} {
		got, err := ParseStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseStatus("resolved")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestParseSite(t *testing.T) {
	got, err := ParseSite("kalshi")
	require.NoError(t, err)
	assert.Equal(t, SiteKalshi, got)

	_, err = ParseSite("Kalshi")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "sources", verr.Field)
}

func TestSearchRequestValidate(t *testing.T) {
	req := SearchRequest{Query: "will it rain"}
	require.NoError(t, req.Validate(3))
	assert.Equal(t, StatusOpen, req.Status)

	cases := []struct {
		name string
		req  SearchRequest
	}{
		{"empty query", SearchRequest{}},
		{"long query", SearchRequest{Query: strings.Repeat("a", MaxQueryLength+1)}},
		{"embedding length", SearchRequest{Query: "q", Embedding: []float32{1, 2}}},
		{"zero embedding", SearchRequest{Query: "q", Embedding: []float32{0, 0, 0}}},
		{"nan embedding", SearchRequest{Query: "q", Embedding: []float32{1, float32(math.NaN()), 0}}},
		{"inf embedding", SearchRequest{Query: "q", Embedding: []float32{float32(math.Inf(-1)), 0, 0}}},
		{"status", SearchRequest{Query: "q", Status: "pending"}},
		{"source", SearchRequest{Query: "q", Sources: []Site{"predictit"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.req.Validate(3), ErrValidation)
		})
	}

	multibyte := SearchRequest{Query: strings.Repeat("é", MaxQueryLength)}
	assert.NoError(t, multibyte.Validate(3), "length counts characters, not bytes")
}

func TestMarketEmbeddingTextAndView(t *testing.T) {
	m := Market{ID: 4, Site: SiteManifold, MarketID: "x", Title: "T", URL: "u", Embedding: []float32{1}}
	assert.Equal(t, "T", m.EmbeddingText())
	m.Description = "D"
	assert.Equal(t, "T\n\nD", m.EmbeddingText())

	v := m.View()
	assert.Equal(t, MarketView{ID: 4, Site: SiteManifold, MarketID: "x", Title: "T", Description: "D", URL: "u"}, v)
}

func TestErrorsMatchSentinels(t *testing.T) {
	wrapped := fmt.Errorf("search: %w", &UpstreamError{Service: "store", Err: errors.New("refused")})
	assert.ErrorIs(t, wrapped, ErrUpstreamUnavailable)
	assert.EqualError(t, wrapped, "search: store: refused")

	assert.ErrorIs(t, &DimensionError{Got: 3, Want: 4}, ErrDimension)
	assert.ErrorIs(t, &MalformedCursorError{Cursor: "x"}, ErrMalformedCursor)
	assert.NotErrorIs(t, Validationf("q", "bad"), ErrDimension)
	assert.Equal(t, "bad", (&ValidationError{Reason: "bad"}).Error())
}
