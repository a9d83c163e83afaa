package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketsearch/internal/domain"
	"github.com/alanyoungcy/marketsearch/internal/embedding/mock"
	"github.com/alanyoungcy/marketsearch/internal/search"
	"github.com/alanyoungcy/marketsearch/internal/store/memory"
)

type fakeEngine struct {
	embed  func(ctx context.Context, text string) ([]float32, error)
	search func(ctx context.Context, req domain.SearchRequest) (domain.SearchPage, error)
}

func (f *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.embed(ctx, text)
}

func (f *fakeEngine) Search(ctx context.Context, req domain.SearchRequest) (domain.SearchPage, error) {
	return f.search(ctx, req)
}

type outcomes map[string]int

func (o outcomes) ObserveSearch(outcome string, results int) { o[outcome]++ }

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.Validationf("query", "too long"), http.StatusBadRequest},
		{&domain.MalformedCursorError{Cursor: "x", Reason: "no separator"}, http.StatusBadRequest},
		{&domain.DimensionError{Got: 3, Want: 4}, http.StatusBadGateway},
		{&domain.UpstreamError{Service: "store", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{&domain.UpstreamError{Service: "embedder", Err: errors.New("503")}, http.StatusServiceUnavailable},
		{fmt.Errorf("search: %w", errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.err))
		})
	}
}

func TestSearchTranslatesRequest(t *testing.T) {
	var got domain.SearchRequest
	engine := &fakeEngine{search: func(ctx context.Context, req domain.SearchRequest) (domain.SearchPage, error) {
		got = req
		next := "0.5_3"
		return domain.SearchPage{
			Markets:    []domain.MarketView{{ID: 3, Site: domain.SiteKalshi, Title: "t"}},
			NextCursor: &next,
		}, nil
	}}
	obs := outcomes{}
	h := NewSearchHandler(engine, obs, nil)

	rec := post(h.Search, `{"query":"rain","cursor":"0.9_1","embedding":[1,2],"status":"all","sources":["kalshi","manifold"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	assert.Equal(t, domain.SearchRequest{
		Query:     "rain",
		Cursor:    "0.9_1",
		Embedding: []float32{1, 2},
		Status:    domain.StatusAll,
		Sources:   []domain.Site{domain.SiteKalshi, domain.SiteManifold},
	}, got)

	var page struct {
		Markets    []map[string]any `json:"markets"`
		NextCursor *string          `json:"nextCursor"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Markets, 1)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, "0.5_3", *page.NextCursor)
	assert.Equal(t, 1, obs["ok"])
}

func TestSearchEmptyPageEncodesNulls(t *testing.T) {
	engine := &fakeEngine{search: func(ctx context.Context, req domain.SearchRequest) (domain.SearchPage, error) {
		assert.Equal(t, domain.StatusOpen, req.Status)
		return domain.SearchPage{}, nil
	}}
	rec := post(NewSearchHandler(engine, nil, nil).Search, `{"query":"q","cursor":null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"markets":[],"nextCursor":null}`, rec.Body.String())
}

func TestSearchRejectsBadInputBeforeEngine(t *testing.T) {
	engine := &fakeEngine{search: func(ctx context.Context, req domain.SearchRequest) (domain.SearchPage, error) {
		t.Fatal("engine must not be called")
		return domain.SearchPage{}, nil
	}}
	obs := outcomes{}
	h := NewSearchHandler(engine, obs, nil)

	for _, body := range []string{
		`not json`,
		`{"query":"q","status":"pending"}`,
		`{"query":"q","sources":["predictit"]}`,
		`{"query":"q"} {"query":"r"}`,
	} {
		rec := post(h.Search, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.NotEmpty(t, errorBody(t, rec))
	}
	assert.Equal(t, 4, obs["invalid"])
}

func TestSearchRejectsOversizedBody(t *testing.T) {
	engine := &fakeEngine{search: func(ctx context.Context, req domain.SearchRequest) (domain.SearchPage, error) {
		t.Fatal("engine must not be called")
		return domain.SearchPage{}, nil
	}}
	h := NewSearchHandler(engine, outcomes{}, nil)

	body := `{"query":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rec := post(h.Search, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "must not exceed")
}

func TestSearchEngineErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		body   string
	}{
		{&domain.MalformedCursorError{Cursor: "abc", Reason: "missing separator"}, http.StatusBadRequest, `malformed cursor "abc": missing separator`},
		{&domain.DimensionError{Got: 10, Want: 1536}, http.StatusBadGateway, "Bad Gateway"},
		{&domain.UpstreamError{Service: "store", Err: errors.New("conn refused")}, http.StatusServiceUnavailable, "Service Unavailable"},
		{&domain.UpstreamError{Service: "embedder", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout, "Gateway Timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.body, func(t *testing.T) {
			engine := &fakeEngine{search: func(ctx context.Context, req domain.SearchRequest) (domain.SearchPage, error) {
				return domain.SearchPage{}, tc.err
			}}
			rec := post(NewSearchHandler(engine, nil, nil).Search, `{"query":"q"}`)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.body, errorBody(t, rec))
		})
	}
}

func TestEmbed(t *testing.T) {
	engine := &fakeEngine{embed: func(ctx context.Context, text string) ([]float32, error) {
		if text == "" {
			return nil, domain.Validationf("query", "length must be 1-1000 characters, got 0")
		}
		return []float32{0.25, -0.5}, nil
	}}
	h := NewSearchHandler(engine, nil, nil)

	rec := post(h.Embed, `{"query":"inflation"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"embedding":[0.25,-0.5]}`, rec.Body.String())

	rec = post(h.Embed, `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "query")
}

func TestSearchPagesThroughEngine(t *testing.T) {
	store := memory.NewMarketStore()
	for i := 1; i <= 3; i++ {
		store.Put(domain.Market{
			ID:        int64(i),
			Site:      domain.SiteManifold,
			MarketID:  fmt.Sprint(i),
			Title:     fmt.Sprint("m", i),
			CloseTime: time.Now().Add(time.Hour),
			Embedding: []float32{1, float32(i) / 10},
		})
	}
	engine := search.NewEngine(store, search.NewResolver(mock.NewEmbedder(2), 2), search.Config{PageSize: 2}, nil)
	h := NewSearchHandler(engine, nil, nil)

	rec := post(h.Search, `{"query":"anything","embedding":[1,0]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var page domain.SearchPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Markets, 2)
	require.NotNil(t, page.NextCursor)

	rec = post(h.Search, fmt.Sprintf(`{"query":"anything","embedding":[1,0],"cursor":%q}`, *page.NextCursor))
	require.Equal(t, http.StatusOK, rec.Code)
	var last domain.SearchPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &last))
	require.Len(t, last.Markets, 1)
	assert.Equal(t, int64(3), last.Markets[0].ID)
	assert.Nil(t, last.NextCursor)
}
