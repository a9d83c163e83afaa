package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketsearch/internal/domain"
	"github.com/alanyoungcy/marketsearch/internal/embedding/mock"
	"github.com/alanyoungcy/marketsearch/internal/platform"
	"github.com/alanyoungcy/marketsearch/internal/search"
	"github.com/alanyoungcy/marketsearch/internal/store/memory"
)

const dims = 4

type fakeSource struct {
	site   domain.Site
	pages  map[string]platform.Page
	err    error
	mu     sync.Mutex
	tokens []string
}

func (f *fakeSource) Site() domain.Site { return f.site }

func (f *fakeSource) Fetch(ctx context.Context, token string) (platform.Page, error) {
	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	f.mu.Unlock()
	if f.err != nil {
		return platform.Page{}, f.err
	}
	return f.pages[token], nil
}

type fakeArchiver struct {
	pages int
	err   error
}

func (f *fakeArchiver) Archive(ctx context.Context, site domain.Site, records []json.RawMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.pages++
	return fmt.Sprintf("ingest/%s/%d.jsonl", site, f.pages), nil
}

type fakeRuns struct {
	mu   sync.Mutex
	runs []domain.IngestRun
}

func (f *fakeRuns) RecordRun(ctx context.Context, run domain.IngestRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func market(id string, closes time.Time) domain.Market {
	return domain.Market{
		Site:      domain.SiteManifold,
		MarketID:  id,
		Title:     "Question " + id,
		URL:       "https://manifold.markets/q/" + id,
		CloseTime: closes,
	}
}

func raw(n int) []json.RawMessage {
	out := make([]json.RawMessage, n)
	for i := range out {
		out[i] = json.RawMessage(`{}`)
	}
	return out
}

func twoPages() *fakeSource {
	future := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	old := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
	return &fakeSource{
		site: domain.SiteManifold,
		pages: map[string]platform.Page{
			"": {
				Markets: []domain.Market{market("a", future), market("b", old), market("c", time.Time{})},
				Raw:     raw(3),
				Next:    "c",
			},
			"c": {
				Markets: []domain.Market{market("d", future)},
				Raw:     raw(1),
			},
		},
	}
}

func TestIngesterRun(t *testing.T) {
	src := twoPages()
	store := memory.NewMarketStore()
	embedder := mock.NewEmbedder(dims + 2)
	archiver := &fakeArchiver{}
	runs := &fakeRuns{}

	in := NewIngester(src, embedder, store, archiver, runs, nil, IngesterConfig{
		BackfillSince: DefaultBackfillSince,
		Dimensions:    dims,
	}, nil)

	run, err := in.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"", "c"}, src.tokens)
	assert.Equal(t, 4, run.Fetched)
	assert.Equal(t, 3, run.Upserted, "market closed before the backfill date is dropped")
	assert.Equal(t, "ingest/manifold/2.jsonl", run.ArchiveKey)
	assert.Empty(t, run.Error)
	assert.Equal(t, 2, embedder.Calls(), "one batch call per page")

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// Stored vectors are truncated provider output of title + description.
	got, err := store.SearchSimilar(context.Background(), search.Query{
		Vector: mock.Vector("Question a", dims+2)[:dims],
		Limit:  1,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Market.MarketID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)

	require.Len(t, runs.runs, 1)
	assert.Equal(t, run.ID, runs.runs[0].ID)
}

func TestIngesterRerunKeepsIDs(t *testing.T) {
	store := memory.NewMarketStore()
	in := NewIngester(twoPages(), mock.NewEmbedder(dims), store, nil, nil, nil, IngesterConfig{Dimensions: dims}, nil)

	_, err := in.Run(context.Background())
	require.NoError(t, err)
	_, err = in.Run(context.Background())
	require.NoError(t, err)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestIngesterShortEmbeddingFailsRun(t *testing.T) {
	runs := &fakeRuns{}
	in := NewIngester(twoPages(), mock.NewEmbedder(dims-1), memory.NewMarketStore(), nil, runs, nil,
		IngesterConfig{Dimensions: dims}, nil)

	run, err := in.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrDimension)
	assert.Zero(t, run.Upserted)
	require.Len(t, runs.runs, 1)
	assert.NotEmpty(t, runs.runs[0].Error)
}

func TestIngesterFetchError(t *testing.T) {
	src := &fakeSource{site: domain.SiteKalshi, err: domain.ErrRateLimited}
	in := NewIngester(src, mock.NewEmbedder(dims), memory.NewMarketStore(), nil, nil, nil, IngesterConfig{Dimensions: dims}, nil)

	_, err := in.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestIngesterEmbedderError(t *testing.T) {
	embedder := mock.NewEmbedder(dims)
	embedder.EmbedBatchFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("provider down")
	}
	in := NewIngester(twoPages(), embedder, memory.NewMarketStore(), nil, nil, nil, IngesterConfig{Dimensions: dims}, nil)

	_, err := in.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestIngesterArchiveFailureIsNotFatal(t *testing.T) {
	in := NewIngester(twoPages(), mock.NewEmbedder(dims), memory.NewMarketStore(), &fakeArchiver{err: errors.New("denied")}, nil, nil,
		IngesterConfig{Dimensions: dims}, nil)

	run, err := in.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, run.Upserted)
	assert.Empty(t, run.ArchiveKey)
}

func TestIngesterMaxPages(t *testing.T) {
	src := twoPages()
	in := NewIngester(src, mock.NewEmbedder(dims), memory.NewMarketStore(), nil, nil, nil,
		IngesterConfig{Dimensions: dims, MaxPages: 1}, nil)

	run, err := in.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{""}, src.tokens)
	assert.Equal(t, 3, run.Fetched)
}

type countingObserver struct {
	mu    sync.Mutex
	pages int
	runs  int
}

func (o *countingObserver) ObservePage(domain.Site, int, int) {
	o.mu.Lock()
	o.pages++
	o.mu.Unlock()
}

func (o *countingObserver) ObserveRun(domain.Site, time.Duration, error) {
	o.mu.Lock()
	o.runs++
	o.mu.Unlock()
}

func TestOrchestratorSinglePass(t *testing.T) {
	obs := &countingObserver{}
	store := memory.NewMarketStore()
	a := NewIngester(twoPages(), mock.NewEmbedder(dims), store, nil, nil, obs, IngesterConfig{Dimensions: dims}, nil)
	b := NewIngester(&fakeSource{site: domain.SiteKalshi, pages: map[string]platform.Page{}}, mock.NewEmbedder(dims), store, nil, nil, obs,
		IngesterConfig{Dimensions: dims}, nil)

	require.NoError(t, NewOrchestrator([]*Ingester{a, b}, 0, nil).Run(context.Background()))
	assert.Equal(t, 3, obs.pages)
	assert.Equal(t, 2, obs.runs)
}

func TestOrchestratorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := NewIngester(twoPages(), mock.NewEmbedder(dims), memory.NewMarketStore(), nil, nil, nil, IngesterConfig{Dimensions: dims}, nil)

	done := make(chan error, 1)
	go func() { done <- NewOrchestrator([]*Ingester{in}, time.Hour, nil).Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not stop")
	}
}

func TestOrchestratorNeedsSources(t *testing.T) {
	assert.Error(t, NewOrchestrator(nil, 0, nil).Run(context.Background()))
}
