// Package memory is an in-process market store. It evaluates the same
// filter predicates as the Postgres store and is used by tests and by the
// "memory" store driver for local development.
package memory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/alanyoungcy/marketsearch/internal/domain"
	"github.com/alanyoungcy/marketsearch/internal/search"
)

type marketKey struct {
	site     domain.Site
	marketID string
}

// MarketStore holds markets in memory and scores them by cosine similarity.
type MarketStore struct {
	mu      sync.RWMutex
	markets map[int64]domain.Market
	byKey   map[marketKey]int64
	nextID  int64
}

// NewMarketStore creates an empty store.
func NewMarketStore() *MarketStore {
	return &MarketStore{
		markets: make(map[int64]domain.Market),
		byKey:   make(map[marketKey]int64),
		nextID:  1,
	}
}

var (
	_ search.Store        = (*MarketStore)(nil)
	_ domain.MarketWriter = (*MarketStore)(nil)
)

// Put stores m under m.ID, replacing any market with the same id or the
// same (Site, MarketID). A zero ID is assigned the next free id. It returns
// the stored market.
func (s *MarketStore) Put(m domain.Market) domain.Market {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(m)
}

func (s *MarketStore) put(m domain.Market) domain.Market {
	key := marketKey{site: m.Site, marketID: m.MarketID}
	if existing, ok := s.byKey[key]; ok {
		if m.ID == 0 {
			m.ID = existing
		} else if existing != m.ID {
			delete(s.markets, existing)
		}
	}
	if m.ID == 0 {
		m.ID = s.nextID
	}
	if m.ID >= s.nextID {
		s.nextID = m.ID + 1
	}
	if old, ok := s.markets[m.ID]; ok {
		delete(s.byKey, marketKey{site: old.Site, marketID: old.MarketID})
	}
	m.Embedding = slices.Clone(m.Embedding)
	s.markets[m.ID] = m
	s.byKey[key] = m.ID
	return m
}

// UpsertBatch inserts or updates markets keyed on (Site, MarketID). Ids of
// existing markets are preserved.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range markets {
		m.ID = 0
		s.put(m)
	}
	return nil
}

// Count returns the number of stored markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.markets)), nil
}

// SearchSimilar scores every stored market against q.Vector, keeps the ones
// matching q.Filter and returns the first q.Limit in search.OrderBy order.
func (s *MarketStore) SearchSimilar(ctx context.Context, q search.Query) ([]search.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]search.Candidate, 0, len(s.markets))
	for _, m := range s.markets {
		d, err := cosineDistance(m.Embedding, q.Vector)
		if err != nil {
			return nil, fmt.Errorf("memory: market %d: %w", m.ID, err)
		}
		c := search.Candidate{Market: m, Score: search.Score(d)}
		if q.Filter.Match(c) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, search.Compare)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	for i := range out {
		out[i].Market.Embedding = nil
	}
	return out, nil
}

// cosineDistance mirrors the pgvector <=> operator, accumulating in float64.
func cosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("different vector dimensions %d and %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return math.NaN(), nil
	}
	sim := dot / math.Sqrt(na*nb)
	// Rounding can push the ratio just outside [-1, 1].
	sim = max(-1, min(1, sim))
	return 1 - sim, nil
}
