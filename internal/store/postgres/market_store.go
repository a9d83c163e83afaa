package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/alanyoungcy/marketsearch/internal/domain"
	"github.com/alanyoungcy/marketsearch/internal/search"
)

// MarketStore reads and writes the markets table.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

var (
	_ search.Store        = (*MarketStore)(nil)
	_ domain.MarketWriter = (*MarketStore)(nil)
)

const resultCols = `id, site, market_id, title, description, url, details, open_time, close_time`

// similarityQuery renders q as one statement. The query vector is always $1;
// the filter continues the numbering and the limit is bound last.
func similarityQuery(q search.Query) (string, []any) {
	var args search.Args
	vec := args.Bind(pgvector.NewVector(q.Vector))
	score := "(1 - (embedding <=> " + vec + "))"
	where := q.Filter.SQL(score, &args)
	limit := args.Bind(q.Limit)

	sql := `SELECT ` + resultCols + `, ` + score + ` AS ` + search.ScoreAlias + `
		FROM markets
		WHERE ` + where + `
		ORDER BY ` + search.OrderBy + `
		LIMIT ` + limit
	return sql, args.Values()
}

// SearchSimilar returns up to q.Limit markets matching q.Filter ordered by
// cosine similarity to q.Vector.
func (s *MarketStore) SearchSimilar(ctx context.Context, q search.Query) ([]search.Candidate, error) {
	sql, args := similarityQuery(q)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search similar: %w", err)
	}
	defer rows.Close()

	out := make([]search.Candidate, 0, q.Limit)
	for rows.Next() {
		var c search.Candidate
		m, err := scanMarket(rows, &c.Score)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		c.Market = m
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate markets: %w", err)
	}
	return out, nil
}

func scanMarket(row pgx.Row, extra ...any) (domain.Market, error) {
	var (
		m           domain.Market
		site        string
		description *string
		detailsJSON []byte
		openTime    *time.Time
		closeTime   *time.Time
	)
	dest := append([]any{
		&m.ID, &site, &m.MarketID, &m.Title, &description, &m.URL,
		&detailsJSON, &openTime, &closeTime,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Market{}, err
	}

	m.Site = domain.Site(site)
	if description != nil {
		m.Description = *description
	}
	if openTime != nil {
		m.OpenTime = *openTime
	}
	if closeTime != nil {
		m.CloseTime = *closeTime
	}
	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &m.Details); err != nil {
			return domain.Market{}, fmt.Errorf("details of market %d: %w", m.ID, err)
		}
	}
	return m, nil
}

const upsertMarket = `
	INSERT INTO markets (
		site, market_id, title, description, url,
		details, open_time, close_time, embedding, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, NOW()
	)
	ON CONFLICT (site, market_id) DO UPDATE SET
		title       = EXCLUDED.title,
		description = EXCLUDED.description,
		url         = EXCLUDED.url,
		details     = EXCLUDED.details,
		open_time   = EXCLUDED.open_time,
		close_time  = EXCLUDED.close_time,
		embedding   = EXCLUDED.embedding,
		updated_at  = NOW()`

// UpsertBatch inserts or updates markets keyed on (site, market_id) in one
// round trip. Existing rows keep their id.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		if len(m.Embedding) != domain.EmbeddingDimensions {
			return &domain.DimensionError{Got: len(m.Embedding), Want: domain.EmbeddingDimensions}
		}
		details, err := json.Marshal(m.Details)
		if err != nil {
			return fmt.Errorf("postgres: marshal details for %s/%s: %w", m.Site, m.MarketID, err)
		}
		batch.Queue(upsertMarket,
			string(m.Site), m.MarketID, m.Title, nullString(m.Description), m.URL,
			details, nullTime(m.OpenTime), nullTime(m.CloseTime), pgvector.NewVector(m.Embedding),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range markets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert market %s/%s: %w", markets[i].Site, markets[i].MarketID, err)
		}
	}
	return nil
}

// Count returns the number of stored markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
