package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketsearch/internal/domain"
	"github.com/alanyoungcy/marketsearch/internal/search"
)

func TestSimilarityQuery(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	cur := search.Cursor{Score: 0.8231, ID: 42}
	q := search.Query{
		Vector: []float32{0.1, 0.2},
		Filter: search.Compose(domain.StatusOpen, []domain.Site{domain.SiteKalshi}, &cur, now),
		Limit:  11,
	}

	sql, args := similarityQuery(q)

	assert.Contains(t, sql, "(1 - (embedding <=> $1)) AS similarity")
	assert.Contains(t, sql, "WHERE close_time > $2 AND site = ANY($3) AND ((1 - (embedding <=> $1)) < $4 OR ((1 - (embedding <=> $1)) = $4 AND id > $5))")
	assert.Contains(t, sql, "ORDER BY similarity DESC, id ASC")
	assert.True(t, strings.HasSuffix(sql, "LIMIT $6"))

	require.Len(t, args, 6)
	assert.Equal(t, pgvector.NewVector([]float32{0.1, 0.2}), args[0])
	assert.Equal(t, now, args[1])
	assert.Equal(t, []string{"kalshi"}, args[2])
	assert.Equal(t, 0.8231, args[3])
	assert.Equal(t, int64(42), args[4])
	assert.Equal(t, 11, args[5])
}

func TestSimilarityQueryWithoutFilters(t *testing.T) {
	sql, args := similarityQuery(search.Query{Vector: []float32{1}, Limit: 3})

	assert.Contains(t, sql, "WHERE TRUE")
	assert.True(t, strings.HasSuffix(sql, "LIMIT $2"))
	assert.Len(t, args, 2)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/markets?sslmode=disable",
		DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "markets"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: " postgres://x ", Host: "ignored"}))
	assert.Equal(t, "postgres://u:p@[::1]:6543/m?sslmode=require",
		DSN(ClientConfig{Host: "::1", Port: 6543, User: "u", Password: "p", Database: "m", SSLMode: "require"}))
}

func TestMigrationNamesSorted(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_markets.sql", "002_ingest_runs.sql"}, names)
}

func TestNullHelpers(t *testing.T) {
	assert.Nil(t, nullString(""))
	assert.Equal(t, "x", *nullString("x"))
	assert.Nil(t, nullTime(time.Time{}))
	ts := time.Unix(10, 0)
	assert.Equal(t, ts, *nullTime(ts))
}
