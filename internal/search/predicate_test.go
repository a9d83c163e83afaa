package search

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/marketsearch/internal/domain"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func candidate(id int64, site domain.Site, closes time.Time, score float64) Candidate {
	return Candidate{
		Market: domain.Market{ID: id, Site: site, MarketID: "m", CloseTime: closes},
		Score:  score,
	}
}

func TestComposeSQL(t *testing.T) {
	cur := Cursor{Score: 0.5, ID: 7}
	f := Compose(domain.StatusOpen, []domain.Site{domain.SitePolymarket, domain.SiteKalshi, domain.SitePolymarket}, &cur, testNow)

	var args Args
	sql := f.SQL("sim", &args)

	assert.Equal(t, "close_time > $1 AND site = ANY($2) AND (sim < $3 OR (sim = $3 AND id > $4))", sql)
	assert.Equal(t, []any{testNow, []string{"kalshi", "polymarket"}, 0.5, int64(7)}, args.Values())
}

func TestComposeClosedAndAll(t *testing.T) {
	var args Args
	assert.Equal(t, "close_time <= $1", Compose(domain.StatusClosed, nil, nil, testNow).SQL("s", &args))

	args = Args{}
	f := Compose(domain.StatusAll, nil, nil, testNow)
	assert.Empty(t, f)
	assert.Equal(t, "TRUE", f.SQL("s", &args))
	assert.Empty(t, args.Values())
}

func TestBindContinuesNumbering(t *testing.T) {
	var args Args
	assert.Equal(t, "$1", args.Bind([]float32{1, 2}))

	sql := Compose(domain.StatusClosed, []domain.Site{domain.SiteManifold}, nil, testNow).SQL("s", &args)
	assert.Equal(t, "close_time <= $2 AND site = ANY($3)", sql)
	assert.Len(t, args.Values(), 3)
}

func TestSQLNeverEmbedsValues(t *testing.T) {
	hostile := domain.Site("x'); DROP TABLE markets; --")
	var args Args
	sql := Compose(domain.StatusOpen, []domain.Site{hostile}, &Cursor{Score: 0.25, ID: 3}, testNow).SQL("s", &args)

	assert.NotContains(t, sql, "DROP")
	assert.NotContains(t, sql, "0.25")
	assert.False(t, strings.Contains(sql, "2024"))
	assert.Contains(t, args.Values(), []string{string(hostile)})
}

func TestStatusMatch(t *testing.T) {
	open := ClosesAfter{Now: testNow}
	closed := ClosedBy{Now: testNow}

	later := candidate(1, domain.SiteKalshi, testNow.Add(time.Hour), 0.9)
	exact := candidate(2, domain.SiteKalshi, testNow, 0.9)
	earlier := candidate(3, domain.SiteKalshi, testNow.Add(-time.Hour), 0.9)
	unknown := candidate(4, domain.SiteKalshi, time.Time{}, 0.9)

	assert.True(t, open.Match(later))
	assert.False(t, open.Match(exact))
	assert.False(t, open.Match(earlier))
	assert.False(t, open.Match(unknown))

	assert.False(t, closed.Match(later))
	assert.True(t, closed.Match(exact))
	assert.True(t, closed.Match(earlier))
	assert.False(t, closed.Match(unknown))
}

func TestSiteInMatch(t *testing.T) {
	p := SiteIn{Sites: []domain.Site{domain.SiteKalshi, domain.SiteManifold}}
	assert.True(t, p.Match(candidate(1, domain.SiteKalshi, testNow, 0)))
	assert.True(t, p.Match(candidate(1, domain.SiteManifold, testNow, 0)))
	assert.False(t, p.Match(candidate(1, domain.SitePolymarket, testNow, 0)))
}

func TestAfterMatch(t *testing.T) {
	p := After{Cursor: Cursor{Score: 0.5, ID: 10}}

	assert.True(t, p.Match(candidate(1, domain.SiteKalshi, testNow, 0.4)), "lower score")
	assert.True(t, p.Match(candidate(11, domain.SiteKalshi, testNow, 0.5)), "tie with larger id")
	assert.False(t, p.Match(candidate(10, domain.SiteKalshi, testNow, 0.5)), "cursor row itself")
	assert.False(t, p.Match(candidate(9, domain.SiteKalshi, testNow, 0.5)), "tie with smaller id")
	assert.False(t, p.Match(candidate(99, domain.SiteKalshi, testNow, 0.6)), "higher score")
}

func TestFilterMatchIsConjunction(t *testing.T) {
	f := Compose(domain.StatusOpen, []domain.Site{domain.SiteKalshi}, nil, testNow)

	assert.True(t, f.Match(candidate(1, domain.SiteKalshi, testNow.Add(time.Minute), 0.1)))
	assert.False(t, f.Match(candidate(1, domain.SitePolymarket, testNow.Add(time.Minute), 0.1)))
	assert.False(t, f.Match(candidate(1, domain.SiteKalshi, testNow.Add(-time.Minute), 0.1)))
	assert.True(t, Filter(nil).Match(candidate(1, domain.SitePolymarket, time.Time{}, -1)))
}

func TestCompareOrdersByScoreThenID(t *testing.T) {
	a := candidate(5, domain.SiteKalshi, testNow, 0.9)
	b := candidate(1, domain.SiteKalshi, testNow, 0.8)
	c := candidate(2, domain.SiteKalshi, testNow, 0.8)

	assert.Negative(t, Compare(a, b))
	assert.Negative(t, Compare(b, c))
	assert.Positive(t, Compare(c, b))
	assert.Zero(t, Compare(b, b))
	assert.Equal(t, 0.75, Score(0.25))
}
