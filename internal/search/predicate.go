package search

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/marketsearch/internal/domain"
)

// Args collects the positional parameters of one statement.
type Args struct {
	values []any
}

// Bind appends v and returns its placeholder.
func (a *Args) Bind(v any) string {
	a.values = append(a.values, v)
	return "$" + strconv.Itoa(len(a.values))
}

// Values returns the bound parameters in placeholder order.
func (a *Args) Values() []any { return a.values }

// Predicate is one filter condition over scored markets.
//
// SQL renders the condition; score is the similarity expression supplied by
// the store and is the only text a predicate may splice in. Every value that
// came from a request goes through args. Match evaluates the same condition
// in memory and must agree with SQL on every row.
type Predicate interface {
	SQL(score string, args *Args) string
	Match(c Candidate) bool
}

// ClosesAfter keeps markets still open at Now. Rows without a close time
// never match, as with SQL NULL comparison.
type ClosesAfter struct {
	Now time.Time
}

func (p ClosesAfter) SQL(_ string, args *Args) string {
	return "close_time > " + args.Bind(p.Now)
}

func (p ClosesAfter) Match(c Candidate) bool {
	ct := c.Market.CloseTime
	return !ct.IsZero() && ct.After(p.Now)
}

// ClosedBy keeps markets whose close time is at or before Now.
type ClosedBy struct {
	Now time.Time
}

func (p ClosedBy) SQL(_ string, args *Args) string {
	return "close_time <= " + args.Bind(p.Now)
}

func (p ClosedBy) Match(c Candidate) bool {
	ct := c.Market.CloseTime
	return !ct.IsZero() && !ct.After(p.Now)
}

// SiteIn keeps markets from any of Sites. Sites must be non-empty.
type SiteIn struct {
	Sites []domain.Site
}

func (p SiteIn) SQL(_ string, args *Args) string {
	names := make([]string, len(p.Sites))
	for i, s := range p.Sites {
		names[i] = string(s)
	}
	return "site = ANY(" + args.Bind(names) + ")"
}

func (p SiteIn) Match(c Candidate) bool {
	return slices.Contains(p.Sites, c.Market.Site)
}

// After keeps rows that sort strictly after the cursor position.
type After struct {
	Cursor Cursor
}

func (p After) SQL(score string, args *Args) string {
	last := args.Bind(p.Cursor.Score)
	id := args.Bind(p.Cursor.ID)
	return "(" + score + " < " + last + " OR (" + score + " = " + last + " AND id > " + id + "))"
}

func (p After) Match(c Candidate) bool {
	return Follows(c, p.Cursor)
}

// Filter is a conjunction of predicates. The empty Filter matches every row.
type Filter []Predicate

// SQL renders the conjunction as a WHERE clause body.
func (f Filter) SQL(score string, args *Args) string {
	if len(f) == 0 {
		return "TRUE"
	}
	parts := make([]string, len(f))
	for i, p := range f {
		parts[i] = p.SQL(score, args)
	}
	return strings.Join(parts, " AND ")
}

// Match reports whether c satisfies every predicate.
func (f Filter) Match(c Candidate) bool {
	for _, p := range f {
		if !p.Match(c) {
			return false
		}
	}
	return true
}

// Compose builds the filter for one request. now is captured once by the
// caller so the status predicate is evaluated against a single instant.
func Compose(status domain.Status, sources []domain.Site, after *Cursor, now time.Time) Filter {
	var f Filter
	switch status {
	case domain.StatusOpen:
		f = append(f, ClosesAfter{Now: now})
	case domain.StatusClosed:
		f = append(f, ClosedBy{Now: now})
	}
	if sites := uniqueSites(sources); len(sites) > 0 {
		f = append(f, SiteIn{Sites: sites})
	}
	if after != nil {
		f = append(f, After{Cursor: *after})
	}
	return f
}

func uniqueSites(in []domain.Site) []domain.Site {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
