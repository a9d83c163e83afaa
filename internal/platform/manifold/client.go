// Package manifold pages through the Manifold Markets public market listing.
package manifold

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/marketsearch/internal/domain"
	"github.com/alanyoungcy/marketsearch/internal/platform"
)

// Defaults for the public Manifold API.
const (
	DefaultBaseURL = "https://api.manifold.markets"
	defaultLimit   = 1000
)

// LiteMarket is a market as returned by GET /v0/markets.
type LiteMarket struct {
	ID                string   `json:"id"`
	Question          string   `json:"question"`
	URL               string   `json:"url"`
	OutcomeType       string   `json:"outcomeType"`
	Probability       *float64 `json:"probability"`
	Volume            *float64 `json:"volume"`
	UniqueBettorCount *int64   `json:"uniqueBettorCount"`
	CreatedTime       int64    `json:"createdTime"` // ms since epoch
	CloseTime         int64    `json:"closeTime"`   // ms since epoch
	TextDescription   string   `json:"textDescription"`
}

// ToDomainMarket maps the API shape onto a domain.Market.
func (m *LiteMarket) ToDomainMarket() domain.Market {
	var details domain.Details
	if m.Probability != nil {
		details = append(details, domain.Probability(*m.Probability))
	}
	if m.UniqueBettorCount != nil {
		details = append(details, domain.BettorCount(*m.UniqueBettorCount))
	}
	if m.Volume != nil {
		details = append(details, domain.Volume(*m.Volume))
	}
	return domain.Market{
		Site:        domain.SiteManifold,
		MarketID:    m.ID,
		Title:       strings.TrimSpace(m.Question),
		Description: strings.TrimSpace(m.TextDescription),
		URL:         m.URL,
		Details:     details.Sorted(),
		OpenTime:    fromMillis(m.CreatedTime),
		CloseTime:   fromMillis(m.CloseTime),
	}
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Client implements platform.Source. Page tokens are the id of the last
// market on the previous page, passed as "before".
type Client struct {
	get   *platform.Getter
	limit int
}

var _ platform.Source = (*Client)(nil)

// NewClient creates a client fetching limit markets per page.
func NewClient(get *platform.Getter, limit int) *Client {
	if limit <= 0 || limit > defaultLimit {
		limit = defaultLimit
	}
	return &Client{get: get, limit: limit}
}

func (c *Client) Site() domain.Site { return domain.SiteManifold }

// Fetch returns the page of markets created before the market named by token.
func (c *Client) Fetch(ctx context.Context, token string) (platform.Page, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.limit))
	if token != "" {
		params.Set("before", token)
	}

	body, err := c.get.Get(ctx, "/v0/markets", params)
	if err != nil {
		return platform.Page{}, fmt.Errorf("manifold: get markets: %w", err)
	}
	raw, err := platform.SplitArray(body)
	if err != nil {
		return platform.Page{}, fmt.Errorf("manifold: decode markets: %w", err)
	}

	page := platform.Page{
		Markets: make([]domain.Market, 0, len(raw)),
		Raw:     make([]json.RawMessage, 0, len(raw)),
	}
	var lastID string
	for _, r := range raw {
		var m LiteMarket
		if err := json.Unmarshal(r, &m); err != nil {
			return platform.Page{}, fmt.Errorf("manifold: decode market: %w", err)
		}
		if m.ID != "" {
			lastID = m.ID
		}
		if m.ID == "" || m.Question == "" || m.URL == "" {
			continue
		}
		page.Markets = append(page.Markets, m.ToDomainMarket())
		page.Raw = append(page.Raw, r)
	}
	if len(raw) == c.limit && lastID != "" {
		page.Next = lastID
	}
	return page, nil
}
