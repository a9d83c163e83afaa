// Package polymarket pages through Polymarket's Gamma market listing.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/alanyoungcy/marketsearch/internal/domain"
	"github.com/alanyoungcy/marketsearch/internal/platform"
)

// Defaults for the public Gamma API.
const (
	DefaultBaseURL = "https://gamma-api.polymarket.com"
	DefaultSiteURL = "https://polymarket.com"
	defaultLimit   = 500
)

// GammaClient implements platform.Source over the Gamma /markets endpoint.
// Page tokens are decimal offsets.
type GammaClient struct {
	get     *platform.Getter
	siteURL string
	limit   int
}

var _ platform.Source = (*GammaClient)(nil)

// NewGammaClient creates a client fetching limit markets per page.
func NewGammaClient(get *platform.Getter, siteURL string, limit int) *GammaClient {
	if siteURL == "" {
		siteURL = DefaultSiteURL
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	return &GammaClient{get: get, siteURL: siteURL, limit: limit}
}

func (g *GammaClient) Site() domain.Site { return domain.SitePolymarket }

// Fetch returns the page starting at offset token ("" means 0).
func (g *GammaClient) Fetch(ctx context.Context, token string) (platform.Page, error) {
	offset := 0
	if token != "" {
		n, err := strconv.Atoi(token)
		if err != nil || n < 0 {
			return platform.Page{}, fmt.Errorf("polymarket/gamma: bad page token %q", token)
		}
		offset = n
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(g.limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("order", "id")
	params.Set("ascending", "true")

	body, err := g.get.Get(ctx, "/markets", params)
	if err != nil {
		return platform.Page{}, fmt.Errorf("polymarket/gamma: get markets: %w", err)
	}
	raw, err := platform.SplitArray(body)
	if err != nil {
		return platform.Page{}, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}

	page := platform.Page{
		Markets: make([]domain.Market, 0, len(raw)),
		Raw:     make([]json.RawMessage, 0, len(raw)),
	}
	for _, r := range raw {
		var m APIMarket
		if err := json.Unmarshal(r, &m); err != nil {
			return platform.Page{}, fmt.Errorf("polymarket/gamma: decode market: %w", err)
		}
		if m.ID == "" || m.Question == "" {
			continue
		}
		page.Markets = append(page.Markets, m.ToDomainMarket(g.siteURL))
		page.Raw = append(page.Raw, r)
	}
	if len(raw) == g.limit {
		page.Next = strconv.Itoa(offset + len(raw))
	}
	return page, nil
}
