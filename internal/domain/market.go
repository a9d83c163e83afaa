package domain

import (
	"strings"
	"time"
)

// EmbeddingDimensions is the number of components every stored market
// embedding carries. Provider output is truncated to this length.
const EmbeddingDimensions = 1536

// Site identifies the prediction-market venue a listing was ingested from.
type Site string

const (
	SiteManifold   Site = "manifold"
	SitePolymarket Site = "polymarket"
	SiteKalshi     Site = "kalshi"
)

// Sites lists every known venue in a stable order.
var Sites = []Site{SiteManifold, SitePolymarket, SiteKalshi}

// ParseSite returns the Site named by s or a ValidationError.
func ParseSite(s string) (Site, error) {
	switch site := Site(strings.TrimSpace(s)); site {
	case SiteManifold, SitePolymarket, SiteKalshi:
		return site, nil
	default:
		return "", Validationf("sources", "unknown source %q", s)
	}
}

// Market is a listing ingested from one of the external venues.
type Market struct {
	ID          int64
	Site        Site
	MarketID    string // venue-native id, unique within Site
	Title       string
	Description string
	URL         string
	Details     Details
	OpenTime    time.Time
	CloseTime   time.Time
	Embedding   []float32
}

// EmbeddingText is the text a market is embedded from at ingestion time.
func (m Market) EmbeddingText() string {
	if m.Description == "" {
		return m.Title
	}
	return m.Title + "\n\n" + m.Description
}

// View strips the embedding and the time window, leaving the fields a
// search response exposes.
func (m Market) View() MarketView {
	return MarketView{
		ID:          m.ID,
		Site:        m.Site,
		MarketID:    m.MarketID,
		Title:       m.Title,
		Description: m.Description,
		URL:         m.URL,
		Details:     m.Details,
	}
}

// MarketView is the caller-visible projection of a Market.
type MarketView struct {
	ID          int64   `json:"id"`
	Site        Site    `json:"site"`
	MarketID    string  `json:"market_id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	URL         string  `json:"url"`
	Details     Details `json:"details"`
}
