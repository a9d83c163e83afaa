package kalshi

import (
	"strings"
	"time"

	"github.com/alanyoungcy/marketsearch/internal/domain"
)

// KalshiMarket is a market as returned by GET /markets.
type KalshiMarket struct {
	Ticker       string   `json:"ticker"`
	EventTicker  string   `json:"event_ticker"`
	Title        string   `json:"title"`
	Subtitle     string   `json:"subtitle"`
	YesSubTitle  string   `json:"yes_sub_title"`
	RulesPrimary string   `json:"rules_primary"`
	Status       string   `json:"status"`
	LastPrice    *float64 `json:"last_price"` // cents, 0-100
	Volume       *int64   `json:"volume"`
	OpenTime     string   `json:"open_time"`
	CloseTime    string   `json:"close_time"`
}

// ToDomainMarket maps the API shape onto a domain.Market.
func (m *KalshiMarket) ToDomainMarket(siteURL string) domain.Market {
	title := strings.TrimSpace(m.Title)
	if sub := strings.TrimSpace(m.YesSubTitle); sub != "" && !strings.Contains(title, sub) {
		title += " (" + sub + ")"
	}

	var details domain.Details
	if m.LastPrice != nil {
		details = append(details, domain.Probability(*m.LastPrice/100))
	}
	if m.Volume != nil {
		details = append(details, domain.Volume(float64(*m.Volume)))
	}

	event := m.EventTicker
	if event == "" {
		event = m.Ticker
	}
	return domain.Market{
		Site:        domain.SiteKalshi,
		MarketID:    m.Ticker,
		Title:       title,
		Description: strings.TrimSpace(m.RulesPrimary),
		URL:         strings.TrimRight(siteURL, "/") + "/markets/" + strings.ToLower(event),
		Details:     details.Sorted(),
		OpenTime:    parseTime(m.OpenTime),
		CloseTime:   parseTime(m.CloseTime),
	}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
