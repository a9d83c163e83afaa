package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/marketsearch/internal/domain"
)

// flexBool accepts a JSON bool or a "true"/"false" string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat struct {
	Value float64
	Valid bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat{Value: n, Valid: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat{Value: n, Valid: true}
	return nil
}

// APIMarket is a market as returned by the Gamma /markets endpoint.
type APIMarket struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	Description   string    `json:"description"`
	Slug          string    `json:"slug"`
	Active        flexBool  `json:"active"`
	Closed        flexBool  `json:"closed"`
	Outcomes      string    `json:"outcomes"`      // JSON-encoded, e.g. "[\"Yes\",\"No\"]"
	OutcomePrices string    `json:"outcomePrices"` // JSON-encoded, e.g. "[\"0.5\",\"0.5\"]"
	Volume        flexFloat `json:"volume"`
	StartDate     string    `json:"startDate"`
	EndDate       string    `json:"endDate"`
	EndDateISO    string    `json:"end_date_iso"`
}

// ToDomainMarket maps the API shape onto a domain.Market. The embedding is
// left empty for the pipeline to fill.
func (m *APIMarket) ToDomainMarket(siteURL string) domain.Market {
	var details domain.Details
	if p, ok := m.yesPrice(); ok {
		details = append(details, domain.Probability(p))
	}
	if m.Volume.Valid {
		details = append(details, domain.Volume(m.Volume.Value))
	}

	end := parseTime(m.EndDate)
	if end.IsZero() {
		end = parseTime(m.EndDateISO)
	}
	return domain.Market{
		Site:        domain.SitePolymarket,
		MarketID:    m.ID,
		Title:       strings.TrimSpace(m.Question),
		Description: strings.TrimSpace(m.Description),
		URL:         strings.TrimRight(siteURL, "/") + "/market/" + m.Slug,
		Details:     details.Sorted(),
		OpenTime:    parseTime(m.StartDate),
		CloseTime:   end,
	}
}

// yesPrice returns the price of the "Yes" outcome, or of the first outcome
// when none is labelled Yes.
func (m *APIMarket) yesPrice() (float64, bool) {
	var prices []string
	if err := json.Unmarshal([]byte(m.OutcomePrices), &prices); err != nil || len(prices) == 0 {
		return 0, false
	}
	idx := 0
	var outcomes []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err == nil {
		for i, o := range outcomes {
			if strings.EqualFold(o, "yes") && i < len(prices) {
				idx = i
				break
			}
		}
	}
	p, err := strconv.ParseFloat(prices[idx], 64)
	if err != nil {
		return 0, false
	}
	return p, true
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
