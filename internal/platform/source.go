// Package platform holds what the venue clients share: the page shape they
// return and a throttled JSON-over-HTTP getter.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/marketsearch/internal/domain"
)

// Page is one fetched page of markets. Raw holds the venue payload of each
// market in the same order. Next is the token for the following page and is
// empty on the last one.
type Page struct {
	Markets []domain.Market
	Raw     []json.RawMessage
	Next    string
}

// Source pages through one venue's market listing.
type Source interface {
	Site() domain.Site
	Fetch(ctx context.Context, token string) (Page, error)
}

// maxBody caps a single response read.
const maxBody = 64 << 20

// Getter issues rate-limited GET requests against one API root.
type Getter struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	sign       func(req *http.Request) error
}

// GetterConfig configures a Getter. RequestsPerSecond <= 0 disables
// throttling.
type GetterConfig struct {
	BaseURL           string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// NewGetter creates a Getter from cfg.
func NewGetter(cfg GetterConfig) *Getter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Getter{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// WithSigner installs a hook that authenticates each request before it is
// sent.
func (g *Getter) WithSigner(sign func(req *http.Request) error) *Getter {
	g.sign = sign
	return g
}

// Get waits for the limiter, fetches path with query and returns the body of
// a 2xx response.
func (g *Getter) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	target := g.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if g.sign != nil {
		if err := g.sign(req); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := CheckStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// CheckStatus maps non-2xx status codes to domain errors.
func CheckStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	snippet := string(body)
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, snippet)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, snippet)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, snippet)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, snippet)
	}
}

// SplitArray decodes a JSON array into its raw elements.
func SplitArray(body []byte) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, err
	}
	return items, nil
}
