// Package kalshi pages through the Kalshi exchange market listing.
package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/marketsearch/internal/domain"
	"github.com/alanyoungcy/marketsearch/internal/platform"
)

// Defaults for the public Kalshi API.
const (
	DefaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"
	DefaultSiteURL = "https://kalshi.com"
	defaultLimit   = 1000
)

// Client implements platform.Source over GET /markets. Page tokens are the
// API's own cursors. Market data is public; requests are signed only when
// an API key is configured.
type Client struct {
	get     *platform.Getter
	siteURL string
	limit   int

	apiKeyID   string
	privateKey *rsa.PrivateKey
}

var _ platform.Source = (*Client)(nil)

// NewClient creates a client fetching limit markets per page.
func NewClient(get *platform.Getter, siteURL string, limit int) *Client {
	if siteURL == "" {
		siteURL = DefaultSiteURL
	}
	if limit <= 0 || limit > defaultLimit {
		limit = defaultLimit
	}
	return &Client{get: get, siteURL: siteURL, limit: limit}
}

// SetCredentials enables RSA-PSS request signing with a PEM-encoded key.
func (c *Client) SetCredentials(apiKeyID string, pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return errors.New("kalshi: no PEM block found in private key")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		key = pkcs1
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.apiKeyID = apiKeyID
	c.privateKey = rsaKey
	c.get.WithSigner(c.sign)
	return nil
}

// sign adds the Kalshi authentication headers: an RSA-PSS-SHA256 signature
// over timestamp + method + full request path.
func (c *Client) sign(req *http.Request) error {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	hash := sha256.Sum256([]byte(ts + req.Method + req.URL.Path))
	sig, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("kalshi: rsa sign: %w", err)
	}
	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(sig))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

func (c *Client) Site() domain.Site { return domain.SiteKalshi }

// Fetch returns the page at cursor token ("" means the first page).
func (c *Client) Fetch(ctx context.Context, token string) (platform.Page, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.limit))
	if token != "" {
		params.Set("cursor", token)
	}

	body, err := c.get.Get(ctx, "/markets", params)
	if err != nil {
		return platform.Page{}, fmt.Errorf("kalshi: get markets: %w", err)
	}

	var resp struct {
		Cursor  string            `json:"cursor"`
		Markets []json.RawMessage `json:"markets"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return platform.Page{}, fmt.Errorf("kalshi: decode markets: %w", err)
	}

	page := platform.Page{
		Markets: make([]domain.Market, 0, len(resp.Markets)),
		Raw:     make([]json.RawMessage, 0, len(resp.Markets)),
	}
	for _, r := range resp.Markets {
		var m KalshiMarket
		if err := json.Unmarshal(r, &m); err != nil {
			return platform.Page{}, fmt.Errorf("kalshi: decode market: %w", err)
		}
		if m.Ticker == "" || m.Title == "" {
			continue
		}
		page.Markets = append(page.Markets, m.ToDomainMarket(c.siteURL))
		page.Raw = append(page.Raw, r)
	}
	if len(resp.Markets) > 0 && resp.Cursor != "" && resp.Cursor != token {
		page.Next = resp.Cursor
	}
	return page, nil
}
