package market

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bher20/cryptotracker/internal/metrics"
)

// DefaultMarketsURL is the public CoinGecko markets endpoint.
const DefaultMarketsURL = "https://api.coingecko.com/api/v3/coins/markets"

// ErrFetchFailed marks an upstream request that did not produce an HTTP 200,
// including transport failures. It is the only failure the dashboard reports
// to the user as "no data".
var ErrFetchFailed = errors.New("market data fetch failed")

// NewHTTPClient creates an HTTP client with optional TLS configuration.
func NewHTTPClient(timeout time.Duration, skipTLSVerify bool) *http.Client {
	transport := &http.Transport{}

	if skipTLSVerify {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// DefaultHTTPClient returns a standard HTTP client with 30s timeout.
func DefaultHTTPClient() *http.Client {
	return NewHTTPClient(30*time.Second, false)
}

// Client talks to the markets endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// NewClient returns a Client for baseURL. A nil httpClient selects
// DefaultHTTPClient.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultMarketsURL
	}
	if httpClient == nil {
		httpClient = DefaultHTTPClient()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		userAgent:  "cryptotracker/1.0",
	}
}

// BaseURL returns the endpoint the client queries.
func (c *Client) BaseURL() string { return c.baseURL }

// FetchMarkets issues a single GET for q and decodes the coins in API order.
// Non-200 responses and transport errors wrap ErrFetchFailed; a body that is
// not a JSON array of coins returns a plain decode error.
func (c *Client) FetchMarkets(ctx context.Context, q Query) ([]Coin, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse markets url: %w", err)
	}
	params := u.Query()
	params.Set("vs_currency", q.VsCurrency)
	params.Set("order", q.Order)
	params.Set("per_page", strconv.Itoa(q.PerPage))
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("sparkline", strconv.FormatBool(q.Sparkline))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamFetchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.UpstreamFetchesTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFetchFailed, resp.StatusCode)
	}
	metrics.UpstreamFetchesTotal.WithLabelValues("200").Inc()

	var coins []Coin
	if err := json.NewDecoder(resp.Body).Decode(&coins); err != nil {
		return nil, fmt.Errorf("decode markets response: %w", err)
	}
	return coins, nil
}
