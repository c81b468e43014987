// Package coingecko provides a client for the CoinGecko API
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/coindex/internal/common"
	"github.com/bobmcallan/coindex/internal/interfaces"
	"github.com/bobmcallan/coindex/internal/models"
)

const (
	DefaultBaseURL   = "https://api.coingecko.com/api/v3"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// Client implements the MarketDataClient interface
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new CoinGecko client. apiKey may be empty for the
// public tier.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an upstream provider failure: a non-success status
// or a response that could not be parsed as the expected shape.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("CoinGecko API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// getRaw performs a rate-limited GET request and returns the body bytes.
func (c *Client) getRaw(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("CoinGecko API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{StatusCode: 0, Message: err.Error(), Endpoint: path}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: err.Error(), Endpoint: path}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	return body, nil
}

// marketResponse is one entry of the /coins/markets payload.
// price_change_percentage_24h is null when the provider has no 24h
// reference price for the asset.
type marketResponse struct {
	ID           string   `json:"id"`
	Symbol       string   `json:"symbol"`
	CurrentPrice float64  `json:"current_price"`
	Change24h    *float64 `json:"price_change_percentage_24h"`
	MarketCap    float64  `json:"market_cap"`
	TotalVolume  float64  `json:"total_volume"`
}

// GetMarkets issues one batched /coins/markets fetch for the given asset
// ids. Assets the provider omits from the response simply have no entry in
// the returned map, so callers can skip them explicitly.
func (c *Client) GetMarkets(ctx context.Context, ids []string) (map[string]models.MarketQuote, error) {
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("ids", strings.Join(ids, ","))

	body, err := c.getRaw(ctx, "/coins/markets", params)
	if err != nil {
		return nil, err
	}

	var markets []marketResponse
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, &APIError{
			StatusCode: http.StatusOK,
			Message:    fmt.Sprintf("unexpected response shape: %v", err),
			Endpoint:   "/coins/markets",
		}
	}

	quotes := make(map[string]models.MarketQuote, len(markets))
	for _, m := range markets {
		if m.ID == "" {
			continue
		}
		q := models.MarketQuote{
			PriceUSD:  m.CurrentPrice,
			MarketCap: m.MarketCap,
			Volume24h: m.TotalVolume,
		}
		if m.Change24h != nil {
			q.Change24h = *m.Change24h
			q.HasChange = true
		}
		quotes[m.ID] = q
	}

	c.logger.Debug().Int("requested", len(ids)).Int("returned", len(quotes)).Msg("CoinGecko markets fetched")

	return quotes, nil
}

// Passthrough performs a raw GET of a provider path and returns the
// response body untouched. Path allow-listing is the caller's concern.
func (c *Client) Passthrough(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.getRaw(ctx, path, query)
}

// Ensure Client implements MarketDataClient
var _ interfaces.MarketDataClient = (*Client)(nil)
