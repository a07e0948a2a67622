// Package kalshi is the REST adapter for the Kalshi exchange API. It
// implements the venue-neutral provider interfaces and maps HTTP failures
// onto the shared error taxonomy so the collection queue can classify
// retries without knowing the venue.
package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// Client is the REST client for the Kalshi exchange API.
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a new Kalshi REST client.
//
// baseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
// apiKeyID is the Kalshi API key identifier.
func NewClient(baseURL, apiKeyID string) *Client {
	return &Client{
		baseURL:  baseURL,
		apiKeyID: apiKeyID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

// Venue identifies this adapter.
func (c *Client) Venue() domain.Venue { return domain.VenueKalshi }

// SetRSAPrivateKey loads an RSA private key from PEM-encoded bytes and
// configures the client for RSA-signed authentication.
func (c *Client) SetRSAPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: %w: no PEM block found in private key", domain.ErrConfiguration)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS1 as fallback.
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: %w: expected RSA private key, got %T", domain.ErrConfiguration, key)
	}
	c.privateKey = rsaKey
	return nil
}

// GetMarket returns a single market by its ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (domain.Market, error) {
	path := fmt.Sprintf("/markets/%s", url.PathEscape(ticker))

	body, err := c.doSignedRequest(ctx, http.MethodGet, path)
	if err != nil {
		return domain.Market{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}

	var resp struct {
		Market KalshiMarket `json:"market"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Market{}, fmt.Errorf("kalshi: decode market: %w", err)
	}

	return resp.Market.ToMarket(), nil
}

// ListActive returns a page of currently trading markets. Kalshi paginates
// with cursors; offset is translated by walking pages, so large offsets are
// expensive and callers should page with the returned order.
func (c *Client) ListActive(ctx context.Context, limit, offset int) ([]domain.Market, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []domain.Market
	cursor := ""
	remaining := offset + limit
	for remaining > 0 {
		page, next, err := c.marketsPage(ctx, min(remaining, 200), cursor, "open")
		if err != nil {
			return nil, err
		}
		for _, m := range page {
			out = append(out, m.ToMarket())
		}
		if next == "" || len(page) == 0 {
			break
		}
		cursor = next
		remaining -= len(page)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *Client) marketsPage(ctx context.Context, limit int, cursor, status string) ([]KalshiMarket, string, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if status != "" {
		params.Set("status", status)
	}

	body, err := c.doSignedRequest(ctx, http.MethodGet, "/markets?"+params.Encode())
	if err != nil {
		return nil, "", fmt.Errorf("kalshi: list markets: %w", err)
	}

	var resp struct {
		Markets []KalshiMarket `json:"markets"`
		Cursor  string         `json:"cursor"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("kalshi: decode markets: %w", err)
	}
	return resp.Markets, resp.Cursor, nil
}

// GetQuote returns the current two-sided quote built from the orderbook.
func (c *Client) GetQuote(ctx context.Context, ticker string) (domain.Quote, error) {
	path := fmt.Sprintf("/markets/%s/orderbook", url.PathEscape(ticker))

	body, err := c.doSignedRequest(ctx, http.MethodGet, path)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("kalshi: get orderbook %s: %w", ticker, err)
	}

	var resp struct {
		Orderbook KalshiOrderbook `json:"orderbook"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Quote{}, fmt.Errorf("kalshi: decode orderbook: %w", err)
	}

	resp.Orderbook.Ticker = ticker
	resp.Orderbook.Timestamp = c.now().UTC()

	return resp.Orderbook.ToQuote(), nil
}

// GetHistoricalPrices returns the YES price series for one market between
// start and end at the requested candlestick fidelity. The series ticker is
// derived from the market ticker's event prefix.
func (c *Client) GetHistoricalPrices(ctx context.Context, ticker string, start, end time.Time, fidelityMinutes int) ([]domain.PricePoint, error) {
	if fidelityMinutes <= 0 {
		fidelityMinutes = 60
	}
	params := url.Values{}
	params.Set("start_ts", strconv.FormatInt(start.Unix(), 10))
	params.Set("end_ts", strconv.FormatInt(end.Unix(), 10))
	params.Set("period_interval", strconv.Itoa(fidelityMinutes))

	path := fmt.Sprintf("/series/%s/markets/%s/candlesticks?%s",
		url.PathEscape(seriesTicker(ticker)), url.PathEscape(ticker), params.Encode())

	body, err := c.doSignedRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, fmt.Errorf("kalshi: get candlesticks %s: %w", ticker, err)
	}

	var resp struct {
		Candlesticks []KalshiCandlestick `json:"candlesticks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("kalshi: decode candlesticks: %w", err)
	}

	points := make([]domain.PricePoint, 0, len(resp.Candlesticks))
	for _, cs := range resp.Candlesticks {
		price, ok := cs.yesPrice()
		if !ok {
			continue
		}
		points = append(points, domain.PricePoint{
			Timestamp: time.Unix(cs.EndPeriodTS, 0).UTC(),
			Price:     price,
		})
	}
	return points, nil
}

// seriesTicker extracts the series prefix from a full market ticker,
// e.g. "KXBTC-25DEC31-T100000" belongs to series "KXBTC".
func seriesTicker(marketTicker string) string {
	for i, r := range marketTicker {
		if r == '-' {
			return marketTicker[:i]
		}
	}
	return marketTicker
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doSignedRequest builds, signs (RSA), sends, and reads an HTTP request
// against the Kalshi API.
func (c *Client) doSignedRequest(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	// The signature covers the path without the query string.
	signPath := path
	if i := bytes.IndexByte([]byte(path), '?'); i >= 0 {
		signPath = path[:i]
	}
	if err := c.signRequest(req, method, signPath); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrTransient, err)
	}

	if err := checkStatus(resp, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// signRequest adds RSA authentication headers to the HTTP request.
// Kalshi uses RSA-PSS-SHA256 signatures over the timestamp + method + path
// message string.
func (c *Client) signRequest(req *http.Request, method, path string) error {
	if c.privateKey == nil {
		return fmt.Errorf("kalshi: %w: RSA private key not configured", domain.ErrConfiguration)
	}

	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	message := ts + method + path

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)

	return nil
}

// checkStatus maps non-2xx HTTP status codes onto the domain error taxonomy.
// 429 carries the server's Retry-After hint so the queue can back off by the
// venue's own clock instead of guessing.
func checkStatus(resp *http.Response, body []byte) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	var apiErr KalshiErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s (%s)", domain.ErrNotFound, apiErr.Message, apiErr.Code)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %s (%s)", domain.ErrUnauthorized, apiErr.Message, apiErr.Code)
	case code == http.StatusTooManyRequests:
		return &domain.RateLimitError{
			Venue:      domain.VenueKalshi,
			RetryAfter: retryAfter(resp.Header),
		}
	case code >= 500:
		return fmt.Errorf("%w: HTTP %d: %s (%s)", domain.ErrTransient, code, apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s (%s)", code, apiErr.Message, apiErr.Code)
	}
}

// retryAfter parses the Retry-After header as delay seconds. Zero means the
// server gave no usable hint and the caller applies its default.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
