package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// ClobClient is the REST client for the Polymarket CLOB (Central Limit
// Order Book) market-data endpoints. Price and book reads are public and
// need no authentication.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
func NewClobClient(baseURL string) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

// GetBook returns the current orderbook for one CLOB token.
func (c *ClobClient) GetBook(ctx context.Context, tokenID string) (BookResponse, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)

	body, err := c.doGet(ctx, "/book?"+params.Encode())
	if err != nil {
		return BookResponse{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}

	var book BookResponse
	if err := json.Unmarshal(body, &book); err != nil {
		return BookResponse{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}
	return book, nil
}

// GetPricesHistory returns the YES probability series for one CLOB token
// between start and end, sampled at the given fidelity in minutes.
func (c *ClobClient) GetPricesHistory(ctx context.Context, tokenID string, start, end time.Time, fidelityMinutes int) ([]domain.PricePoint, error) {
	if fidelityMinutes <= 0 {
		fidelityMinutes = 60
	}
	params := url.Values{}
	params.Set("market", tokenID)
	params.Set("startTs", strconv.FormatInt(start.Unix(), 10))
	params.Set("endTs", strconv.FormatInt(end.Unix(), 10))
	params.Set("fidelity", strconv.Itoa(fidelityMinutes))

	body, err := c.doGet(ctx, "/prices-history?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/clob: get prices history %s: %w", tokenID, err)
	}

	var resp HistoryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("polymarket/clob: decode prices history: %w", err)
	}

	points := make([]domain.PricePoint, 0, len(resp.History))
	for _, h := range resp.History {
		points = append(points, domain.PricePoint{
			Timestamp: time.Unix(h.T, 0).UTC(),
			Price:     h.P,
		})
	}
	return points, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends a GET request to the CLOB API and reads the body.
func (c *ClobClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrTransient, err)
	}

	if err := checkHTTPStatus(resp, body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkHTTPStatus maps non-2xx status codes onto the domain error taxonomy.
// Shared by the Gamma and CLOB clients.
func checkHTTPStatus(resp *http.Response, body []byte) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	bodyStr := string(body)
	switch {
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case code == http.StatusTooManyRequests:
		return &domain.RateLimitError{
			Venue:      domain.VenuePolymarket,
			RetryAfter: parseRetryAfter(resp.Header),
		}
	case code >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrTransient, code, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", code, bodyStr)
	}
}

func parseRetryAfter(h http.Header) time.Duration {
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
