// Package polymarket adapts the Polymarket Gamma and CLOB APIs to the
// venue-neutral provider interfaces. Market metadata comes from Gamma;
// prices and orderbooks come from the CLOB, which keys on per-outcome
// token IDs rather than market IDs.
package polymarket

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// Client composes the Gamma and CLOB sub-clients into one venue adapter.
// Token ID lookups are cached for the lifetime of the client; a market's
// CLOB tokens never change once assigned.
type Client struct {
	gamma *GammaClient
	clob  *ClobClient

	mu     sync.Mutex
	tokens map[string]TokenPair
}

// NewClient creates a Polymarket adapter from the two API roots.
func NewClient(gammaURL, clobURL string) *Client {
	return &Client{
		gamma:  NewGammaClient(gammaURL),
		clob:   NewClobClient(clobURL),
		tokens: make(map[string]TokenPair),
	}
}

// Venue identifies this adapter.
func (c *Client) Venue() domain.Venue { return domain.VenuePolymarket }

// GetMarket returns a single market by its ID.
func (c *Client) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	return c.gamma.GetMarket(ctx, id)
}

// ListActive returns a page of currently trading markets.
func (c *Client) ListActive(ctx context.Context, limit, offset int) ([]domain.Market, error) {
	return c.gamma.ListActive(ctx, limit, offset)
}

// GetQuote returns the current two-sided quote for one market. The YES
// token's book alone determines both sides, the NO book being its mirror.
func (c *Client) GetQuote(ctx context.Context, marketID string) (domain.Quote, error) {
	tp, err := c.tokenPair(ctx, marketID)
	if err != nil {
		return domain.Quote{}, err
	}

	book, err := c.clob.GetBook(ctx, tp.Yes)
	if err != nil {
		return domain.Quote{}, err
	}

	ts := parseWSTimestamp(book.Timestamp, c.clob.now().UTC())
	return yesQuote(book.Bids, book.Asks, marketID, ts), nil
}

// GetHistoricalPrices returns the YES price series for one market.
func (c *Client) GetHistoricalPrices(ctx context.Context, marketID string, start, end time.Time, fidelityMinutes int) ([]domain.PricePoint, error) {
	tp, err := c.tokenPair(ctx, marketID)
	if err != nil {
		return nil, err
	}
	return c.clob.GetPricesHistory(ctx, tp.Yes, start, end, fidelityMinutes)
}

func (c *Client) tokenPair(ctx context.Context, marketID string) (TokenPair, error) {
	c.mu.Lock()
	tp, ok := c.tokens[marketID]
	c.mu.Unlock()
	if ok {
		return tp, nil
	}

	tp, err := c.gamma.GetTokenPair(ctx, marketID)
	if err != nil {
		return TokenPair{}, err
	}

	c.mu.Lock()
	c.tokens[marketID] = tp
	c.mu.Unlock()
	return tp, nil
}
