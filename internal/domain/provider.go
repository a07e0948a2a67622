package domain

import (
	"context"
	"time"
)

// HistoryProvider fetches a venue's historical YES price series for one
// market. Implemented by the venue adapters; consumed through the rate
// limited queues so failures are classified by error shape only.
type HistoryProvider interface {
	Venue() Venue
	GetHistoricalPrices(ctx context.Context, marketID string, start, end time.Time, fidelityMinutes int) ([]PricePoint, error)
}

// QuoteProvider fetches the current two-sided quote for one market.
type QuoteProvider interface {
	Venue() Venue
	GetQuote(ctx context.Context, marketID string) (Quote, error)
}

// MarketProvider lists and resolves markets on one venue.
type MarketProvider interface {
	Venue() Venue
	GetMarket(ctx context.Context, id string) (Market, error)
	ListActive(ctx context.Context, limit, offset int) ([]Market, error)
}
