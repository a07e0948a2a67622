package kalshi

import (
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// KalshiMarket represents a market as returned by the Kalshi REST API.
// Prices are in cents (1-99).
type KalshiMarket struct {
	Ticker         string  `json:"ticker"`
	EventTicker    string  `json:"event_ticker"`
	Title          string  `json:"title"`
	Subtitle       string  `json:"subtitle"`
	Status         string  `json:"status"` // "active", "closed", "settled"
	YesBid         float64 `json:"yes_bid"`
	YesAsk         float64 `json:"yes_ask"`
	NoBid          float64 `json:"no_bid"`
	NoAsk          float64 `json:"no_ask"`
	LastPrice      float64 `json:"last_price"`
	Volume         int64   `json:"volume"`
	Volume24H      int64   `json:"volume_24h"`
	OpenInterest   int64   `json:"open_interest"`
	Category       string  `json:"category"`
	Result         string  `json:"result"` // "yes", "no", "" (unsettled)
	OpenTime       string  `json:"open_time"`
	CloseTime      string  `json:"close_time"`
	ExpirationTime string  `json:"expiration_time"`
}

// ToMarket converts the Kalshi DTO into the venue-neutral market model.
func (m KalshiMarket) ToMarket() domain.Market {
	out := domain.Market{
		ID:       m.Ticker,
		Venue:    domain.VenueKalshi,
		Question: m.Title,
		Slug:     m.EventTicker,
		Status:   mapStatus(m.Status),
		Volume:   float64(m.Volume),
	}
	if m.Category != "" {
		out.Category = []string{m.Category}
	}
	if t, err := time.Parse(time.RFC3339, m.CloseTime); err == nil {
		out.CloseTime = &t
	}
	if t, err := time.Parse(time.RFC3339, m.OpenTime); err == nil {
		out.CreatedAt = t
	}
	return out
}

func mapStatus(s string) domain.MarketStatus {
	switch s {
	case "active", "open":
		return domain.MarketStatusActive
	case "settled", "finalized":
		return domain.MarketStatusSettled
	default:
		return domain.MarketStatusClosed
	}
}

// KalshiOrderbook represents the orderbook for a Kalshi market. Each side
// lists resting bids only; the ask on one side is implied by the bid on the
// other (yesAsk = 100 - noBid).
type KalshiOrderbook struct {
	Ticker    string             `json:"ticker"`
	YesBids   []KalshiPriceLevel `json:"yes"`
	NoBids    []KalshiPriceLevel `json:"no"`
	Timestamp time.Time          `json:"-"`
}

// KalshiPriceLevel is a single price+quantity entry in the Kalshi orderbook.
type KalshiPriceLevel struct {
	Price    int64 `json:"price"`    // in cents (1-99)
	Quantity int64 `json:"quantity"` // number of contracts
}

// best returns the highest-priced level, Kalshi sorts ascending.
func best(levels []KalshiPriceLevel) (KalshiPriceLevel, bool) {
	if len(levels) == 0 {
		return KalshiPriceLevel{}, false
	}
	top := levels[0]
	for _, l := range levels[1:] {
		if l.Price > top.Price {
			top = l
		}
	}
	return top, true
}

// ToQuote collapses the orderbook into a two-sided quote with prices
// normalized from cents to probabilities.
func (b KalshiOrderbook) ToQuote() domain.Quote {
	q := domain.Quote{
		MarketID:  b.Ticker,
		Venue:     domain.VenueKalshi,
		UpdatedAt: b.Timestamp,
	}
	yesBid, yesOK := best(b.YesBids)
	noBid, noOK := best(b.NoBids)

	if yesOK {
		q.Yes.Bid = float64(yesBid.Price) / 100
		q.No.Liquidity = float64(yesBid.Quantity)
	}
	if noOK {
		q.No.Bid = float64(noBid.Price) / 100
		q.Yes.Liquidity = float64(noBid.Quantity)
	}
	if noOK {
		q.Yes.Ask = 1 - float64(noBid.Price)/100
	}
	if yesOK {
		q.No.Ask = 1 - float64(yesBid.Price)/100
	}
	q.Yes.Mid = mid(q.Yes.Bid, q.Yes.Ask)
	q.No.Mid = mid(q.No.Bid, q.No.Ask)
	return q
}

func mid(bid, ask float64) float64 {
	if bid == 0 {
		return ask
	}
	if ask == 0 {
		return bid
	}
	return (bid + ask) / 2
}

// KalshiCandlestick is one aggregation period of market price history.
// The period is set by the request's period_interval in minutes.
type KalshiCandlestick struct {
	EndPeriodTS  int64      `json:"end_period_ts"` // Unix seconds
	Price        KalshiOHLC `json:"price"`
	YesBid       KalshiOHLC `json:"yes_bid"`
	YesAsk       KalshiOHLC `json:"yes_ask"`
	Volume       int64      `json:"volume"`
	OpenInterest int64      `json:"open_interest"`
}

// KalshiOHLC holds cent-denominated open/high/low/close values.
type KalshiOHLC struct {
	Open  *float64 `json:"open"`
	High  *float64 `json:"high"`
	Low   *float64 `json:"low"`
	Close *float64 `json:"close"`
}

// yesPrice picks the best available closing YES price for the period:
// the trade close when the period traded, otherwise the bid/ask midpoint.
func (c KalshiCandlestick) yesPrice() (float64, bool) {
	if c.Price.Close != nil {
		return *c.Price.Close / 100, true
	}
	if c.YesBid.Close != nil && c.YesAsk.Close != nil {
		return (*c.YesBid.Close + *c.YesAsk.Close) / 200, true
	}
	return 0, false
}

// KalshiErrorResponse represents a Kalshi API error response.
type KalshiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
