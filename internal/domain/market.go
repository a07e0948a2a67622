package domain

import "time"

// Venue identifies a prediction-market exchange.
type Venue string

const (
	VenuePolymarket Venue = "polymarket"
	VenueKalshi     Venue = "kalshi"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive  MarketStatus = "active"
	MarketStatusClosed  MarketStatus = "closed"
	MarketStatusSettled MarketStatus = "settled"
)

// Market represents a two-sided YES/NO prediction market on one venue.
// A Market is immutable within a scan cycle; it is refreshed on the next
// poll rather than mutated in place.
type Market struct {
	ID        string
	Venue     Venue
	Question  string
	Slug      string
	Category  []string
	Status    MarketStatus
	Volume    float64
	CloseTime *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the market is still trading.
func (m Market) Active() bool {
	return m.Status == MarketStatusActive
}

// SideQuote holds the bid/ask/mid for one side (YES or NO) of a market,
// together with the size available at the ask.
type SideQuote struct {
	Bid       float64
	Ask       float64
	Mid       float64
	Liquidity float64
}

// Quote is a point-in-time view of both sides of one market. Prices are
// probabilities in [0, 1]. Produced by venue adapters; never constructed by
// the core itself.
type Quote struct {
	MarketID  string
	Venue     Venue
	Yes       SideQuote
	No        SideQuote
	UpdatedAt time.Time
}

// QuotePair bundles the two venues' quotes for one cross-venue market pair.
type QuotePair struct {
	First  Quote
	Second Quote
}

// MarketPair is an ordered pair of markets on two different venues that are
// believed to resolve on the same real-world event. Pairs are produced by an
// external matcher; the core treats them as read-only input.
type MarketPair struct {
	ID              string
	First           Market
	Second          Market
	Correlation     float64 // matcher similarity score, 0..1
	ResolutionScore float64 // resolution-alignment score, 0..1
	MatchedAt       time.Time
}

// Label returns a short human-readable identifier for progress reporting.
func (p MarketPair) Label() string {
	return string(p.First.Venue) + ":" + p.First.ID + " / " + string(p.Second.Venue) + ":" + p.Second.ID
}

// FeeStructure describes one venue's trading fees. Loaded from configuration
// once and immutable for the duration of a run.
type FeeStructure struct {
	Venue         Venue
	FixedPerUnit  float64 // flat fee per contract
	PercentOfCost float64 // fraction of the leg price, 0 disables
	PercentProfit float64 // fraction of implied profit, charged as if the leg wins
	MinimumFee    float64
}

// FeePolicy is the pair of fee structures plus the safety margin applied to
// raw profit before an opportunity is declared tradeable.
type FeePolicy struct {
	First               FeeStructure
	Second              FeeStructure
	SafetyMarginPercent float64 // fractional haircut on profit, e.g. 10 => keep 90%
}
