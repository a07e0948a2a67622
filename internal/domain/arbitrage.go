package domain

import "time"

// Side is one outcome of a binary market.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// HedgeDirection names the pairing of legs across the two venues that locks
// in a payoff of 1.0 regardless of outcome.
type HedgeDirection string

const (
	// DirectionYesFirst buys YES on the first venue and NO on the second.
	DirectionYesFirst HedgeDirection = "yes_first_no_second"
	// DirectionNoFirst buys NO on the first venue and YES on the second.
	DirectionNoFirst HedgeDirection = "no_first_yes_second"
)

// Leg is one side of the hedge: a venue, the outcome bought there, the ask
// price paid, and the size available at that ask.
type Leg struct {
	Venue     Venue
	Side      Side
	Price     float64
	Liquidity float64
}

// FeeBreakdown itemizes the fees charged on each leg of a hedge.
type FeeBreakdown struct {
	FirstLegFee  float64
	SecondLegFee float64
	Total        float64
}

// ArbitrageResult is the outcome of evaluating one hedge direction for one
// quote pair. Two results are produced per pair, one per direction; callers
// rank by ProfitPercent descending. Valid is the authoritative tradeability
// flag -- a positive ProfitPercent alone is not sufficient.
type ArbitrageResult struct {
	Direction     HedgeDirection
	FirstLeg      Leg
	SecondLeg     Leg
	BaseCost      float64
	Fees          FeeBreakdown
	TotalCost     float64
	BreakEven     float64 // cost at which profit is exactly zero
	ProfitPercent float64 // (1 - TotalCost) / TotalCost * 100, pre safety margin
	NetProfit     float64 // per-contract profit after fees and safety margin
	Valid         bool
	Errors        []string
}

// Validation is the detailed verdict for a single ArbitrageResult.
type Validation struct {
	Valid      bool
	Errors     []string
	Warnings   []string
	Confidence int // 0..100
}

// TurnoverMetrics projects an annualized return and Kelly position-sizing
// fractions from a single opportunity's edge and expected lifetime.
type TurnoverMetrics struct {
	HoldingPeriodDays float64
	TurnsPerYear      float64
	AnnualizedReturn  float64 // percent
	KellyFraction     float64 // full Kelly, fraction of bankroll
	HalfKelly         float64
}

// ArbitrageOpportunity is a materialized, timestamped ArbitrageResult bound
// to a specific market pair. Opportunities are immutable once created; a
// fresher scan supersedes an opportunity with a new ID rather than mutating
// the old one.
type ArbitrageOpportunity struct {
	ID         string
	PairID     string
	Pair       MarketPair
	Result     ArbitrageResult
	MaxSize    float64 // contracts, bounded by capital and book depth
	Confidence int     // 0..100, from validation
	TTLSeconds int     // expected remaining lifetime of the edge
	Turnover   *TurnoverMetrics
	DetectedAt time.Time
}

// Expired reports whether the opportunity's TTL has elapsed as of now.
func (o ArbitrageOpportunity) Expired(now time.Time) bool {
	return now.After(o.DetectedAt.Add(time.Duration(o.TTLSeconds) * time.Second))
}
