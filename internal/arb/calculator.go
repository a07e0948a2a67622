// Package arb implements the arbitrage calculation engine: it turns a pair
// of cross-venue quotes into fee- and safety-margin-adjusted profit figures
// and a validity verdict for both hedge directions.
package arb

import (
	"math"
	"sort"

	"github.com/alanyoungcy/arbscan/internal/domain"
	"github.com/alanyoungcy/arbscan/internal/fixedpoint"
)

// Slippage estimates the execution-cost penalty (as a fraction of notional)
// for an order of the given size against the given visible depth levels.
// It is deliberately pluggable; the default linear model is a coarse
// placeholder, not a calibrated microstructure model.
type Slippage func(size float64, depthLevels []float64) float64

// slippageCap bounds the default model when the order exceeds all visible
// depth.
const slippageCap = 0.10

// DefaultSlippage is linear in size relative to total visible depth, capped
// at 10% once the order would sweep the whole book.
func DefaultSlippage(size float64, depthLevels []float64) float64 {
	if size <= 0 {
		return 0
	}
	var total float64
	for _, d := range depthLevels {
		total += d
	}
	if total <= 0 || size >= total {
		return slippageCap
	}
	return (size / total) * 0.02
}

// Calculator evaluates quote pairs under a fee policy. It is stateless and
// safe for concurrent use.
type Calculator struct {
	slippage Slippage
}

// NewCalculator creates a Calculator. A nil slippage falls back to
// DefaultSlippage.
func NewCalculator(slippage Slippage) *Calculator {
	if slippage == nil {
		slippage = DefaultSlippage
	}
	return &Calculator{slippage: slippage}
}

// Calculate evaluates both complementary hedge directions for the quote
// pair and returns them sorted by ProfitPercent descending. Callers must
// gate on Valid, never on a positive ProfitPercent alone.
func (c *Calculator) Calculate(pair domain.QuotePair, policy domain.FeePolicy) [2]domain.ArbitrageResult {
	results := [2]domain.ArbitrageResult{
		c.evaluate(domain.DirectionYesFirst,
			domain.Leg{Venue: pair.First.Venue, Side: domain.SideYes, Price: pair.First.Yes.Ask, Liquidity: pair.First.Yes.Liquidity},
			domain.Leg{Venue: pair.Second.Venue, Side: domain.SideNo, Price: pair.Second.No.Ask, Liquidity: pair.Second.No.Liquidity},
			policy),
		c.evaluate(domain.DirectionNoFirst,
			domain.Leg{Venue: pair.First.Venue, Side: domain.SideNo, Price: pair.First.No.Ask, Liquidity: pair.First.No.Liquidity},
			domain.Leg{Venue: pair.Second.Venue, Side: domain.SideYes, Price: pair.Second.Yes.Ask, Liquidity: pair.Second.Yes.Liquidity},
			policy),
	}

	sort.SliceStable(results[:], func(i, j int) bool {
		return results[i].ProfitPercent > results[j].ProfitPercent
	})
	return results
}

// evaluate computes one hedge direction. All money math runs through the
// fixedpoint package; floats appear only on the way in and the way out.
func (c *Calculator) evaluate(dir domain.HedgeDirection, first, second domain.Leg, policy domain.FeePolicy) domain.ArbitrageResult {
	p1 := fixedpoint.FromFloat(first.Price)
	p2 := fixedpoint.FromFloat(second.Price)
	baseCost := p1.Add(p2)

	firstFee := legFee(p1, policy.First)
	secondFee := legFee(p2, policy.Second)
	totalFees := firstFee.Add(secondFee)

	totalCost := baseCost.Add(totalFees)
	profit := fixedpoint.One.Sub(totalCost)

	// The safety margin is a haircut on profit, not an inflation of cost.
	margin := fixedpoint.One.Sub(mustDiv(fixedpoint.FromFloat(policy.SafetyMarginPercent), fixedpoint.Hundred))
	adjusted := profit.Mul(margin)

	result := domain.ArbitrageResult{
		Direction: dir,
		FirstLeg:  first,
		SecondLeg: second,
		BaseCost:  baseCost.Float64(),
		Fees: domain.FeeBreakdown{
			FirstLegFee:  firstFee.Float64(),
			SecondLegFee: secondFee.Float64(),
			Total:        totalFees.Float64(),
		},
		TotalCost: totalCost.Float64(),
		BreakEven: fixedpoint.One.Sub(totalFees).Float64(),
		NetProfit: adjusted.Float64(),
	}

	if totalCost.IsPositive() {
		pct := mustDiv(profit, totalCost).Mul(fixedpoint.Hundred)
		result.ProfitPercent = pct.Float64()
	}

	v := Validate(result)
	result.Valid = v.Valid && adjusted.IsPositive()
	result.Errors = v.Errors
	return result
}

// legFee computes one venue's fee for a leg entered at the given price:
// a fixed per-contract fee, an optional percentage of the leg price, and an
// optional percentage of the implied profit (1 - price) charged
// pessimistically as if the leg wins, floored at the venue minimum.
func legFee(price fixedpoint.Value, fees domain.FeeStructure) fixedpoint.Value {
	fee := fixedpoint.FromFloat(fees.FixedPerUnit)
	if fees.PercentOfCost > 0 {
		fee = fee.Add(price.Mul(fixedpoint.FromFloat(fees.PercentOfCost)))
	}
	if fees.PercentProfit > 0 {
		impliedProfit := fixedpoint.One.Sub(price)
		if impliedProfit.IsPositive() {
			fee = fee.Add(impliedProfit.Mul(fixedpoint.FromFloat(fees.PercentProfit)))
		}
	}
	minimum := fixedpoint.FromFloat(fees.MinimumFee)
	if fee.LessThan(minimum) {
		fee = minimum
	}
	return fee
}

// MaxSize returns the executable number of contracts: the capital-implied
// cap and the liquidity cap both apply, floored to whole contracts. Neither
// capital nor book depth is ever assumed unlimited.
func MaxSize(result domain.ArbitrageResult, availableCapital, liquidity float64) float64 {
	if availableCapital <= 0 || liquidity <= 0 || result.TotalCost <= 0 {
		return 0
	}
	capitalCap, err := fixedpoint.FromFloat(availableCapital).Div(fixedpoint.FromFloat(result.TotalCost))
	if err != nil {
		return 0
	}
	cap := fixedpoint.Min(capitalCap.Floor(), fixedpoint.FromFloat(liquidity).Floor())
	if cap.IsNegative() {
		return 0
	}
	return cap.Float64()
}

// EstimateSlippage applies the calculator's slippage model.
func (c *Calculator) EstimateSlippage(size float64, depthLevels []float64) float64 {
	return c.slippage(size, depthLevels)
}

// mustDiv is Div for divisors the caller has already proven nonzero.
func mustDiv(a, b fixedpoint.Value) fixedpoint.Value {
	v, err := a.Div(b)
	if err != nil {
		return fixedpoint.Zero
	}
	return v
}

// priceInRange reports 0 <= p <= 1 and rejects NaN.
func priceInRange(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}
