package arb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

func quotePair(firstYesAsk, firstNoAsk, secondYesAsk, secondNoAsk float64) domain.QuotePair {
	return domain.QuotePair{
		First: domain.Quote{
			MarketID: "pm-1",
			Venue:    domain.VenuePolymarket,
			Yes:      domain.SideQuote{Ask: firstYesAsk, Liquidity: 1000},
			No:       domain.SideQuote{Ask: firstNoAsk, Liquidity: 1000},
		},
		Second: domain.Quote{
			MarketID: "kx-1",
			Venue:    domain.VenueKalshi,
			Yes:      domain.SideQuote{Ask: secondYesAsk, Liquidity: 500},
			No:       domain.SideQuote{Ask: secondNoAsk, Liquidity: 500},
		},
	}
}

func zeroFees() domain.FeePolicy {
	return domain.FeePolicy{
		First:  domain.FeeStructure{Venue: domain.VenuePolymarket},
		Second: domain.FeeStructure{Venue: domain.VenueKalshi},
	}
}

func TestCalculate_ZeroFeeScenario(t *testing.T) {
	// YES ask 0.45 on venue one, NO ask 0.48 on venue two, no fees, no
	// safety margin: cost 0.93, profit about 7.53%.
	calc := NewCalculator(nil)
	pair := quotePair(0.45, 0.60, 0.58, 0.48)

	results := calc.Calculate(pair, zeroFees())
	best := results[0]

	assert.Equal(t, domain.DirectionYesFirst, best.Direction)
	assert.InDelta(t, 0.93, best.TotalCost, 1e-9)
	assert.InDelta(t, 7.5268817, best.ProfitPercent, 1e-6)
	assert.True(t, best.Valid)

	// The mirror direction costs 0.60 + 0.58 = 1.18 and must be invalid.
	worst := results[1]
	assert.Equal(t, domain.DirectionNoFirst, worst.Direction)
	assert.InDelta(t, 1.18, worst.TotalCost, 1e-9)
	assert.False(t, worst.Valid)
}

func TestCalculate_SortedByProfitDescending(t *testing.T) {
	calc := NewCalculator(nil)
	results := calc.Calculate(quotePair(0.50, 0.52, 0.49, 0.47), zeroFees())
	assert.GreaterOrEqual(t, results[0].ProfitPercent, results[1].ProfitPercent)
}

func TestCalculate_FeesPushCostOverOne(t *testing.T) {
	calc := NewCalculator(nil)
	policy := zeroFees()
	policy.First.FixedPerUnit = 0.05
	policy.Second.FixedPerUnit = 0.05

	results := calc.Calculate(quotePair(0.45, 0.60, 0.58, 0.48), policy)
	best := results[0]

	assert.InDelta(t, 1.03, best.TotalCost, 1e-9)
	assert.False(t, best.Valid)
	assert.NotEmpty(t, best.Errors)
}

func TestCalculate_PercentProfitFeeIsPessimistic(t *testing.T) {
	// A 7% fee on implied profit, charged as if the position wins: the NO
	// leg at 0.48 implies 0.52 profit, so fee = 0.52 * 0.07 = 0.0364.
	calc := NewCalculator(nil)
	policy := zeroFees()
	policy.Second.PercentProfit = 0.07

	results := calc.Calculate(quotePair(0.45, 0.99, 0.99, 0.48), policy)
	best := results[0]

	assert.InDelta(t, 0.0364, best.Fees.SecondLegFee, 1e-9)
	assert.InDelta(t, 0.93+0.0364, best.TotalCost, 1e-9)
}

func TestCalculate_SafetyMarginHaircutsProfitNotCost(t *testing.T) {
	calc := NewCalculator(nil)

	policy := zeroFees()
	policy.SafetyMarginPercent = 50

	results := calc.Calculate(quotePair(0.45, 0.99, 0.99, 0.48), policy)
	best := results[0]

	// Cost and profitPercent are unchanged; only net profit is shaved.
	assert.InDelta(t, 0.93, best.TotalCost, 1e-9)
	assert.InDelta(t, 0.035, best.NetProfit, 1e-9)
	assert.True(t, best.Valid)

	// A 100% margin eats the whole edge.
	policy.SafetyMarginPercent = 100
	results = calc.Calculate(quotePair(0.45, 0.99, 0.99, 0.48), policy)
	assert.False(t, results[0].Valid)
}

func TestValidate_HardErrors(t *testing.T) {
	cases := []struct {
		name   string
		result domain.ArbitrageResult
	}{
		{"negative price", domain.ArbitrageResult{
			FirstLeg:  domain.Leg{Venue: domain.VenuePolymarket, Side: domain.SideYes, Price: -0.1},
			SecondLeg: domain.Leg{Venue: domain.VenueKalshi, Side: domain.SideNo, Price: 0.5},
			TotalCost: 0.4, ProfitPercent: 150,
		}},
		{"price above one", domain.ArbitrageResult{
			FirstLeg:  domain.Leg{Venue: domain.VenuePolymarket, Side: domain.SideYes, Price: 1.2},
			SecondLeg: domain.Leg{Venue: domain.VenueKalshi, Side: domain.SideNo, Price: 0.5},
			TotalCost: 1.7,
		}},
		{"cost at one", domain.ArbitrageResult{
			FirstLeg:  domain.Leg{Venue: domain.VenuePolymarket, Side: domain.SideYes, Price: 0.5},
			SecondLeg: domain.Leg{Venue: domain.VenueKalshi, Side: domain.SideNo, Price: 0.5},
			TotalCost: 1.0,
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Validate(tc.result)
			assert.False(t, v.Valid)
			assert.NotEmpty(t, v.Errors)
		})
	}
}

func TestValidate_ConfidencePenalties(t *testing.T) {
	ok := domain.ArbitrageResult{
		FirstLeg:      domain.Leg{Price: 0.45},
		SecondLeg:     domain.Leg{Price: 0.48},
		TotalCost:     0.93,
		ProfitPercent: 7.5,
	}
	assert.Equal(t, 100, Validate(ok).Confidence)

	thin := ok
	thin.TotalCost = 0.997
	thin.ProfitPercent = 0.3
	v := Validate(thin)
	assert.True(t, v.Valid)
	assert.Empty(t, v.Warnings)
	assert.Equal(t, 80, v.Confidence) // sub-0.5% penalty only

	tiny := ok
	tiny.TotalCost = 0.9995
	tiny.ProfitPercent = 0.05
	v = Validate(tiny)
	assert.Len(t, v.Warnings, 1)
	assert.Equal(t, 60, v.Confidence) // warning class + sub-0.5%

	suspicious := ok
	suspicious.TotalCost = 0.80
	suspicious.ProfitPercent = 25
	v = Validate(suspicious)
	assert.Len(t, v.Warnings, 1)
	assert.Equal(t, 80, v.Confidence)
}

func TestMaxSize_NeverExceedsEitherCap(t *testing.T) {
	result := domain.ArbitrageResult{TotalCost: 0.93}

	// Capital-bound: floor(100 / 0.93) = 107.
	assert.Equal(t, 107.0, MaxSize(result, 100, 1e9))
	// Liquidity-bound.
	assert.Equal(t, 50.0, MaxSize(result, 1e9, 50.9))
	// Degenerate inputs.
	assert.Equal(t, 0.0, MaxSize(result, 0, 100))
	assert.Equal(t, 0.0, MaxSize(result, 100, 0))
	assert.Equal(t, 0.0, MaxSize(domain.ArbitrageResult{}, 100, 100))
}

func TestDefaultSlippage(t *testing.T) {
	depth := []float64{100, 200, 300}

	// Linear region: (60 / 600) * 2% = 0.2%.
	assert.InDelta(t, 0.002, DefaultSlippage(60, depth), 1e-12)
	// Sweeping the book hits the cap.
	assert.Equal(t, 0.10, DefaultSlippage(600, depth))
	assert.Equal(t, 0.10, DefaultSlippage(10_000, depth))
	// No depth at all is treated as a full sweep.
	assert.Equal(t, 0.10, DefaultSlippage(5, nil))
	assert.Equal(t, 0.0, DefaultSlippage(0, depth))
}

func TestComputeTurnover(t *testing.T) {
	result := domain.ArbitrageResult{TotalCost: 0.93, ProfitPercent: 7.5268817}

	m := ComputeTurnover(result, 30*24*time.Hour, 0.98)
	require.NotNil(t, m)
	assert.InDelta(t, 30, m.HoldingPeriodDays, 1e-9)
	assert.InDelta(t, 365.0/30, m.TurnsPerYear, 1e-9)
	assert.InDelta(t, 7.5268817*365/30, m.AnnualizedReturn, 1e-4)
	assert.Greater(t, m.KellyFraction, 0.0)
	assert.LessOrEqual(t, m.KellyFraction, 1.0)
	assert.InDelta(t, m.KellyFraction/2, m.HalfKelly, 1e-12)

	assert.Nil(t, ComputeTurnover(result, 0, 0.98))
}

func TestMaterialize(t *testing.T) {
	calc := NewCalculator(nil)
	results := calc.Calculate(quotePair(0.45, 0.60, 0.58, 0.48), zeroFees())

	pair := domain.MarketPair{ID: "pair-1", ResolutionScore: 0.97}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	opp := Materialize(pair, results[0], MaterializeOpts{
		AvailableCapital: 1000,
		TTLSeconds:       60,
		HoldingPeriod:    14 * 24 * time.Hour,
		Now:              now,
	})

	assert.NotEmpty(t, opp.ID)
	assert.Equal(t, "pair-1", opp.PairID)
	// Liquidity cap: min(1000 YES depth, 500 NO depth) = 500 contracts.
	assert.Equal(t, 500.0, opp.MaxSize)
	assert.Equal(t, 100, opp.Confidence)
	assert.NotNil(t, opp.Turnover)
	assert.Equal(t, now, opp.DetectedAt)
	assert.False(t, opp.Expired(now.Add(59*time.Second)))
	assert.True(t, opp.Expired(now.Add(61*time.Second)))
}
