package arb

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

const hoursPerYear = 24 * 365

// ComputeTurnover projects an annualized return and Kelly sizing fractions
// for a result expected to stay actionable for ttl and to pay out once the
// market resolves after holdingPeriod. winProb is the estimated probability
// that the two markets actually resolve identically (resolution alignment);
// a riskless hedge is only riskless when they do.
func ComputeTurnover(result domain.ArbitrageResult, holdingPeriod time.Duration, winProb float64) *domain.TurnoverMetrics {
	if holdingPeriod <= 0 || result.TotalCost <= 0 {
		return nil
	}

	days := holdingPeriod.Hours() / 24
	turns := hoursPerYear / holdingPeriod.Hours()
	perTurn := result.ProfitPercent / 100

	// Simple (non-compounded) annualization; compounding sub-1% edges over
	// hundreds of turns produces numbers nobody should trade on.
	annualized := perTurn * turns * 100

	m := &domain.TurnoverMetrics{
		HoldingPeriodDays: days,
		TurnsPerYear:      turns,
		AnnualizedReturn:  annualized,
	}

	if winProb > 0 && winProb < 1 && perTurn > 0 {
		// Kelly with net odds b = profit per unit staked. Losing the hedge
		// (markets resolve differently) forfeits the cheaper leg's payout.
		b := perTurn
		f := (winProb*(b+1) - 1) / b
		m.KellyFraction = clamp01(f)
		m.HalfKelly = m.KellyFraction / 2
	} else if winProb >= 1 {
		m.KellyFraction = 1
		m.HalfKelly = 0.5
	}

	return m
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// MaterializeOpts carries the scan-cycle parameters for turning a raw
// result into a stored opportunity.
type MaterializeOpts struct {
	AvailableCapital float64
	TTLSeconds       int
	HoldingPeriod    time.Duration
	Now              time.Time
}

// Materialize binds a calculated result to its market pair as an immutable,
// timestamped opportunity with a fresh ID.
func Materialize(pair domain.MarketPair, result domain.ArbitrageResult, opts MaterializeOpts) domain.ArbitrageOpportunity {
	v := Validate(result)
	liquidity := math.Min(result.FirstLeg.Liquidity, result.SecondLeg.Liquidity)

	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return domain.ArbitrageOpportunity{
		ID:         uuid.NewString(),
		PairID:     pair.ID,
		Pair:       pair,
		Result:     result,
		MaxSize:    MaxSize(result, opts.AvailableCapital, liquidity),
		Confidence: v.Confidence,
		TTLSeconds: opts.TTLSeconds,
		Turnover:   ComputeTurnover(result, opts.HoldingPeriod, pair.ResolutionScore),
		DetectedAt: now,
	}
}
