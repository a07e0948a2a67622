package backtest

import (
	"math"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

const hoursPerYear = 24 * 365

// annualizedReturnCap bounds the extrapolated yearly rate, in percent.
// Compounding a strong short-horizon growth factor out to a year overflows
// float64 long before the number means anything.
const annualizedReturnCap = 1e6

// computeMetrics derives the portfolio risk figures from the settled trade
// ledger and the capital path. Every returned field is finite: degenerate
// inputs (no trades, zero variance, no losses) map to zero or to the
// documented sentinel rather than NaN or Inf.
func computeMetrics(trades []domain.SimulatedTrade, path []domain.CapitalPoint, initial float64, horizon time.Duration) domain.RiskMetrics {
	var m domain.RiskMetrics
	if initial <= 0 {
		return m
	}

	final := initial
	if len(path) > 0 {
		final = path[len(path)-1].Capital
	}
	m.ReturnPercent = (final - initial) / initial * 100
	m.AnnualizedReturn = annualize(final/initial, horizon)
	m.MaxDrawdown, m.MaxDrawdownPct = drawdown(path)

	if len(trades) == 0 {
		return m
	}

	var wins, grossWin, grossLoss float64
	returns := make([]float64, 0, len(trades))
	for _, t := range trades {
		if t.Cost > 0 {
			returns = append(returns, t.RealizedProfit/t.Cost)
		}
		switch t.Outcome {
		case domain.OutcomeWin:
			wins++
			grossWin += t.RealizedProfit
		case domain.OutcomeLoss:
			grossLoss += -t.RealizedProfit
		}
	}
	m.WinRate = wins / float64(len(trades)) * 100

	switch {
	case grossLoss > 0:
		m.ProfitFactor = math.Min(grossWin/grossLoss, domain.ProfitFactorCapped)
	case grossWin > 0:
		m.ProfitFactor = domain.ProfitFactorCapped
	default:
		m.ProfitFactor = 0
	}

	m.SharpeRatio = sharpe(returns, allDeviation)
	m.SortinoRatio = sharpe(returns, downsideDeviation)
	return m
}

// annualize compounds a total growth factor out to a yearly rate, capped at
// annualizedReturnCap. Horizons under an hour are too short to extrapolate
// and report the plain return.
func annualize(growth float64, horizon time.Duration) float64 {
	if growth <= 0 {
		return -100
	}
	hours := horizon.Hours()
	if hours < 1 {
		return (growth - 1) * 100
	}
	r := (math.Pow(growth, hoursPerYear/hours) - 1) * 100
	if r > annualizedReturnCap {
		return annualizedReturnCap
	}
	return r
}

// drawdown walks the capital path and returns the deepest peak-to-trough
// fall in absolute capital units and as a percent of the peak.
func drawdown(path []domain.CapitalPoint) (abs, pct float64) {
	peak := math.Inf(-1)
	for _, p := range path {
		if p.Capital > peak {
			peak = p.Capital
		}
		if d := peak - p.Capital; d > abs {
			abs = d
			if peak > 0 {
				pct = d / peak * 100
			}
		}
	}
	return abs, pct
}

type deviationFunc func(returns []float64, mean float64) float64

// sharpe computes mean return over the chosen deviation measure. Zero
// deviation with positive mean would be infinite, so it reports the cap;
// zero deviation with non-positive mean reports zero.
func sharpe(returns []float64, dev deviationFunc) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	sd := dev(returns, mean)
	if sd == 0 {
		if mean > 0 {
			return domain.ProfitFactorCapped
		}
		return 0
	}
	return mean / sd
}

func allDeviation(returns []float64, mean float64) float64 {
	var ss float64
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(returns)-1))
}

// downsideDeviation penalizes only returns below zero, the Sortino
// denominator.
func downsideDeviation(returns []float64, _ float64) float64 {
	var ss float64
	var n int
	for _, r := range returns {
		if r < 0 {
			ss += r * r
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(ss / float64(n))
}
