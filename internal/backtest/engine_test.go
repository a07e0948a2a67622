package backtest

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// opp builds a profitable opportunity with the given total cost and
// detection time. Base cost and fees are folded so profit math stays
// consistent with the arbitrage calculator's outputs.
func opp(id string, totalCost float64, detectedAt time.Time) domain.ArbitrageOpportunity {
	profit := (1 - totalCost) / totalCost * 100
	return domain.ArbitrageOpportunity{
		ID:     id,
		PairID: "pair-" + id,
		Pair: domain.MarketPair{
			ID:              "pair-" + id,
			ResolutionScore: 0.95,
		},
		Result: domain.ArbitrageResult{
			Direction:     domain.DirectionYesFirst,
			BaseCost:      totalCost,
			TotalCost:     totalCost,
			ProfitPercent: profit,
			NetProfit:     1 - totalCost,
			Valid:         true,
		},
		MaxSize:    1000,
		DetectedAt: detectedAt,
	}
}

func baseConfig() Config {
	return Config{
		InitialCapital:     10_000,
		MinProfitPercent:   1,
		MaxPositionPercent: 0.25,
		Slippage:           SlippageRealistic,
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	e := NewEngine()
	opps := []domain.ArbitrageOpportunity{opp("a", 0.93, t0)}

	_, err := e.Run(opps, Config{InitialCapital: 0})
	require.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = e.Run(nil, baseConfig())
	require.ErrorIs(t, err, domain.ErrConfiguration)

	cfg := baseConfig()
	cfg.Slippage = "aggressive"
	_, err = e.Run(opps, cfg)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestRunSkipsEverythingBelowThreshold(t *testing.T) {
	opps := make([]domain.ArbitrageOpportunity, 0, 10)
	for i := range 10 {
		// 0.93 total cost is roughly a 7.5% edge, far under the 50% bar.
		opps = append(opps, opp(fmt.Sprintf("o%d", i), 0.93, t0.Add(time.Duration(i)*time.Minute)))
	}
	cfg := baseConfig()
	cfg.MinProfitPercent = 50

	res, err := NewEngine().Run(opps, cfg)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Summary.ExecutedTrades)
	assert.Equal(t, 10, res.Summary.SkippedTrades)
	assert.Equal(t, cfg.InitialCapital, res.Summary.FinalCapital)
	assert.Empty(t, res.Trades)
}

func TestRunExecutesAndConservesCapital(t *testing.T) {
	opps := []domain.ArbitrageOpportunity{
		opp("a", 0.93, t0),
		opp("b", 0.95, t0.Add(time.Hour)),
	}
	res, err := NewEngine().Run(opps, baseConfig())
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	assert.Equal(t, 0, res.Summary.SkippedTrades)

	var net float64
	for _, tr := range res.Trades {
		assert.Greater(t, tr.Size, 0.0)
		assert.LessOrEqual(t, tr.Cost, baseConfig().InitialCapital*0.25+1e-9)
		net += tr.RealizedProfit
	}
	// Final capital is exactly initial plus the sum of realized profits.
	assert.InDelta(t, baseConfig().InitialCapital+net, res.Summary.FinalCapital, 1e-9)
	assert.Greater(t, res.Summary.FinalCapital, baseConfig().InitialCapital)
}

func TestRunOrdersChronologically(t *testing.T) {
	// Delivered out of order on purpose.
	opps := []domain.ArbitrageOpportunity{
		opp("late", 0.95, t0.Add(2*time.Hour)),
		opp("early", 0.93, t0),
		opp("mid", 0.94, t0.Add(time.Hour)),
	}
	res, err := NewEngine().Run(opps, baseConfig())
	require.NoError(t, err)

	require.Len(t, res.Trades, 3)
	assert.Equal(t, "early", res.Trades[0].OpportunityID)
	assert.Equal(t, "mid", res.Trades[1].OpportunityID)
	assert.Equal(t, "late", res.Trades[2].OpportunityID)
	for i := 1; i < len(res.Trades); i++ {
		assert.False(t, res.Trades[i].EntryAt.Before(res.Trades[i-1].EntryAt))
	}
}

func TestRunCooldownBlocksSamePair(t *testing.T) {
	a := opp("a", 0.93, t0)
	b := opp("b", 0.93, t0.Add(10*time.Minute))
	b.PairID = a.PairID
	c := opp("c", 0.93, t0.Add(2*time.Hour))
	c.PairID = a.PairID

	cfg := baseConfig()
	cfg.Cooldown = time.Hour

	res, err := NewEngine().Run([]domain.ArbitrageOpportunity{a, b, c}, cfg)
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	assert.Equal(t, "a", res.Trades[0].OpportunityID)
	assert.Equal(t, "c", res.Trades[1].OpportunityID)
	assert.Equal(t, 1, res.Summary.SkippedTrades)
}

func TestRunResolutionAlignmentGate(t *testing.T) {
	good := opp("good", 0.93, t0)
	bad := opp("bad", 0.93, t0.Add(time.Minute))
	bad.Pair.ResolutionScore = 0.4

	cfg := baseConfig()
	cfg.RequireResolutionAlignment = true
	cfg.MinResolutionScore = 0.8

	res, err := NewEngine().Run([]domain.ArbitrageOpportunity{good, bad}, cfg)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "good", res.Trades[0].OpportunityID)
}

func TestRunHoldingPeriodLocksCapital(t *testing.T) {
	// Two opportunities ten minutes apart. With a one hour holding period
	// and the whole bankroll allowed per trade, the first trade locks all
	// capital so the second cannot size to a single contract.
	a := opp("a", 0.93, t0)
	b := opp("b", 0.93, t0.Add(10*time.Minute))

	cfg := baseConfig()
	cfg.MaxPositionPercent = 1
	cfg.HoldingPeriod = time.Hour
	a.MaxSize = 100_000
	b.MaxSize = 100_000

	res, err := NewEngine().Run([]domain.ArbitrageOpportunity{a, b}, cfg)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "a", res.Trades[0].OpportunityID)
	assert.Equal(t, 1, res.Summary.SkippedTrades)

	// Capital returns with profit once the open position settles.
	assert.Greater(t, res.Summary.FinalCapital, cfg.InitialCapital)
}

func TestRunMaxSizeCapsPosition(t *testing.T) {
	a := opp("a", 0.50, t0)
	a.MaxSize = 7

	res, err := NewEngine().Run([]domain.ArbitrageOpportunity{a}, baseConfig())
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, 7.0, res.Trades[0].Size)
}

func TestRunDeterministicTradeSequence(t *testing.T) {
	opps := make([]domain.ArbitrageOpportunity, 0, 20)
	for i := range 20 {
		opps = append(opps, opp(fmt.Sprintf("o%d", i), 0.90+float64(i%5)*0.01, t0.Add(time.Duration(i)*time.Minute)))
	}
	cfg := baseConfig()
	cfg.Cooldown = 5 * time.Minute

	first, err := NewEngine().Run(opps, cfg)
	require.NoError(t, err)
	second, err := NewEngine().Run(opps, cfg)
	require.NoError(t, err)

	assert.Equal(t, first.Trades, second.Trades)
	assert.Equal(t, first.CapitalPath, second.CapitalPath)
	assert.Equal(t, first.Summary, second.Summary)
	require.NotEmpty(t, first.Trades)
	assert.Equal(t, "bt-0001", first.Trades[0].ID)
}

func TestSlippageModelOrdering(t *testing.T) {
	sizes := []float64{1, 50, 500, 5000}
	costs := []float64{0.10, 0.50, 0.93, 0.99}
	profits := []float64{0.1, 1, 7.5, 40}

	cons, err := SlippageConservative.Params()
	require.NoError(t, err)
	mid, err := SlippageRealistic.Params()
	require.NoError(t, err)
	opti, err := SlippageOptimistic.Params()
	require.NoError(t, err)

	for _, s := range sizes {
		for _, c := range costs {
			for _, p := range profits {
				cc := cons.Cost(s, c, p)
				rc := mid.Cost(s, c, p)
				oc := opti.Cost(s, c, p)
				assert.GreaterOrEqual(t, cc, rc, "size=%v cost=%v profit=%v", s, c, p)
				assert.GreaterOrEqual(t, rc, oc, "size=%v cost=%v profit=%v", s, c, p)
				assert.GreaterOrEqual(t, oc, 0.0)
			}
		}
	}

	assert.Zero(t, mid.Cost(0, 0.93, 7.5))
	assert.Zero(t, mid.Cost(-5, 0.93, 7.5))
}

func TestSlippageUnknownModel(t *testing.T) {
	_, err := SlippageModel("made-up").Params()
	require.Error(t, err)
}

func TestRunSlippageBoundedByPayoff(t *testing.T) {
	// A whole-bankroll fill makes the linear size term dominate; without the
	// payoff bound the deduction would exceed the hedge's entire return and
	// drag the ledger negative.
	o := opp("big", 0.93, t0)
	o.MaxSize = 0
	cfg := Config{
		InitialCapital:     1_000_000,
		MaxPositionPercent: 1,
		Slippage:           SlippageRealistic,
	}

	res, err := NewEngine().Run([]domain.ArbitrageOpportunity{o}, cfg)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	payoff := tr.Size * (1 - o.Result.BaseCost)
	assert.LessOrEqual(t, tr.SlippageCost, payoff+1e-9)
	// Worst case loses the stake plus fees, never more.
	assert.GreaterOrEqual(t, tr.RealizedProfit, -(tr.Cost+tr.Fees)-1e-9)
	assert.Greater(t, res.Summary.FinalCapital, 0.0)
	for _, p := range res.CapitalPath {
		assert.GreaterOrEqual(t, p.Capital, 0.0)
	}
}

func TestAnnualizedReturnIsFinite(t *testing.T) {
	// Doubling inside two hours compounds past float64 range.
	got := annualize(2, 2*time.Hour)
	assert.False(t, math.IsInf(got, 0))
	assert.Equal(t, annualizedReturnCap, got)

	// Ordinary horizons are untouched by the cap.
	assert.InDelta(t, 10, annualize(1.1, hoursPerYear*time.Hour), 1e-9)
	assert.Equal(t, -100.0, annualize(0, time.Hour))
}

func TestMetricsDegenerateInputsAreFinite(t *testing.T) {
	m := computeMetrics(nil, nil, 10_000, time.Hour)
	assert.Zero(t, m.SharpeRatio)
	assert.Zero(t, m.WinRate)
	assert.Zero(t, m.ProfitFactor)

	// All winners: profit factor reports the cap, not infinity.
	trades := []domain.SimulatedTrade{
		{Cost: 100, RealizedProfit: 5, Outcome: domain.OutcomeWin},
		{Cost: 100, RealizedProfit: 7, Outcome: domain.OutcomeWin},
	}
	path := []domain.CapitalPoint{
		{Timestamp: t0, Capital: 10_000},
		{Timestamp: t0.Add(time.Hour), Capital: 10_012},
	}
	m = computeMetrics(trades, path, 10_000, time.Hour)
	assert.Equal(t, domain.ProfitFactorCapped, m.ProfitFactor)
	assert.Equal(t, 100.0, m.WinRate)
	assert.InDelta(t, 0.12, m.ReturnPercent, 1e-9)
	assert.Zero(t, m.MaxDrawdown)
}

func TestMetricsDrawdown(t *testing.T) {
	path := []domain.CapitalPoint{
		{Timestamp: t0, Capital: 10_000},
		{Timestamp: t0.Add(1 * time.Hour), Capital: 11_000},
		{Timestamp: t0.Add(2 * time.Hour), Capital: 9_900},
		{Timestamp: t0.Add(3 * time.Hour), Capital: 10_500},
	}
	m := computeMetrics(nil, path, 10_000, 3*time.Hour)
	assert.InDelta(t, 1_100, m.MaxDrawdown, 1e-9)
	assert.InDelta(t, 10, m.MaxDrawdownPct, 1e-9)
}

func TestIntervalReportsDailyBuckets(t *testing.T) {
	day1 := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	trades := []domain.SimulatedTrade{
		{EntryAt: day1, RealizedProfit: 10, Fees: 1, Outcome: domain.OutcomeWin},
		{EntryAt: day1.Add(time.Hour), RealizedProfit: -4, Fees: 1, Outcome: domain.OutcomeLoss},
		{EntryAt: day2, RealizedProfit: 6, Fees: 1, Outcome: domain.OutcomeWin},
	}
	reports := intervalReports(trades, nil, domain.ReportDaily)
	require.Len(t, reports, 2)

	assert.Equal(t, 2, reports[0].Trades)
	assert.Equal(t, 1, reports[0].Wins)
	assert.Equal(t, 1, reports[0].Losses)
	assert.InDelta(t, 6, reports[0].NetProfit, 1e-9)
	assert.Equal(t, 1, reports[1].Trades)

	weekly := intervalReports(trades, nil, domain.ReportWeekly)
	require.Len(t, weekly, 1)
	assert.Equal(t, 3, weekly[0].Trades)
	// Monday of that ISO week.
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), weekly[0].PeriodStart)
}

func TestOptimizeSortsBySharpe(t *testing.T) {
	opps := make([]domain.ArbitrageOpportunity, 0, 12)
	for i := range 12 {
		opps = append(opps, opp(fmt.Sprintf("o%d", i), 0.90+float64(i%4)*0.02, t0.Add(time.Duration(i)*time.Hour)))
	}
	grid := Grid{
		MinProfitPercents: []float64{1, 4, 50},
		Slippages:         []SlippageModel{SlippageOptimistic, SlippageConservative},
	}

	cells, err := NewEngine().Optimize(context.Background(), opps, baseConfig(), grid)
	require.NoError(t, err)
	require.Len(t, cells, 6)

	for i := 1; i < len(cells); i++ {
		assert.GreaterOrEqual(t, cells[i-1].Result.Summary.Metrics.SharpeRatio, cells[i].Result.Summary.Metrics.SharpeRatio)
	}
}

func TestOptimizeEmptyGridUsesBase(t *testing.T) {
	opps := []domain.ArbitrageOpportunity{opp("a", 0.93, t0), opp("b", 0.94, t0.Add(time.Hour))}
	cells, err := NewEngine().Optimize(context.Background(), opps, baseConfig(), Grid{})
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, baseConfig().MinProfitPercent, cells[0].Config.MinProfitPercent)
}
