// Package backtest replays historical arbitrage opportunities against a
// capital-constrained portfolio and reports trade-level outcomes plus
// portfolio risk metrics. Each Run call is a pure function of its inputs:
// no shared mutable state, no hidden randomness, so grid cells of the
// optimizer can run in parallel and identical inputs produce identical
// trade sequences.
package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// Config parameterizes one simulation run.
type Config struct {
	InitialCapital             float64
	MinProfitPercent           float64
	MaxPositionSize            float64       // capital units per trade, 0 disables the cap
	MaxPositionPercent         float64       // fraction of available capital per trade
	Cooldown                   time.Duration // per-pair re-entry guard
	HoldingPeriod              time.Duration // capital stays allocated this long
	RequireResolutionAlignment bool
	MinResolutionScore         float64
	Slippage                   SlippageModel
	SlippageParams             *SlippageParams // overrides the model defaults when set
}

// Validate rejects configurations the simulation cannot honestly run under.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("%w: initial capital must be positive", domain.ErrConfiguration)
	}
	if c.MaxPositionPercent < 0 || c.MaxPositionPercent > 1 {
		return fmt.Errorf("%w: max position percent must be in [0,1]", domain.ErrConfiguration)
	}
	if c.Slippage != "" && c.SlippageParams == nil {
		if _, err := c.Slippage.Params(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
		}
	}
	return nil
}

func (c Config) slippageParams() SlippageParams {
	if c.SlippageParams != nil {
		return *c.SlippageParams
	}
	model := c.Slippage
	if model == "" {
		model = SlippageRealistic
	}
	p, _ := model.Params()
	return p
}

// openPosition is capital allocated to a not-yet-settled trade.
type openPosition struct {
	exitAt  time.Time
	capital float64
	net     float64 // realized profit returned at settlement
	trade   int     // ledger index
}

// Engine runs simulations. It carries no state between runs.
type Engine struct{}

// NewEngine creates an Engine.
func NewEngine() *Engine { return &Engine{} }

// Run replays the opportunities in chronological order under the config's
// capital and position constraints. An empty opportunity set is a
// configuration error: reporting zeros for a simulation that never happened
// would be misleading.
func (e *Engine) Run(opportunities []domain.ArbitrageOpportunity, cfg Config) (domain.BacktestResult, error) {
	if err := cfg.Validate(); err != nil {
		return domain.BacktestResult{}, err
	}
	if len(opportunities) == 0 {
		return domain.BacktestResult{}, fmt.Errorf("%w: no opportunities to simulate", domain.ErrConfiguration)
	}

	opps := make([]domain.ArbitrageOpportunity, len(opportunities))
	copy(opps, opportunities)
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].DetectedAt.Before(opps[j].DetectedAt)
	})

	slip := cfg.slippageParams()

	available := cfg.InitialCapital
	allocated := 0.0
	var open []openPosition
	var trades []domain.SimulatedTrade
	var path []domain.CapitalPoint
	var warnings []string
	lastTrade := make(map[string]time.Time)
	skipped := 0

	equity := func() float64 { return available + allocated }
	appendPath := func(ts time.Time) {
		path = append(path, domain.CapitalPoint{Timestamp: ts, Capital: equity()})
	}
	appendPath(opps[0].DetectedAt)

	settle := func(now time.Time, force bool) {
		kept := open[:0]
		for _, p := range open {
			if force || !p.exitAt.After(now) {
				allocated -= p.capital
				available += p.capital + p.net
				trades[p.trade].ExitAt = p.exitAt
				appendPath(p.exitAt)
			} else {
				kept = append(kept, p)
			}
		}
		open = kept
	}

	for _, opp := range opps {
		now := opp.DetectedAt
		settle(now, false)

		// Entry gates: threshold, resolution alignment, per-pair cooldown.
		if opp.Result.ProfitPercent < cfg.MinProfitPercent {
			skipped++
			continue
		}
		if cfg.RequireResolutionAlignment && opp.Pair.ResolutionScore < cfg.MinResolutionScore {
			skipped++
			continue
		}
		if last, ok := lastTrade[opp.PairID]; ok && cfg.Cooldown > 0 && now.Sub(last) < cfg.Cooldown {
			skipped++
			continue
		}

		perContract := opp.Result.TotalCost
		if perContract <= 0 || perContract >= 1 {
			skipped++
			warnings = append(warnings, fmt.Sprintf("opportunity %s: cost %.6f outside (0,1), skipped", opp.ID, perContract))
			continue
		}

		// Position sizing: the flat cap, the percent-of-available cap, and
		// the opportunity's own liquidity-derived cap all bind. Available
		// capital is the hard ceiling that keeps the ledger non-negative.
		budget := available
		if cfg.MaxPositionPercent > 0 {
			budget = math.Min(budget, available*cfg.MaxPositionPercent)
		}
		if cfg.MaxPositionSize > 0 {
			budget = math.Min(budget, cfg.MaxPositionSize)
		}
		size := math.Floor(budget / perContract)
		if opp.MaxSize > 0 {
			size = math.Min(size, opp.MaxSize)
		}
		if size < 1 {
			skipped++
			continue
		}

		cost := size * perContract
		gross := size * (1 - opp.Result.BaseCost)
		fees := size * opp.Result.Fees.Total
		slipCost := slip.Cost(size, perContract, opp.Result.ProfitPercent)
		if slipCost > gross {
			// The linear estimate is unbounded in size; a fill can never
			// cost more than the hedge pays out.
			slipCost = gross
		}
		net := gross - fees - slipCost
		expected := size * opp.Result.NetProfit

		exitAt := now
		if cfg.HoldingPeriod > 0 {
			exitAt = now.Add(cfg.HoldingPeriod)
		}

		trade := domain.SimulatedTrade{
			ID:             fmt.Sprintf("bt-%04d", len(trades)+1),
			OpportunityID:  opp.ID,
			PairID:         opp.PairID,
			EntryAt:        now,
			ExitAt:         exitAt,
			Size:           size,
			Cost:           cost,
			ExpectedProfit: expected,
			RealizedProfit: net,
			Fees:           fees,
			SlippageCost:   slipCost,
			Outcome:        classify(net),
		}
		trades = append(trades, trade)
		lastTrade[opp.PairID] = now

		available -= cost
		allocated += cost
		open = append(open, openPosition{exitAt: exitAt, capital: cost, net: net, trade: len(trades) - 1})

		if cfg.HoldingPeriod == 0 {
			settle(now, false)
		}
	}

	// Settle whatever is still open at the end of the horizon.
	settle(time.Time{}, true)

	final := available
	start := opps[0].DetectedAt
	end := opps[len(opps)-1].DetectedAt

	result := domain.BacktestResult{
		ID: uuid.NewString(),
		Summary: domain.BacktestSummary{
			InitialCapital: cfg.InitialCapital,
			FinalCapital:   final,
			ExecutedTrades: len(trades),
			SkippedTrades:  skipped,
			StartAt:        start,
			EndAt:          end,
			Metrics:        computeMetrics(trades, path, cfg.InitialCapital, end.Sub(start)),
		},
		Trades:      trades,
		CapitalPath: path,
		Reports: map[domain.ReportInterval][]domain.IntervalReport{
			domain.ReportDaily:  intervalReports(trades, path, domain.ReportDaily),
			domain.ReportWeekly: intervalReports(trades, path, domain.ReportWeekly),
		},
		Warnings: warnings,
		RanAt:    time.Now().UTC(),
	}
	return result, nil
}

// classify maps net realized profit to a trade outcome.
func classify(net float64) domain.TradeOutcome {
	const eps = 1e-9
	switch {
	case net > eps:
		return domain.OutcomeWin
	case net < -eps:
		return domain.OutcomeLoss
	default:
		return domain.OutcomeBreakEven
	}
}
