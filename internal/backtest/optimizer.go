package backtest

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// Grid enumerates the parameter combinations the optimizer explores. A nil
// or empty axis means "keep the base config's value for that axis".
type Grid struct {
	MinProfitPercents   []float64
	MaxPositionPercents []float64
	Cooldowns           []time.Duration
	Slippages           []SlippageModel
}

// GridCell is one simulated combination with its result.
type GridCell struct {
	Config Config
	Result domain.BacktestResult
}

// expand materializes the cartesian product of the grid over a base config.
func (g Grid) expand(base Config) []Config {
	profits := g.MinProfitPercents
	if len(profits) == 0 {
		profits = []float64{base.MinProfitPercent}
	}
	percents := g.MaxPositionPercents
	if len(percents) == 0 {
		percents = []float64{base.MaxPositionPercent}
	}
	cooldowns := g.Cooldowns
	if len(cooldowns) == 0 {
		cooldowns = []time.Duration{base.Cooldown}
	}
	slippages := g.Slippages
	if len(slippages) == 0 {
		slippages = []SlippageModel{base.Slippage}
	}

	var out []Config
	for _, p := range profits {
		for _, pc := range percents {
			for _, cd := range cooldowns {
				for _, s := range slippages {
					c := base
					c.MinProfitPercent = p
					c.MaxPositionPercent = pc
					c.Cooldown = cd
					c.Slippage = s
					out = append(out, c)
				}
			}
		}
	}
	return out
}

// Optimize runs the full grid against the same opportunity set, one engine
// run per cell, bounded by GOMAXPROCS workers. Cells are returned sorted by
// Sharpe ratio descending, final capital breaking ties. An individual cell's
// configuration error aborts the whole search: a grid that cannot run
// everywhere is a caller mistake, not a result.
func (e *Engine) Optimize(ctx context.Context, opportunities []domain.ArbitrageOpportunity, base Config, grid Grid) ([]GridCell, error) {
	configs := grid.expand(base)
	if len(configs) == 0 {
		return nil, fmt.Errorf("%w: empty parameter grid", domain.ErrConfiguration)
	}

	cells := make([]GridCell, len(configs))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, cfg := range configs {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := e.Run(opportunities, cfg)
			if err != nil {
				return fmt.Errorf("grid cell %d: %w", i, err)
			}
			cells[i] = GridCell{Config: cfg, Result: res}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(cells, func(i, j int) bool {
		mi, mj := cells[i].Result.Summary.Metrics, cells[j].Result.Summary.Metrics
		if mi.SharpeRatio != mj.SharpeRatio {
			return mi.SharpeRatio > mj.SharpeRatio
		}
		return cells[i].Result.Summary.FinalCapital > cells[j].Result.Summary.FinalCapital
	})
	return cells, nil
}
