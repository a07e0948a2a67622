package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbscan/internal/arb"
	"github.com/alanyoungcy/arbscan/internal/backtest"
	s3blob "github.com/alanyoungcy/arbscan/internal/blob/s3"
	"github.com/alanyoungcy/arbscan/internal/collector"
	"github.com/alanyoungcy/arbscan/internal/config"
	"github.com/alanyoungcy/arbscan/internal/domain"
	"github.com/alanyoungcy/arbscan/internal/notify"
	"github.com/alanyoungcy/arbscan/internal/platform/polymarket"
	"github.com/alanyoungcy/arbscan/internal/queue"
	"github.com/alanyoungcy/arbscan/internal/server"
	"github.com/alanyoungcy/arbscan/internal/server/handler"
	"github.com/alanyoungcy/arbscan/internal/server/ws"
	"github.com/alanyoungcy/arbscan/internal/service"
)

// collectLockKey guards collection runs: two processes hitting the same
// venues at once would double the request rate and duplicate snapshots.
const collectLockKey = "collector"

// ScanMode runs the live scan loop over the configured market pairs,
// optionally fed by the Polymarket websocket in addition to REST polling.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	pairs := a.marketPairs()
	if len(pairs) == 0 {
		return fmt.Errorf("scan mode: no market pairs configured")
	}

	providers := map[domain.Venue]domain.QuoteProvider{
		domain.VenuePolymarket: deps.Polymarket,
		domain.VenueKalshi:     deps.Kalshi,
	}
	scanner := service.NewScanner(
		arb.NewCalculator(nil),
		a.feePolicy(),
		providers,
		deps.Quotes,
		deps.Opportunities,
		deps.Bus,
		service.ScannerConfig{
			Interval:           a.cfg.Scanner.Interval.Duration,
			MinProfitPercent:   a.cfg.Scanner.MinProfitPercent,
			AvailableCapital:   a.cfg.Scanner.AvailableCapital,
			TTLSeconds:         a.cfg.Scanner.TTLSeconds,
			HoldingPeriod:      a.cfg.Scanner.HoldingPeriod.Duration,
			MaxConcurrentPairs: a.cfg.Scanner.MaxConcurrentPairs,
		},
		a.logger,
	).WithNotifier(deps.Notifier)

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, pairs)
	}

	// Cold-storage sweep: once a day, move opportunities older than the
	// retention window from Postgres to S3.
	if deps.Archiver != nil {
		g.Go(func() error {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
					n, err := deps.Archiver.ArchiveOpportunities(ctx, cutoff)
					if err != nil {
						a.logger.WarnContext(ctx, "scan mode: opportunity archive failed",
							slog.String("error", err.Error()),
						)
					} else if n > 0 {
						a.logger.InfoContext(ctx, "scan mode: opportunities archived",
							slog.Int64("count", n),
						)
					}
				}
			}
		})
	}

	// Websocket push path: subscribe each pair's Polymarket book and
	// re-evaluate the pair on every update. REST polling continues
	// underneath as the slow path.
	if a.cfg.Polymarket.UseWS {
		stream := polymarket.NewWSClient(a.cfg.Polymarket.WsHost)
		if err := stream.Connect(ctx); err != nil {
			a.logger.WarnContext(ctx, "scan mode: websocket connect failed, polling only",
				slog.String("error", err.Error()),
			)
		} else {
			watched := 0
			for _, pair := range pairs {
				tp, err := deps.Gamma.GetTokenPair(ctx, pair.First.ID)
				if err != nil {
					a.logger.WarnContext(ctx, "scan mode: token pair lookup failed",
						slog.String("market_id", pair.First.ID),
						slog.String("error", err.Error()),
					)
					continue
				}
				if err := stream.Watch(ctx, pair.First.ID, tp.Yes); err != nil {
					a.logger.WarnContext(ctx, "scan mode: watch failed",
						slog.String("market_id", pair.First.ID),
						slog.String("error", err.Error()),
					)
					continue
				}
				watched++
			}
			stream.OnQuote(func(q domain.Quote) {
				scanner.HandleQuote(ctx, q, pairs)
			})
			a.logger.InfoContext(ctx, "scan mode: websocket feed active",
				slog.Int("watched", watched),
			)
			g.Go(func() error {
				<-ctx.Done()
				return stream.Close()
			})
		}
	}

	g.Go(func() error {
		return scanner.Run(ctx, pairs)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// CollectMode runs one historical collection job over the configured pairs
// and persists the resulting snapshots. When Redis is wired the job takes a
// distributed lock so overlapping deployments never collect concurrently,
// and progress is exposed through the job cache and signal bus.
func (a *App) CollectMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting collect mode")

	pairs := a.marketPairs()
	if len(pairs) == 0 {
		return fmt.Errorf("collect mode: no market pairs configured")
	}

	jobTTL := a.cfg.Collector.JobTTL.Duration
	if jobTTL <= 0 {
		jobTTL = 24 * time.Hour
	}

	if deps.Locks != nil {
		unlock, err := deps.Locks.Acquire(ctx, collectLockKey, jobTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return fmt.Errorf("collect mode: another collection run is in progress: %w", err)
			}
			return fmt.Errorf("collect mode: acquire lock: %w", err)
		}
		defer unlock()
	}

	col := collector.New(
		collector.Config{
			FidelityMinutes:    a.cfg.Collector.FidelityMinutes,
			MinProfitThreshold: a.cfg.Collector.MinProfitThreshold,
		},
		[]domain.HistoryProvider{deps.Polymarket, deps.Kalshi},
		map[domain.Venue]queue.Config{
			domain.VenuePolymarket: a.queueConfig(domain.VenuePolymarket, a.cfg.Collector.Polymarket),
			domain.VenueKalshi:     a.queueConfig(domain.VenueKalshi, a.cfg.Collector.Kalshi),
		},
		a.logger,
	)
	defer col.Close()

	end := time.Now().UTC()
	dr := collector.DateRange{
		Start: end.AddDate(0, 0, -a.cfg.Collector.LookbackDays),
		End:   end,
	}

	onUpdate := func(job domain.CollectionJob) {
		if deps.Jobs != nil {
			if err := deps.Jobs.SetJob(ctx, job, jobTTL); err != nil {
				a.logger.DebugContext(ctx, "collect mode: job cache write failed",
					slog.String("job_id", job.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		if deps.Bus != nil {
			evt, _ := json.Marshal(map[string]any{
				"event":           "collection_progress",
				"job_id":          job.ID,
				"status":          job.Status,
				"pairs_total":     job.Progress.PairsTotal,
				"pairs_completed": job.Progress.PairsCompleted,
				"pairs_failed":    job.Progress.PairsFailed,
				"current_pair":    job.Progress.CurrentPair,
			})
			if err := deps.Bus.Publish(ctx, "collection", evt); err != nil {
				a.logger.DebugContext(ctx, "collect mode: progress publish failed",
					slog.String("job_id", job.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	res, job := col.RunJob(ctx, pairs, dr, onUpdate)

	if len(res.Snapshots) > 0 {
		if err := deps.Snapshots.InsertBatch(ctx, res.Snapshots); err != nil {
			return fmt.Errorf("collect mode: persist snapshots: %w", err)
		}
	}

	for v, stats := range col.QueueStats() {
		a.logger.InfoContext(ctx, "collect mode: queue stats",
			slog.String("venue", string(v)),
			slog.Int64("completed", stats.Completed),
			slog.Int64("failed", stats.Failed),
			slog.Int64("rate_limit_hits", stats.RateLimitHits),
		)
	}
	a.logger.InfoContext(ctx, "collection finished",
		slog.String("job_id", job.ID),
		slog.String("status", string(job.Status)),
		slog.Int("snapshots", len(res.Snapshots)),
		slog.Int("pairs_failed", job.Progress.PairsFailed),
	)

	if deps.Notifier != nil {
		title, msg := notify.CollectionAlert(job, len(res.Snapshots))
		if err := deps.Notifier.Notify(ctx, notify.EventCollection, title, msg); err != nil {
			a.logger.WarnContext(ctx, "collect mode: alert failed",
				slog.String("error", err.Error()),
			)
		}
	}

	if job.Status == domain.JobStatusFailed {
		return fmt.Errorf("collect mode: every pair failed (%d errors)", len(job.Errors))
	}
	return nil
}

// BacktestMode replays the stored snapshot history through the simulation
// engine, persists the result summary, and archives the full run when blob
// storage is wired.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting backtest mode")

	opps, err := a.loadOpportunities(ctx, deps)
	if err != nil {
		return fmt.Errorf("backtest mode: %w", err)
	}

	engine := backtest.NewEngine()
	result, err := engine.Run(opps, a.backtestConfig())
	if err != nil {
		return fmt.Errorf("backtest mode: %w", err)
	}

	if err := deps.Backtests.Insert(ctx, result); err != nil {
		return fmt.Errorf("backtest mode: persist result: %w", err)
	}
	if deps.Archiver != nil {
		if err := deps.Archiver.ArchiveBacktest(ctx, result); err != nil {
			a.logger.WarnContext(ctx, "backtest mode: archive failed",
				slog.String("run_id", result.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if deps.Notifier != nil {
		title, msg := notify.BacktestAlert(result)
		if err := deps.Notifier.Notify(ctx, notify.EventBacktest, title, msg); err != nil {
			a.logger.WarnContext(ctx, "backtest mode: alert failed",
				slog.String("error", err.Error()),
			)
		}
	}

	s := result.Summary
	a.logger.InfoContext(ctx, "backtest finished",
		slog.String("run_id", result.ID),
		slog.Int("executed", s.ExecutedTrades),
		slog.Int("skipped", s.SkippedTrades),
		slog.Float64("final_capital", s.FinalCapital),
		slog.Float64("return_percent", s.Metrics.ReturnPercent),
		slog.Float64("sharpe", s.Metrics.SharpeRatio),
		slog.Float64("max_drawdown_pct", s.Metrics.MaxDrawdownPct),
	)
	return nil
}

// OptimizeMode runs the parameter grid search over the stored snapshot
// history and persists the best cell's full result.
func (a *App) OptimizeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting optimize mode")

	opps, err := a.loadOpportunities(ctx, deps)
	if err != nil {
		return fmt.Errorf("optimize mode: %w", err)
	}

	engine := backtest.NewEngine()
	cells, err := engine.Optimize(ctx, opps, a.backtestConfig(), a.backtestGrid())
	if err != nil {
		return fmt.Errorf("optimize mode: %w", err)
	}

	top := cells
	if len(top) > 5 {
		top = top[:5]
	}
	for i, cell := range top {
		a.logger.InfoContext(ctx, "optimize: grid cell",
			slog.Int("rank", i+1),
			slog.Float64("min_profit_percent", cell.Config.MinProfitPercent),
			slog.Float64("max_position_percent", cell.Config.MaxPositionPercent),
			slog.Duration("cooldown", cell.Config.Cooldown),
			slog.String("slippage", string(cell.Config.Slippage)),
			slog.Float64("sharpe", cell.Result.Summary.Metrics.SharpeRatio),
			slog.Float64("final_capital", cell.Result.Summary.FinalCapital),
		)
	}

	best := cells[0]
	if err := deps.Backtests.Insert(ctx, best.Result); err != nil {
		return fmt.Errorf("optimize mode: persist best result: %w", err)
	}
	a.logger.InfoContext(ctx, "optimization finished",
		slog.Int("cells", len(cells)),
		slog.String("best_run_id", best.Result.ID),
	)
	return nil
}

// startHTTPServer adds the monitoring API server and WebSocket hub to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, pairs []domain.MarketPair) {
	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(a.logger),
		Status:        handler.NewStatusHandler(a.cfg.Mode, len(pairs)),
		Opportunities: handler.NewOpportunityHandler(deps.Opportunities, a.logger),
		Backtests:     handler.NewBacktestHandler(deps.Backtests, a.logger),
		Pairs:         handler.NewPairHandler(pairs, deps.Snapshots, a.logger),
		Positions:     handler.NewPositionHandler(deps.Positions, a.logger),
	}
	if deps.Jobs != nil {
		handlers.Jobs = handler.NewJobHandler(deps.Jobs, a.logger)
	}

	var hub *ws.Hub
	if deps.Bus != nil {
		hub = ws.NewHub(deps.Bus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:               a.cfg.Server.Port,
		CORSOrigins:        a.cfg.Server.CORSOrigins,
		APIKey:             a.cfg.Server.APIKey,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
	}, handlers, hub, deps.Limiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// marketPairs builds the domain pairs from configuration. The Polymarket
// market is always the first leg.
func (a *App) marketPairs() []domain.MarketPair {
	pairs := make([]domain.MarketPair, 0, len(a.cfg.Pairs))
	for _, p := range a.cfg.Pairs {
		pairs = append(pairs, domain.MarketPair{
			ID:              p.ID,
			First:           domain.Market{ID: p.PolymarketID, Venue: domain.VenuePolymarket},
			Second:          domain.Market{ID: p.KalshiTicker, Venue: domain.VenueKalshi},
			Correlation:     p.Correlation,
			ResolutionScore: p.ResolutionScore,
		})
	}
	return pairs
}

// feePolicy maps the fee configuration to the calculator's policy.
func (a *App) feePolicy() domain.FeePolicy {
	return domain.FeePolicy{
		First: domain.FeeStructure{
			Venue:         domain.VenuePolymarket,
			FixedPerUnit:  a.cfg.Fees.Polymarket.FixedPerUnit,
			PercentOfCost: a.cfg.Fees.Polymarket.PercentOfCost,
			PercentProfit: a.cfg.Fees.Polymarket.PercentProfit,
			MinimumFee:    a.cfg.Fees.Polymarket.MinimumFee,
		},
		Second: domain.FeeStructure{
			Venue:         domain.VenueKalshi,
			FixedPerUnit:  a.cfg.Fees.Kalshi.FixedPerUnit,
			PercentOfCost: a.cfg.Fees.Kalshi.PercentOfCost,
			PercentProfit: a.cfg.Fees.Kalshi.PercentProfit,
			MinimumFee:    a.cfg.Fees.Kalshi.MinimumFee,
		},
		SafetyMarginPercent: a.cfg.Fees.SafetyMarginPercent,
	}
}

func (a *App) queueConfig(venue domain.Venue, qc config.QueueConfig) queue.Config {
	return queue.Config{
		Venue:                venue,
		MaxRequestsPerMinute: qc.MaxRequestsPerMinute,
		MaxConcurrent:        qc.MaxConcurrent,
		MaxRetries:           qc.MaxRetries,
		BackoffMultiplier:    qc.BackoffMultiplier,
		RetryOnRateLimit:     qc.RetryOnRateLimit,
	}
}

func (a *App) backtestConfig() backtest.Config {
	return backtest.Config{
		InitialCapital:             a.cfg.Backtest.InitialCapital,
		MinProfitPercent:           a.cfg.Backtest.MinProfitPercent,
		MaxPositionSize:            a.cfg.Backtest.MaxPositionSize,
		MaxPositionPercent:         a.cfg.Backtest.MaxPositionPercent,
		Cooldown:                   a.cfg.Backtest.Cooldown.Duration,
		HoldingPeriod:              a.cfg.Backtest.HoldingPeriod.Duration,
		RequireResolutionAlignment: a.cfg.Backtest.RequireResolutionAlignment,
		MinResolutionScore:         a.cfg.Backtest.MinResolutionScore,
		Slippage:                   backtest.SlippageModel(a.cfg.Backtest.Slippage),
	}
}

func (a *App) backtestGrid() backtest.Grid {
	grid := backtest.Grid{
		MinProfitPercents:   a.cfg.Backtest.GridMinProfitPercents,
		MaxPositionPercents: a.cfg.Backtest.GridMaxPositionPercents,
	}
	for _, raw := range a.cfg.Backtest.GridCooldowns {
		// Validated at startup; a bad entry is skipped here.
		if d, err := time.ParseDuration(raw); err == nil {
			grid.Cooldowns = append(grid.Cooldowns, d)
		}
	}
	for _, s := range a.cfg.Backtest.GridSlippages {
		grid.Slippages = append(grid.Slippages, backtest.SlippageModel(s))
	}
	return grid
}

// loadOpportunities rebuilds replayable opportunities from the stored
// snapshot history of every configured pair.
func (a *App) loadOpportunities(ctx context.Context, deps *Dependencies) ([]domain.ArbitrageOpportunity, error) {
	pairs := a.marketPairs()
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no market pairs configured")
	}

	var opps []domain.ArbitrageOpportunity
	for _, pair := range pairs {
		snaps, err := deps.Snapshots.ListByPair(ctx, pair.ID, domain.ListOpts{})
		if err != nil {
			return nil, fmt.Errorf("load snapshots for %s: %w", pair.ID, err)
		}
		for _, snap := range snaps {
			opps = append(opps, snapshotOpportunity(pair, snap))
		}
	}

	// Opportunities the retention sweep has already moved to cold storage
	// can be folded back in so long backtests see the full history.
	if a.cfg.Backtest.IncludeArchived {
		if deps.BlobReader == nil {
			return nil, fmt.Errorf("include_archived set but blob storage is not wired")
		}
		restored, err := s3blob.NewRestorer(deps.BlobReader).RestoreOpportunities(ctx)
		if err != nil {
			return nil, fmt.Errorf("load archived opportunities: %w", err)
		}
		opps = append(opps, restored...)
		a.logger.InfoContext(ctx, "restored archived opportunities",
			slog.Int("restored", len(restored)),
		)
	}

	a.logger.InfoContext(ctx, "loaded snapshot history",
		slog.Int("pairs", len(pairs)),
		slog.Int("opportunities", len(opps)),
	)
	return opps, nil
}

// snapshotOpportunity converts one stored snapshot back into the opportunity
// shape the simulation engine replays. Snapshots carry no book depth, so
// MaxSize is left unbounded and only the engine's capital caps apply.
func snapshotOpportunity(pair domain.MarketPair, snap domain.HistoricalSnapshot) domain.ArbitrageOpportunity {
	var first, second domain.Leg
	switch snap.Direction {
	case domain.DirectionNoFirst:
		first = domain.Leg{Venue: pair.First.Venue, Side: domain.SideNo, Price: snap.FirstNo}
		second = domain.Leg{Venue: pair.Second.Venue, Side: domain.SideYes, Price: snap.SecondYes}
	default:
		first = domain.Leg{Venue: pair.First.Venue, Side: domain.SideYes, Price: snap.FirstYes}
		second = domain.Leg{Venue: pair.Second.Venue, Side: domain.SideNo, Price: snap.SecondNo}
	}

	return domain.ArbitrageOpportunity{
		ID:     fmt.Sprintf("%s-%d", pair.ID, snap.Timestamp.Unix()),
		PairID: pair.ID,
		Pair:   pair,
		Result: domain.ArbitrageResult{
			Direction:     snap.Direction,
			FirstLeg:      first,
			SecondLeg:     second,
			BaseCost:      first.Price + second.Price,
			TotalCost:     snap.TotalCost,
			BreakEven:     1,
			ProfitPercent: snap.ProfitPercent,
			NetProfit:     1 - snap.TotalCost,
			Valid:         snap.Exists,
		},
		DetectedAt: snap.Timestamp,
	}
}
