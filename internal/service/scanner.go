// Package service contains the live scan loop: it pulls quotes from the venue
// adapters, runs the arbitrage calculator over each configured market pair,
// and materializes, persists and publishes any opportunity that clears the
// profit threshold.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbscan/internal/arb"
	"github.com/alanyoungcy/arbscan/internal/domain"
	"github.com/alanyoungcy/arbscan/internal/notify"
)

// ScannerConfig holds the tunable parameters for one scan loop.
type ScannerConfig struct {
	// Interval between full scan cycles.
	Interval time.Duration
	// MinProfitPercent filters results before they are materialized.
	MinProfitPercent float64
	// AvailableCapital bounds the opportunity's MaxSize.
	AvailableCapital float64
	// TTLSeconds is the expected remaining lifetime attached to each
	// opportunity.
	TTLSeconds int
	// HoldingPeriod feeds the turnover projection.
	HoldingPeriod time.Duration
	// MaxConcurrentPairs bounds how many pairs are evaluated at once within
	// one cycle. Zero means sequential.
	MaxConcurrentPairs int
}

// Scanner evaluates configured market pairs against live quotes. Opportunity
// persistence is fire-and-forget: a failed insert is logged and the cycle
// continues.
type Scanner struct {
	calc      *arb.Calculator
	fees      domain.FeePolicy
	providers map[domain.Venue]domain.QuoteProvider
	quotes    domain.QuoteCache
	store     domain.OpportunityStore
	bus       domain.SignalBus
	notifier  *notify.Notifier
	cfg       ScannerConfig
	logger    *slog.Logger
}

// NewScanner creates a Scanner with all required dependencies. The quote
// cache and signal bus may be nil when running without Redis.
func NewScanner(
	calc *arb.Calculator,
	fees domain.FeePolicy,
	providers map[domain.Venue]domain.QuoteProvider,
	quotes domain.QuoteCache,
	store domain.OpportunityStore,
	bus domain.SignalBus,
	cfg ScannerConfig,
	logger *slog.Logger,
) *Scanner {
	return &Scanner{
		calc:      calc,
		fees:      fees,
		providers: providers,
		quotes:    quotes,
		store:     store,
		bus:       bus,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "scanner")),
	}
}

// WithNotifier attaches an operator alert channel. Alerts are best-effort and
// never abort a scan cycle.
func (s *Scanner) WithNotifier(n *notify.Notifier) *Scanner {
	s.notifier = n
	return s
}

// Run scans the given pairs on every tick until the context is cancelled.
func (s *Scanner) Run(ctx context.Context, pairs []domain.MarketPair) error {
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "scan loop started",
		slog.Int("pairs", len(pairs)),
		slog.Duration("interval", interval),
	)

	for {
		s.ScanCycle(ctx, pairs)

		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scan loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ScanCycle evaluates every pair once. Pair failures are logged and do not
// abort the cycle; the number of detected opportunities is returned.
func (s *Scanner) ScanCycle(ctx context.Context, pairs []domain.MarketPair) int {
	g, gctx := errgroup.WithContext(ctx)
	limit := s.cfg.MaxConcurrentPairs
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	found := make(chan struct{}, len(pairs))
	for _, pair := range pairs {
		g.Go(func() error {
			opp, err := s.ScanPair(gctx, pair)
			if err != nil {
				s.logger.WarnContext(gctx, "pair scan failed",
					slog.String("pair", pair.Label()),
					slog.String("error", err.Error()),
				)
				return nil
			}
			if opp != nil {
				found <- struct{}{}
			}
			return nil
		})
	}
	_ = g.Wait()
	close(found)

	count := 0
	for range found {
		count++
	}
	return count
}

// ScanPair fetches both venues' quotes for one pair, runs the calculator and,
// if the best direction clears the threshold, materializes and records the
// opportunity. Returns nil with no error when no edge exists.
func (s *Scanner) ScanPair(ctx context.Context, pair domain.MarketPair) (*domain.ArbitrageOpportunity, error) {
	first, err := s.quoteFor(ctx, pair.First)
	if err != nil {
		return nil, fmt.Errorf("scanner: quote %s: %w", pair.First.ID, err)
	}
	second, err := s.quoteFor(ctx, pair.Second)
	if err != nil {
		return nil, fmt.Errorf("scanner: quote %s: %w", pair.Second.ID, err)
	}

	results := s.calc.Calculate(domain.QuotePair{First: first, Second: second}, s.fees)
	best := results[0]

	if !best.Valid || best.ProfitPercent < s.cfg.MinProfitPercent {
		return nil, nil
	}

	opp := arb.Materialize(pair, best, arb.MaterializeOpts{
		AvailableCapital: s.cfg.AvailableCapital,
		TTLSeconds:       s.cfg.TTLSeconds,
		HoldingPeriod:    s.cfg.HoldingPeriod,
	})

	s.record(ctx, opp)
	return &opp, nil
}

// record persists and publishes one opportunity. Both sides are best-effort.
func (s *Scanner) record(ctx context.Context, opp domain.ArbitrageOpportunity) {
	if err := s.store.Insert(ctx, opp); err != nil {
		s.logger.ErrorContext(ctx, "opportunity insert failed",
			slog.String("opp_id", opp.ID),
			slog.String("error", err.Error()),
		)
	}

	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":          "opportunity_detected",
			"opp_id":         opp.ID,
			"pair_id":        opp.PairID,
			"direction":      opp.Result.Direction,
			"total_cost":     opp.Result.TotalCost,
			"profit_percent": opp.Result.ProfitPercent,
			"max_size":       opp.MaxSize,
			"confidence":     opp.Confidence,
			"detected_at":    opp.DetectedAt.Format(time.RFC3339),
		})
		if err := s.bus.Publish(ctx, "opportunities", evt); err != nil {
			s.logger.WarnContext(ctx, "opportunity publish failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, "opportunities", evt); err != nil {
			s.logger.WarnContext(ctx, "opportunity stream append failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.notifier != nil {
		title, msg := notify.OpportunityAlert(opp)
		if err := s.notifier.Notify(ctx, notify.EventOpportunity, title, msg); err != nil {
			s.logger.WarnContext(ctx, "opportunity alert failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "opportunity detected",
		slog.String("opp_id", opp.ID),
		slog.String("pair_id", opp.PairID),
		slog.String("direction", string(opp.Result.Direction)),
		slog.Float64("profit_percent", opp.Result.ProfitPercent),
		slog.Float64("max_size", opp.MaxSize),
	)
}

// quoteFor resolves one market's current quote: the venue adapter first, the
// cache as fallback when the adapter fails. Fresh quotes are written back to
// the cache best-effort.
func (s *Scanner) quoteFor(ctx context.Context, m domain.Market) (domain.Quote, error) {
	provider, ok := s.providers[m.Venue]
	if !ok {
		return domain.Quote{}, fmt.Errorf("scanner: no provider for venue %s: %w", m.Venue, domain.ErrConfiguration)
	}

	q, err := provider.GetQuote(ctx, m.ID)
	if err == nil {
		if s.quotes != nil {
			if cacheErr := s.quotes.SetQuote(ctx, q); cacheErr != nil {
				s.logger.DebugContext(ctx, "quote cache write failed",
					slog.String("market_id", m.ID),
					slog.String("error", cacheErr.Error()),
				)
			}
		}
		return q, nil
	}

	if s.quotes != nil {
		cached, cacheErr := s.quotes.GetQuote(ctx, m.Venue, m.ID)
		if cacheErr == nil {
			s.logger.DebugContext(ctx, "serving cached quote after fetch failure",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
			return cached, nil
		}
		if !errors.Is(cacheErr, domain.ErrNotFound) {
			s.logger.DebugContext(ctx, "quote cache read failed",
				slog.String("market_id", m.ID),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	return domain.Quote{}, err
}

// HandleQuote is the push-path entry point wired to the Polymarket WS feed.
// It caches the quote and re-evaluates every configured pair that includes
// the quoted market.
func (s *Scanner) HandleQuote(ctx context.Context, q domain.Quote, pairs []domain.MarketPair) {
	if s.quotes != nil {
		if err := s.quotes.SetQuote(ctx, q); err != nil {
			s.logger.DebugContext(ctx, "quote cache write failed",
				slog.String("market_id", q.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}

	for _, pair := range pairs {
		if pair.First.ID != q.MarketID && pair.Second.ID != q.MarketID {
			continue
		}
		if _, err := s.ScanPair(ctx, pair); err != nil {
			s.logger.WarnContext(ctx, "pair scan failed",
				slog.String("pair", pair.Label()),
				slog.String("error", err.Error()),
			)
		}
	}
}
