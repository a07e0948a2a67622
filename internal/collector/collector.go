// Package collector fetches historical price series from the venue APIs
// through per-venue rate-limited queues, time-aligns the two streams of
// each market pair, and derives arbitrage snapshots per aligned bucket.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
	"github.com/alanyoungcy/arbscan/internal/queue"
)

// Config holds collection parameters.
type Config struct {
	// FidelityMinutes is the bucket width used to discretize and align the
	// two venues' samples.
	FidelityMinutes int
	// MinProfitThreshold drops non-event buckets (percent). With mid
	// prices the cheaper hedge direction is never more expensive than 1.0,
	// so nearly every bucket shows a vanishing paper edge; only buckets
	// clearing this threshold are worth persisting over weeks of history.
	MinProfitThreshold float64
}

// DateRange bounds one collection run.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ProgressFunc is invoked once per pair boundary.
type ProgressFunc func(completed, total int, currentPair string)

// UpdateFunc is the single mutation path for a job's progress record. The
// collector passes a copy; callers must not retain and mutate it.
type UpdateFunc func(job domain.CollectionJob)

// Result is the outcome of one collection run.
type Result struct {
	Snapshots []domain.HistoricalSnapshot
	Errors    []domain.CollectionError
}

// Collector orchestrates one rate-limited queue per venue. Pairs are walked
// sequentially; parallelism comes only from the per-venue queues underneath,
// which fetch a pair's two legs concurrently.
type Collector struct {
	cfg       Config
	providers map[domain.Venue]domain.HistoryProvider
	queues    map[domain.Venue]*queue.Queue
	logger    *slog.Logger

	now func() time.Time
}

// New creates a collector with one queue per provider.
func New(cfg Config, providers []domain.HistoryProvider, queueCfg map[domain.Venue]queue.Config, logger *slog.Logger) *Collector {
	if cfg.FidelityMinutes <= 0 {
		cfg.FidelityMinutes = 60
	}
	c := &Collector{
		cfg:       cfg,
		providers: make(map[domain.Venue]domain.HistoryProvider, len(providers)),
		queues:    make(map[domain.Venue]*queue.Queue, len(providers)),
		logger:    logger.With(slog.String("component", "collector")),
		now:       time.Now,
	}
	for _, p := range providers {
		c.providers[p.Venue()] = p
		qc, ok := queueCfg[p.Venue()]
		if !ok {
			qc = queue.Config{Venue: p.Venue(), MaxRequestsPerMinute: 60, MaxConcurrent: 2, MaxRetries: 3, BackoffMultiplier: 2, RetryOnRateLimit: true}
		}
		c.queues[p.Venue()] = queue.New(qc)
	}
	return c
}

// Close shuts down the per-venue queues.
func (c *Collector) Close() {
	for _, q := range c.queues {
		q.Close()
	}
}

// QueueStats reports the live counters of each venue queue.
func (c *Collector) QueueStats() map[domain.Venue]queue.Stats {
	out := make(map[domain.Venue]queue.Stats, len(c.queues))
	for v, q := range c.queues {
		out[v] = q.Stats()
	}
	return out
}

// CollectSnapshots walks the pairs sequentially, fetching both venues'
// series for each pair through the rate-limited queues, aligning them, and
// deriving snapshots. A pair whose fetch fails is recorded as a
// CollectionError and never aborts the remaining pairs.
func (c *Collector) CollectSnapshots(ctx context.Context, pairs []domain.MarketPair, dr DateRange, onProgress ProgressFunc) Result {
	return c.collect(ctx, pairs, dr, func(completed, total int, pair domain.MarketPair, err error) {
		if onProgress != nil {
			onProgress(completed, total, pair.Label())
		}
	})
}

// collect is the shared pair loop. afterPair fires once per pair boundary
// with that pair's terminal error, if any.
func (c *Collector) collect(ctx context.Context, pairs []domain.MarketPair, dr DateRange, afterPair func(completed, total int, pair domain.MarketPair, err error)) Result {
	var res Result
	total := len(pairs)

	for i, pair := range pairs {
		snaps, err := c.collectPair(ctx, pair, dr)
		if err != nil {
			c.logger.Warn("pair collection failed",
				slog.String("pair", pair.Label()),
				slog.String("error", err.Error()),
			)
			res.Errors = append(res.Errors, domain.CollectionError{
				PairID:    pair.ID,
				PairLabel: pair.Label(),
				Message:   err.Error(),
				At:        c.now().UTC(),
			})
		} else {
			res.Snapshots = append(res.Snapshots, snaps...)
		}

		if afterPair != nil {
			afterPair(i+1, total, pair, err)
		}
	}
	return res
}

// collectPair fetches and aligns one pair. The two legs are enqueued
// together so the venue queues can overlap their requests.
func (c *Collector) collectPair(ctx context.Context, pair domain.MarketPair, dr DateRange) ([]domain.HistoricalSnapshot, error) {
	firstFut, err := c.fetch(ctx, pair.First, dr)
	if err != nil {
		return nil, err
	}
	secondFut, err := c.fetch(ctx, pair.Second, dr)
	if err != nil {
		return nil, err
	}

	first, err := waitPoints(ctx, firstFut, pair.First)
	if err != nil {
		return nil, err
	}
	second, err := waitPoints(ctx, secondFut, pair.Second)
	if err != nil {
		return nil, err
	}

	buckets := align(first, second, c.cfg.FidelityMinutes)

	snaps := make([]domain.HistoricalSnapshot, 0, len(buckets))
	for _, b := range buckets {
		snap := verdict(pair.ID, b)
		// Retention requires both conditions. A bucket whose arbitrage does
		// not exist carries no replayable signal, and one that exists below
		// the profit floor is noise; keeping either would swamp the dataset
		// with non-events.
		if snap.Exists && snap.ProfitPercent >= c.cfg.MinProfitThreshold {
			snaps = append(snaps, snap)
		}
	}
	return snaps, nil
}

func (c *Collector) fetch(ctx context.Context, m domain.Market, dr DateRange) (*queue.Future, error) {
	provider, ok := c.providers[m.Venue]
	if !ok {
		return nil, fmt.Errorf("collector: no history provider for venue %s", m.Venue)
	}
	q := c.queues[m.Venue]
	return q.Add(ctx, 0, func(tctx context.Context) (any, error) {
		return provider.GetHistoricalPrices(tctx, m.ID, dr.Start, dr.End, c.cfg.FidelityMinutes)
	})
}

func waitPoints(ctx context.Context, f *queue.Future, m domain.Market) ([]domain.PricePoint, error) {
	raw, err := f.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", m.Venue, m.ID, err)
	}
	return raw.([]domain.PricePoint), nil
}
