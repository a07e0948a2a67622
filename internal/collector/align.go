package collector

import (
	"sort"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// alignedBucket is one time bucket present in both venues' series.
type alignedBucket struct {
	timestamp time.Time
	firstYes  float64
	secondYes float64
}

// bucketize floors every raw sample onto the fidelity grid. When two raw
// samples land in the same bucket the later sample wins.
func bucketize(points []domain.PricePoint, bucketMs int64) map[int64]float64 {
	buckets := make(map[int64]float64, len(points))
	for _, p := range points {
		key := (p.Timestamp.UnixMilli() / bucketMs) * bucketMs
		buckets[key] = p.Price
	}
	return buckets
}

// align intersects the two series on the fidelity grid and returns the
// common buckets in ascending order. Buckets present in only one series are
// dropped outright: interpolating or forward-filling a missing price could
// manufacture an arbitrage signal that never existed.
func align(first, second []domain.PricePoint, fidelityMinutes int) []alignedBucket {
	bucketMs := int64(fidelityMinutes) * 60_000
	if bucketMs <= 0 {
		bucketMs = 60_000
	}

	fb := bucketize(first, bucketMs)
	sb := bucketize(second, bucketMs)

	keys := make([]int64, 0, len(fb))
	for k := range fb {
		if _, ok := sb[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]alignedBucket, 0, len(keys))
	for _, k := range keys {
		out = append(out, alignedBucket{
			timestamp: time.UnixMilli(k).UTC(),
			firstYes:  fb[k],
			secondYes: sb[k],
		})
	}
	return out
}

// verdict computes the arbitrage verdict for one aligned bucket directly
// from the two YES prices. The full fee-aware calculator is deliberately
// not used here: historical backfill has no fee structure to apply, and the
// raw cross-venue cost is the stable signal worth persisting.
func verdict(pairID string, b alignedBucket) domain.HistoricalSnapshot {
	firstNo := 1 - b.firstYes
	secondNo := 1 - b.secondYes

	costA := b.firstYes + secondNo // YES on first venue, NO on second
	costB := firstNo + b.secondYes // NO on first venue, YES on second

	cost := costA
	dir := domain.DirectionYesFirst
	if costB < costA {
		cost = costB
		dir = domain.DirectionNoFirst
	}

	snap := domain.HistoricalSnapshot{
		PairID:    pairID,
		Timestamp: b.timestamp,
		FirstYes:  b.firstYes,
		FirstNo:   firstNo,
		SecondYes: b.secondYes,
		SecondNo:  secondNo,
		Direction: dir,
		TotalCost: cost,
	}
	if cost > 0 {
		snap.ProfitPercent = (1 - cost) / cost * 100
	}
	snap.Exists = snap.ProfitPercent > 0
	return snap
}
