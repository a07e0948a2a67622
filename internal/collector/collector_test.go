package collector

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscan/internal/domain"
	"github.com/alanyoungcy/arbscan/internal/queue"
)

type fakeProvider struct {
	venue  domain.Venue
	series map[string][]domain.PricePoint
	errs   map[string]error
	calls  int
}

func (f *fakeProvider) Venue() domain.Venue { return f.venue }

func (f *fakeProvider) GetHistoricalPrices(_ context.Context, marketID string, _, _ time.Time, _ int) ([]domain.PricePoint, error) {
	f.calls++
	if err, ok := f.errs[marketID]; ok {
		return nil, err
	}
	return f.series[marketID], nil
}

func minuteBuckets(minutes ...int) []domain.PricePoint {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.PricePoint, 0, len(minutes))
	for _, m := range minutes {
		out = append(out, domain.PricePoint{Timestamp: base.Add(time.Duration(m) * time.Minute), Price: 0.40})
	}
	return out
}

func testPair(id, firstID, secondID string) domain.MarketPair {
	return domain.MarketPair{
		ID:     id,
		First:  domain.Market{ID: firstID, Venue: domain.VenuePolymarket},
		Second: domain.Market{ID: secondID, Venue: domain.VenueKalshi},
	}
}

func newTestCollector(t *testing.T, cfg Config, first, second *fakeProvider) *Collector {
	t.Helper()
	c := New(cfg,
		[]domain.HistoryProvider{first, second},
		map[domain.Venue]queue.Config{
			domain.VenuePolymarket: {Venue: domain.VenuePolymarket, MaxRequestsPerMinute: 1000, MaxConcurrent: 2},
			domain.VenueKalshi:     {Venue: domain.VenueKalshi, MaxRequestsPerMinute: 1000, MaxConcurrent: 2},
		},
		slog.New(slog.DiscardHandler),
	)
	t.Cleanup(c.Close)
	return c
}

func TestAlign_IntersectionOnly(t *testing.T) {
	// Buckets {0,60,120} vs {60,120,180} at 60-minute fidelity align to
	// exactly {60,120}, ascending.
	first := minuteBuckets(0, 60, 120)
	second := minuteBuckets(60, 120, 180)

	aligned := align(first, second, 60)
	require.Len(t, aligned, 2)
	assert.Equal(t, time.Date(2025, 3, 1, 1, 0, 0, 0, time.UTC), aligned[0].timestamp)
	assert.Equal(t, time.Date(2025, 3, 1, 2, 0, 0, 0, time.UTC), aligned[1].timestamp)
	assert.True(t, aligned[0].timestamp.Before(aligned[1].timestamp))
}

func TestAlign_LastWriteWinsWithinBucket(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	first := []domain.PricePoint{
		{Timestamp: base.Add(5 * time.Minute), Price: 0.40},
		{Timestamp: base.Add(45 * time.Minute), Price: 0.44},
	}
	second := []domain.PricePoint{{Timestamp: base, Price: 0.50}}

	aligned := align(first, second, 60)
	require.Len(t, aligned, 1)
	assert.Equal(t, 0.44, aligned[0].firstYes)
}

func TestVerdict_PicksCheaperDirection(t *testing.T) {
	b := alignedBucket{
		timestamp: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		firstYes:  0.45, // YES first + NO second = 0.45 + 0.48 = 0.93
		secondYes: 0.52, // NO first + YES second = 0.55 + 0.52 = 1.07
	}

	snap := verdict("pair-1", b)
	assert.Equal(t, domain.DirectionYesFirst, snap.Direction)
	assert.InDelta(t, 0.93, snap.TotalCost, 1e-9)
	assert.InDelta(t, 7.5268817, snap.ProfitPercent, 1e-6)
	assert.True(t, snap.Exists)

	b.secondYes = 0.40 // NO first + YES second = 0.55 + 0.40 = 0.95 < 1.02
	snap = verdict("pair-1", b)
	assert.Equal(t, domain.DirectionNoFirst, snap.Direction)
	assert.InDelta(t, 0.95, snap.TotalCost, 1e-9)
}

func TestCollectSnapshots_FiltersNonEvents(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	pm := &fakeProvider{venue: domain.VenuePolymarket, series: map[string][]domain.PricePoint{
		"pm-1": {
			{Timestamp: base, Price: 0.45},                // 7.5% edge: 0.45+0.48
			{Timestamp: base.Add(time.Hour), Price: 0.60}, // 2.0% paper edge: 0.40+0.58
		},
	}}
	kx := &fakeProvider{venue: domain.VenueKalshi, series: map[string][]domain.PricePoint{
		"kx-1": {
			{Timestamp: base, Price: 0.52},
			{Timestamp: base.Add(time.Hour), Price: 0.58},
		},
	}}

	c := newTestCollector(t, Config{FidelityMinutes: 60, MinProfitThreshold: 5}, pm, kx)

	res := c.CollectSnapshots(context.Background(), []domain.MarketPair{testPair("p1", "pm-1", "kx-1")}, DateRange{}, nil)
	require.Empty(t, res.Errors)
	require.Len(t, res.Snapshots, 1)
	assert.True(t, res.Snapshots[0].Exists)
	assert.Equal(t, "p1", res.Snapshots[0].PairID)
}

func TestCollectSnapshots_PairFailureDoesNotAbortOthers(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	series := []domain.PricePoint{{Timestamp: base, Price: 0.45}}

	pm := &fakeProvider{
		venue:  domain.VenuePolymarket,
		series: map[string][]domain.PricePoint{"pm-1": series, "pm-3": series},
		errs:   map[string]error{"pm-2": errors.New("market purged")},
	}
	kx := &fakeProvider{venue: domain.VenueKalshi, series: map[string][]domain.PricePoint{
		"kx-1": {{Timestamp: base, Price: 0.52}},
		"kx-2": {{Timestamp: base, Price: 0.52}},
		"kx-3": {{Timestamp: base, Price: 0.52}},
	}}

	c := newTestCollector(t, Config{FidelityMinutes: 60}, pm, kx)

	var progress []string
	pairs := []domain.MarketPair{
		testPair("p1", "pm-1", "kx-1"),
		testPair("p2", "pm-2", "kx-2"),
		testPair("p3", "pm-3", "kx-3"),
	}
	res := c.CollectSnapshots(context.Background(), pairs, DateRange{}, func(done, total int, label string) {
		progress = append(progress, label)
	})

	require.Len(t, res.Errors, 1)
	assert.Equal(t, "p2", res.Errors[0].PairID)
	assert.Len(t, res.Snapshots, 2)
	assert.Len(t, progress, 3)
}

func TestRunJob_PartialFailureCompletes(t *testing.T) {
	// Scenario: 3 pairs, pair 2 throws. The job still completes with one
	// recorded error and all three pairs counted.
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	series := []domain.PricePoint{{Timestamp: base, Price: 0.45}}

	pm := &fakeProvider{
		venue:  domain.VenuePolymarket,
		series: map[string][]domain.PricePoint{"pm-1": series, "pm-3": series},
		errs:   map[string]error{"pm-2": errors.New("boom")},
	}
	kx := &fakeProvider{venue: domain.VenueKalshi, series: map[string][]domain.PricePoint{
		"kx-1": {{Timestamp: base, Price: 0.52}},
		"kx-2": {{Timestamp: base, Price: 0.52}},
		"kx-3": {{Timestamp: base, Price: 0.52}},
	}}

	c := newTestCollector(t, Config{FidelityMinutes: 60}, pm, kx)

	var statuses []domain.JobStatus
	pairs := []domain.MarketPair{
		testPair("p1", "pm-1", "kx-1"),
		testPair("p2", "pm-2", "kx-2"),
		testPair("p3", "pm-3", "kx-3"),
	}
	_, job := c.RunJob(context.Background(), pairs, DateRange{}, func(j domain.CollectionJob) {
		statuses = append(statuses, j.Status)
	})

	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Len(t, job.Errors, 1)
	assert.Equal(t, 3, job.Progress.PairsCompleted)
	assert.Equal(t, 1, job.Progress.PairsFailed)
	assert.Equal(t, 2, job.Progress.Snapshots)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)

	assert.Equal(t, domain.JobStatusPending, statuses[0])
	assert.Equal(t, domain.JobStatusRunning, statuses[1])
	assert.Equal(t, domain.JobStatusCompleted, statuses[len(statuses)-1])
}

func TestRunJob_AllPairsFailedMeansFailed(t *testing.T) {
	pm := &fakeProvider{venue: domain.VenuePolymarket, errs: map[string]error{"pm-1": errors.New("down")}}
	kx := &fakeProvider{venue: domain.VenueKalshi}

	c := newTestCollector(t, Config{FidelityMinutes: 60}, pm, kx)

	_, job := c.RunJob(context.Background(), []domain.MarketPair{testPair("p1", "pm-1", "kx-1")}, DateRange{}, nil)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Len(t, job.Errors, 1)
}

func TestCollectSnapshots_DateRangePassedThrough(t *testing.T) {
	var gotStart, gotEnd time.Time
	pm := &recordingProvider{venue: domain.VenuePolymarket, onCall: func(s, e time.Time) { gotStart, gotEnd = s, e }}
	kx := &fakeProvider{venue: domain.VenueKalshi}

	c := New(Config{FidelityMinutes: 60},
		[]domain.HistoryProvider{pm, kx},
		nil,
		slog.New(slog.DiscardHandler),
	)
	t.Cleanup(c.Close)

	dr := DateRange{
		Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	c.CollectSnapshots(context.Background(), []domain.MarketPair{testPair("p1", "pm-1", "kx-1")}, dr, nil)

	assert.Equal(t, dr.Start, gotStart)
	assert.Equal(t, dr.End, gotEnd)
}

type recordingProvider struct {
	venue  domain.Venue
	onCall func(start, end time.Time)
}

func (r *recordingProvider) Venue() domain.Venue { return r.venue }

func (r *recordingProvider) GetHistoricalPrices(_ context.Context, _ string, start, end time.Time, _ int) ([]domain.PricePoint, error) {
	if r.onCall != nil {
		r.onCall(start, end)
	}
	return nil, nil
}
