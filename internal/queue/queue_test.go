package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

func testConfig() Config {
	return Config{
		Venue:                domain.VenueKalshi,
		MaxRequestsPerMinute: 1000,
		MaxConcurrent:        4,
		MaxRetries:           3,
		BackoffMultiplier:    2,
		RetryOnRateLimit:     true,
	}
}

// fakeSleeper records requested sleep durations and returns immediately.
type fakeSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *fakeSleeper) durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.slept...)
}

func TestAdd_ResolvesResult(t *testing.T) {
	q := New(testConfig())
	defer q.Close()

	f, err := q.Add(context.Background(), 0, func(context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)

	result, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, result)

	require.NoError(t, q.WaitForIdle(context.Background()))
	st := q.Stats()
	assert.EqualValues(t, 1, st.Completed)
	assert.EqualValues(t, 0, st.Failed)
}

func TestConcurrencyNeverExceedsLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 2
	q := New(cfg)
	defer q.Close()

	var running, peak atomic.Int32
	release := make(chan struct{})

	for i := 0; i < 6; i++ {
		_, err := q.Add(context.Background(), 0, func(context.Context) (any, error) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			running.Add(-1)
			return nil, nil
		})
		require.NoError(t, err)
	}

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 2, running.Load())
	close(release)

	require.NoError(t, q.WaitForIdle(context.Background()))
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.EqualValues(t, 6, q.Stats().Completed)
}

func TestRollingWindowCapsStarts(t *testing.T) {
	// Window capacity 2: of five near-instant tasks only two may start
	// within the first rolling minute.
	cfg := testConfig()
	cfg.MaxRequestsPerMinute = 2
	q := New(cfg)
	defer q.Close()

	var started atomic.Int32
	for i := 0; i < 5; i++ {
		_, err := q.Add(context.Background(), 0, func(context.Context) (any, error) {
			started.Add(1)
			return nil, nil
		})
		require.NoError(t, err)
	}

	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 2, started.Load())
	st := q.Stats()
	assert.Equal(t, 3, st.Pending)
	assert.EqualValues(t, 2, st.Completed)
}

func TestWindowDelay(t *testing.T) {
	q := New(Config{MaxRequestsPerMinute: 2, MaxConcurrent: 1})
	defer q.Close()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	q.mu.Lock()
	q.starts = []time.Time{base.Add(-70 * time.Second), base.Add(-30 * time.Second)}
	d := q.windowDelay(base)
	pruned := len(q.starts)
	q.mu.Unlock()

	// The 70s-old start fell out of the window, so one slot is free.
	assert.Equal(t, time.Duration(0), d)
	assert.Equal(t, 1, pruned)

	q.mu.Lock()
	q.starts = []time.Time{base.Add(-40 * time.Second), base.Add(-10 * time.Second)}
	d = q.windowDelay(base)
	q.mu.Unlock()

	// Full window: next start must wait until the oldest expires.
	assert.Equal(t, 20*time.Second, d)
}

func TestPriorityThenFIFO(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	q := New(cfg)
	defer q.Close()
	q.Pause()

	var mu sync.Mutex
	var order []string
	record := func(name string) Task {
		return func(context.Context) (any, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, nil
		}
	}

	_, _ = q.Add(context.Background(), 0, record("low-1"))
	_, _ = q.Add(context.Background(), 5, record("high-1"))
	_, _ = q.Add(context.Background(), 0, record("low-2"))
	_, _ = q.Add(context.Background(), 5, record("high-2"))

	q.Resume()
	require.NoError(t, q.WaitForIdle(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"high-1", "high-2", "low-1", "low-2"}, order)
}

func TestTransientErrorRetriesWithBackoff(t *testing.T) {
	q := New(testConfig())
	defer q.Close()
	fs := &fakeSleeper{}
	q.sleep = fs.sleep

	var attempts atomic.Int32
	f, err := q.Add(context.Background(), 0, func(context.Context) (any, error) {
		if attempts.Add(1) < 3 {
			return nil, domain.ErrTransient
		}
		return "ok", nil
	})
	require.NoError(t, err)

	result, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.EqualValues(t, 3, attempts.Load())

	// 1s, then 1s * 2^1.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, fs.durations())
	assert.EqualValues(t, 0, q.Stats().Failed)
}

func TestTransientErrorExhaustsRetries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	q := New(cfg)
	defer q.Close()
	q.sleep = (&fakeSleeper{}).sleep

	var attempts atomic.Int32
	f, _ := q.Add(context.Background(), 0, func(context.Context) (any, error) {
		attempts.Add(1)
		return nil, domain.ErrTransient
	})

	_, err := f.Wait(context.Background())
	require.ErrorIs(t, err, domain.ErrTransient)
	assert.EqualValues(t, 3, attempts.Load()) // initial try + 2 retries
	assert.EqualValues(t, 1, q.Stats().Failed)
}

func TestRateLimitHonorsRetryAfterAndAdaptiveDelay(t *testing.T) {
	q := New(testConfig())
	defer q.Close()
	fs := &fakeSleeper{}
	q.sleep = fs.sleep

	var attempts atomic.Int32
	f, _ := q.Add(context.Background(), 0, func(context.Context) (any, error) {
		if attempts.Add(1) == 1 {
			return nil, &domain.RateLimitError{Venue: domain.VenueKalshi, RetryAfter: 2 * time.Second}
		}
		return nil, nil
	})

	_, err := f.Wait(context.Background())
	require.NoError(t, err)

	// First the venue's Retry-After hint, then the adaptive pre-flight
	// delay the hit left behind for the next attempt.
	assert.Equal(t, []time.Duration{2 * time.Second, adaptiveStep}, fs.durations())
	assert.EqualValues(t, 1, q.Stats().RateLimitHits)

	// The success decayed the queue-wide delay by one step.
	assert.Equal(t, adaptiveStep-adaptiveDecay, q.adaptiveDelay())
}

func TestRateLimitWithoutRetryPropagates(t *testing.T) {
	cfg := testConfig()
	cfg.RetryOnRateLimit = false
	q := New(cfg)
	defer q.Close()
	q.sleep = (&fakeSleeper{}).sleep

	var attempts atomic.Int32
	f, _ := q.Add(context.Background(), 0, func(context.Context) (any, error) {
		attempts.Add(1)
		return nil, &domain.RateLimitError{Venue: domain.VenueKalshi}
	})

	_, err := f.Wait(context.Background())
	require.ErrorIs(t, err, domain.ErrRateLimited)
	assert.EqualValues(t, 1, attempts.Load())
	assert.EqualValues(t, 1, q.Stats().RateLimitHits)
}

func TestPermanentErrorNotRetried(t *testing.T) {
	q := New(testConfig())
	defer q.Close()

	permanent := errors.New("bad request")
	var attempts atomic.Int32
	f, _ := q.Add(context.Background(), 0, func(context.Context) (any, error) {
		attempts.Add(1)
		return nil, permanent
	})

	_, err := f.Wait(context.Background())
	require.ErrorIs(t, err, permanent)
	assert.EqualValues(t, 1, attempts.Load())
	assert.EqualValues(t, 1, q.Stats().Failed)
}

func TestClearDropsPendingWork(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	q := New(cfg)
	defer q.Close()

	release := make(chan struct{})
	running, _ := q.Add(context.Background(), 0, func(context.Context) (any, error) {
		<-release
		return "done", nil
	})
	queued, _ := q.Add(context.Background(), 0, func(context.Context) (any, error) {
		return nil, nil
	})

	time.Sleep(20 * time.Millisecond)
	q.Clear()
	close(release)

	_, err := queued.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCleared)

	// The in-flight task is allowed to finish naturally.
	result, err := running.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", result)
}

func TestPauseStopsDispatch(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	q := New(cfg)
	defer q.Close()

	q.Pause()
	var ran atomic.Bool
	f, _ := q.Add(context.Background(), 0, func(context.Context) (any, error) {
		ran.Store(true)
		return nil, nil
	})

	time.Sleep(50 * time.Millisecond)
	assert.False(t, ran.Load())
	assert.Equal(t, 1, q.Stats().Pending)

	q.Resume()
	_, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, ran.Load())
}

func TestAddAfterClose(t *testing.T) {
	q := New(testConfig())
	q.Close()
	_, err := q.Add(context.Background(), 0, func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAddBatch_ContinuesOnError(t *testing.T) {
	q := New(testConfig())
	defer q.Close()

	boom := errors.New("boom")
	var progress []int
	results, err := AddBatch(context.Background(), q, []int{1, 2, 3, 4},
		func(_ context.Context, n int) (int, error) {
			if n == 2 {
				return 0, boom
			}
			return n * 10, nil
		},
		BatchOpts{OnProgress: func(done, total int) { progress = append(progress, done) }},
	)

	require.NoError(t, err)
	assert.Equal(t, 10, results[0].Value)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.Equal(t, 30, results[2].Value)
	assert.Equal(t, 40, results[3].Value)
	assert.Equal(t, []int{1, 2, 3, 4}, progress)
}

func TestAddBatch_StopOnError(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	q := New(cfg)
	defer q.Close()

	boom := errors.New("boom")
	var errIndexes []int
	results, err := AddBatch(context.Background(), q, []int{1, 2, 3},
		func(_ context.Context, n int) (int, error) {
			if n == 1 {
				return 0, boom
			}
			time.Sleep(5 * time.Millisecond)
			return n, nil
		},
		BatchOpts{StopOnError: true, OnError: func(i int, _ error) { errIndexes = append(errIndexes, i) }},
	)

	require.ErrorIs(t, err, boom)
	assert.ErrorIs(t, results[0].Err, boom)
	assert.Contains(t, errIndexes, 0)
}
