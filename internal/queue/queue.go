// Package queue implements a per-venue rate-limited task executor: bounded
// concurrency, a rolling per-minute cap on task starts, priority-then-FIFO
// dispatch, bounded retries with exponential backoff, and a queue-wide
// adaptive delay driven by venue rate-limit hints. The rolling window is the
// in-process equivalent of the sliding-window limiter the Redis cache layer
// uses for distributed callers.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// ErrCleared resolves futures whose tasks were dropped by Clear before
// starting.
var ErrCleared = errors.New("queue: task cleared before start")

// ErrClosed is returned by Add after Close.
var ErrClosed = errors.New("queue: closed")

const (
	window            = time.Minute
	defaultRetryAfter = 5 * time.Second
	transientBase     = time.Second

	// Adaptive throttling: every rate-limit hit slows the whole queue, not
	// just the offending task; every success walks the delay back down.
	adaptiveStep  = 500 * time.Millisecond
	adaptiveDecay = 100 * time.Millisecond
	adaptiveCap   = 5 * time.Second

	idlePollInterval = 10 * time.Millisecond
)

// Config parameterizes one venue's queue.
type Config struct {
	Venue                domain.Venue
	MaxRequestsPerMinute int
	MaxConcurrent        int
	MaxRetries           int
	BackoffMultiplier    float64
	RetryOnRateLimit     bool
}

// Stats is a live snapshot of queue counters.
type Stats struct {
	Pending       int
	Active        int
	Completed     int64
	Failed        int64
	RateLimitHits int64
}

// Task is one unit of work. The body must not touch queue state; the queue
// derives all bookkeeping from the returned error.
type Task func(ctx context.Context) (any, error)

// Future resolves with the task's result once it has finished (or
// permanently failed).
type Future struct {
	done   chan struct{}
	result any
	err    error
}

// Wait blocks until the task resolves or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return f.result, f.err
	}
}

func (f *Future) resolve(result any, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

type item struct {
	ctx      context.Context
	fn       Task
	future   *Future
	priority int
	seq      uint64
}

// taskHeap orders ready tasks by priority descending, FIFO within a
// priority.
type taskHeap []*item

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(*item)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Queue is a rate-limited concurrent task executor for one venue. All
// methods are safe for concurrent use.
type Queue struct {
	cfg Config

	mu        sync.Mutex
	heap      taskHeap
	starts    []time.Time // dispatch times within the rolling window
	active    int
	paused    bool
	closed    bool
	seq       uint64
	adaptive  time.Duration
	completed int64
	failed    int64
	rlHits    int64

	wake chan struct{}

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a queue and starts its dispatcher.
func New(cfg Config) *Queue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxRequestsPerMinute <= 0 {
		cfg.MaxRequestsPerMinute = 60
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2
	}
	q := &Queue{
		cfg:   cfg,
		wake:  make(chan struct{}, 1),
		now:   time.Now,
		sleep: sleepCtx,
	}
	go q.dispatch()
	return q
}

// Add enqueues a task with the given priority (higher dequeues first) and
// returns its Future. The task's retries and backoff stay inside the queue;
// only the terminal outcome reaches the Future.
func (q *Queue) Add(ctx context.Context, priority int, fn Task) (*Future, error) {
	f := &Future{done: make(chan struct{})}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	q.seq++
	heap.Push(&q.heap, &item{ctx: ctx, fn: fn, future: f, priority: priority, seq: q.seq})
	q.mu.Unlock()

	q.ping()
	return f, nil
}

// Stats returns a snapshot of the live counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Pending:       q.heap.Len(),
		Active:        q.active,
		Completed:     q.completed,
		Failed:        q.failed,
		RateLimitHits: q.rlHits,
	}
}

// Pause stops dispatching without dropping queued work. In-flight tasks run
// to completion.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume continues dispatching after Pause.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.ping()
}

// Clear drops all not-yet-started work; their futures resolve with
// ErrCleared. In-flight tasks are not aborted.
func (q *Queue) Clear() {
	q.mu.Lock()
	dropped := q.heap
	q.heap = nil
	q.mu.Unlock()

	for _, it := range dropped {
		it.future.resolve(nil, ErrCleared)
	}
}

// WaitForIdle blocks until no tasks are pending or active, polling at a
// fixed interval.
func (q *Queue) WaitForIdle(ctx context.Context) error {
	for {
		q.mu.Lock()
		idle := q.heap.Len() == 0 && q.active == 0
		q.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(idlePollInterval):
		}
	}
}

// Close stops the dispatcher and clears pending work.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.Clear()
	q.ping()
}

func (q *Queue) ping() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// dispatch is the scheduler loop. It owns the decision of when a task may
// start; task bodies only ever run in their own goroutine.
func (q *Queue) dispatch() {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return
		}

		var wait time.Duration = -1
		if !q.paused && q.heap.Len() > 0 && q.active < q.cfg.MaxConcurrent {
			now := q.now()
			if d := q.windowDelay(now); d <= 0 {
				it := heap.Pop(&q.heap).(*item)
				q.starts = append(q.starts, now)
				q.active++
				q.mu.Unlock()
				go q.run(it)
				continue
			} else {
				wait = d
			}
		}
		q.mu.Unlock()

		if wait < 0 {
			<-q.wake
		} else {
			select {
			case <-q.wake:
			case <-time.After(wait):
			}
		}
	}
}

// windowDelay prunes starts older than the rolling window and returns how
// long the next start must wait, or zero if it may go now. Caller holds mu.
func (q *Queue) windowDelay(now time.Time) time.Duration {
	cutoff := now.Add(-window)
	kept := q.starts[:0]
	for _, t := range q.starts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	q.starts = kept

	if len(q.starts) < q.cfg.MaxRequestsPerMinute {
		return 0
	}
	return q.starts[0].Add(window).Sub(now)
}

// run executes one task with the full retry policy, then settles the
// bookkeeping and wakes the dispatcher.
func (q *Queue) run(it *item) {
	result, err := q.execute(it)

	q.mu.Lock()
	q.active--
	if err != nil {
		q.failed++
	} else {
		q.completed++
	}
	q.mu.Unlock()

	it.future.resolve(result, err)
	q.ping()
}

func (q *Queue) execute(it *item) (any, error) {
	var lastErr error

	for attempt := 1; ; attempt++ {
		// Pre-flight adaptive throttle: one venue hint slows every
		// subsequent task on this queue.
		if d := q.adaptiveDelay(); d > 0 {
			if err := q.sleep(it.ctx, d); err != nil {
				return nil, err
			}
		}

		if err := it.ctx.Err(); err != nil {
			return nil, err
		}

		result, err := it.fn(it.ctx)
		if err == nil {
			q.recordSuccess()
			return result, nil
		}
		lastErr = err

		switch {
		case errors.Is(err, domain.ErrRateLimited):
			q.recordRateLimit()
			if !q.cfg.RetryOnRateLimit || attempt > q.cfg.MaxRetries {
				return nil, err
			}
			hint := domain.RetryAfterHint(err)
			if hint <= 0 {
				hint = defaultRetryAfter
			}
			if err := q.sleep(it.ctx, q.backoff(hint, attempt)); err != nil {
				return nil, err
			}

		case errors.Is(err, domain.ErrTransient):
			if attempt > q.cfg.MaxRetries {
				return nil, err
			}
			if err := q.sleep(it.ctx, q.backoff(transientBase, attempt)); err != nil {
				return nil, err
			}

		default:
			// Permanent request errors are never retried.
			return nil, lastErr
		}
	}
}

// backoff scales base by BackoffMultiplier^(attempt-1).
func (q *Queue) backoff(base time.Duration, attempt int) time.Duration {
	factor := math.Pow(q.cfg.BackoffMultiplier, float64(attempt-1))
	return time.Duration(float64(base) * factor)
}

func (q *Queue) adaptiveDelay() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.adaptive
}

func (q *Queue) recordSuccess() {
	q.mu.Lock()
	q.adaptive -= adaptiveDecay
	if q.adaptive < 0 {
		q.adaptive = 0
	}
	q.mu.Unlock()
}

func (q *Queue) recordRateLimit() {
	q.mu.Lock()
	q.rlHits++
	q.adaptive += adaptiveStep
	if q.adaptive > adaptiveCap {
		q.adaptive = adaptiveCap
	}
	q.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
