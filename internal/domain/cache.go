package domain

import (
	"context"
	"time"
)

// QuoteCache provides fast access to the latest quote per market.
type QuoteCache interface {
	SetQuote(ctx context.Context, q Quote) error
	GetQuote(ctx context.Context, venue Venue, marketID string) (Quote, error)
	GetQuotes(ctx context.Context, venue Venue, marketIDs []string) (map[string]Quote, error)
}

// JobCache exposes collection-job progress for external polling.
type JobCache interface {
	SetJob(ctx context.Context, job CollectionJob, ttl time.Duration) error
	GetJob(ctx context.Context, id string) (CollectionJob, error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// LockManager provides distributed mutual exclusion. Collection jobs take a
// lock so two processes never run the same job concurrently.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter bounds request rates per key. The monitoring API uses it for
// per-client throttling.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides pub/sub and durable streams for opportunity and
// progress notifications.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
