package domain

import "time"

// PricePoint is one raw sample from a venue's price history endpoint.
type PricePoint struct {
	Timestamp time.Time
	Price     float64 // YES probability, 0..1
}

// HistoricalSnapshot is one time-aligned bucket for a market pair: the YES
// price on both venues at that instant plus the derived arbitrage verdict.
// Snapshots are append-only once collected.
type HistoricalSnapshot struct {
	PairID        string
	Timestamp     time.Time
	FirstYes      float64
	FirstNo       float64
	SecondYes     float64
	SecondNo      float64
	Direction     HedgeDirection
	TotalCost     float64
	ProfitPercent float64
	Exists        bool // ProfitPercent > 0
}

// CollectionError records a single pair's failure during a collection job.
type CollectionError struct {
	PairID    string
	PairLabel string
	Message   string
	At        time.Time
}

// JobStatus is the lifecycle state of a collection job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobProgress counts work done so far within a collection job.
type JobProgress struct {
	PairsTotal     int
	PairsCompleted int
	PairsFailed    int
	Snapshots      int
	CurrentPair    string
}

// CollectionJob is the mutable progress record for one collection run. It is
// owned exclusively by the collector invocation that created it and must not
// be shared between concurrent collectors. Failed is reached only when every
// pair in the job errored; partial failures still complete.
type CollectionJob struct {
	ID          string
	Status      JobStatus
	Progress    JobProgress
	Errors      []CollectionError
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}
