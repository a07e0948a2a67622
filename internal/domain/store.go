package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OpportunityFilter narrows opportunity queries.
type OpportunityFilter struct {
	PairID        string
	MinProfitPct  float64
	OnlyValid     bool
	Since         *time.Time
	Until         *time.Time
	Limit         int
	MinConfidence int
}

// OpportunityStore persists detected arbitrage opportunities. The scanner
// treats writes as fire-and-forget: a failed insert is logged, never allowed
// to abort a scan cycle.
type OpportunityStore interface {
	Insert(ctx context.Context, opp ArbitrageOpportunity) error
	GetByID(ctx context.Context, id string) (ArbitrageOpportunity, error)
	List(ctx context.Context, filter OpportunityFilter) ([]ArbitrageOpportunity, error)
	ListBefore(ctx context.Context, before time.Time) ([]ArbitrageOpportunity, error)
}

// SnapshotStore persists time-aligned historical snapshots.
type SnapshotStore interface {
	InsertBatch(ctx context.Context, snaps []HistoricalSnapshot) error
	ListByPair(ctx context.Context, pairID string, opts ListOpts) ([]HistoricalSnapshot, error)
	CountByPair(ctx context.Context, pairID string) (int64, error)
}

// BacktestStore persists backtest run summaries.
type BacktestStore interface {
	Insert(ctx context.Context, result BacktestResult) error
	GetByID(ctx context.Context, id string) (BacktestSummary, error)
	ListRecent(ctx context.Context, limit int) ([]BacktestSummary, error)
}

// PositionStatus tracks whether a tracked position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Position represents one tracked hedge position (both legs).
type Position struct {
	ID          string
	PairID      string
	Direction   HedgeDirection
	Size        float64
	EntryCost   float64
	RealizedPnL float64
	Status      PositionStatus
	OpenedAt    time.Time
	ClosedAt    *time.Time
}

// PositionStore persists hedge positions. Deployments without position
// tracking wire UnsupportedPositionStore instead of leaving the capability
// nil; callers branch on ErrPositionsUnsupported explicitly.
type PositionStore interface {
	Save(ctx context.Context, pos Position) error
	GetOpen(ctx context.Context) ([]Position, error)
	Delete(ctx context.Context, id string) error
}

// UnsupportedPositionStore is the explicit "position tracking not supported"
// variant of PositionStore.
type UnsupportedPositionStore struct{}

func (UnsupportedPositionStore) Save(context.Context, Position) error {
	return ErrPositionsUnsupported
}

func (UnsupportedPositionStore) GetOpen(context.Context) ([]Position, error) {
	return nil, ErrPositionsUnsupported
}

func (UnsupportedPositionStore) Delete(context.Context, string) error {
	return ErrPositionsUnsupported
}

var _ PositionStore = UnsupportedPositionStore{}
