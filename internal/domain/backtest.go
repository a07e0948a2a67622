package domain

import "time"

// TradeOutcome classifies a simulated trade once its result is known.
type TradeOutcome string

const (
	OutcomeWin       TradeOutcome = "win"
	OutcomeLoss      TradeOutcome = "loss"
	OutcomeBreakEven TradeOutcome = "break_even"
	OutcomePending   TradeOutcome = "pending"
	OutcomeVoided    TradeOutcome = "voided"
)

// SimulatedTrade is one entry/exit record produced by the backtest engine
// for an executed opportunity.
type SimulatedTrade struct {
	ID             string
	OpportunityID  string
	PairID         string
	EntryAt        time.Time
	ExitAt         time.Time
	Size           float64 // contracts
	Cost           float64 // capital committed
	ExpectedProfit float64
	RealizedProfit float64
	Fees           float64
	SlippageCost   float64
	Outcome        TradeOutcome
}

// CapitalPoint is one point on the backtest capital path.
type CapitalPoint struct {
	Timestamp time.Time
	Capital   float64
}

// RiskMetrics are computed once over the full trade ledger and capital path.
// Every field is a finite number even for degenerate inputs.
type RiskMetrics struct {
	ReturnPercent    float64
	AnnualizedReturn float64
	SharpeRatio      float64
	SortinoRatio     float64
	MaxDrawdown      float64 // absolute, capital units
	MaxDrawdownPct   float64
	ProfitFactor     float64 // ProfitFactorCapped when there are no losses
	WinRate          float64
}

// ProfitFactorCapped is the sentinel reported when gross losses are zero:
// large enough to sort above any genuine ratio, finite so it serializes.
const ProfitFactorCapped = 999.0

// ReportInterval is the aggregation granularity for interval reports.
type ReportInterval string

const (
	ReportDaily  ReportInterval = "daily"
	ReportWeekly ReportInterval = "weekly"
)

// IntervalReport aggregates simulated trades over one calendar interval.
type IntervalReport struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Trades      int
	Wins        int
	Losses      int
	NetProfit   float64
	Fees        float64
	Slippage    float64
	EndCapital  float64
}

// BacktestSummary is the headline figures for one backtest run.
type BacktestSummary struct {
	InitialCapital float64
	FinalCapital   float64
	ExecutedTrades int
	SkippedTrades  int
	StartAt        time.Time
	EndAt          time.Time
	Metrics        RiskMetrics
}

// BacktestResult is the aggregate output of one engine run. It is produced
// once and never mutated afterward.
type BacktestResult struct {
	ID          string
	Summary     BacktestSummary
	Trades      []SimulatedTrade
	CapitalPath []CapitalPoint
	Reports     map[ReportInterval][]IntervalReport
	Warnings    []string
	RanAt       time.Time
}
