package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// BacktestStore implements domain.BacktestStore using PostgreSQL. Headline
// figures live in columns for querying; the full result including the trade
// ledger is kept as JSONB.
type BacktestStore struct {
	pool *pgxpool.Pool
}

// NewBacktestStore creates a BacktestStore backed by the given pool.
func NewBacktestStore(pool *pgxpool.Pool) *BacktestStore {
	return &BacktestStore{pool: pool}
}

// Insert stores one backtest run.
func (s *BacktestStore) Insert(ctx context.Context, result domain.BacktestResult) error {
	metrics, err := json.Marshal(result.Summary.Metrics)
	if err != nil {
		return fmt.Errorf("postgres: marshal backtest metrics: %w", err)
	}
	full, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("postgres: marshal backtest result: %w", err)
	}

	const query = `
		INSERT INTO backtests (
			id, initial_capital, final_capital, executed_trades, skipped_trades,
			start_at, end_at, metrics, result, ran_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	sum := result.Summary
	_, err = s.pool.Exec(ctx, query,
		result.ID, sum.InitialCapital, sum.FinalCapital,
		sum.ExecutedTrades, sum.SkippedTrades,
		sum.StartAt, sum.EndAt, metrics, full, result.RanAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert backtest %s: %w", result.ID, err)
	}
	return nil
}

const backtestSelectCols = `initial_capital, final_capital, executed_trades,
	skipped_trades, start_at, end_at, metrics`

// GetByID returns the summary of one backtest run.
func (s *BacktestStore) GetByID(ctx context.Context, id string) (domain.BacktestSummary, error) {
	query := `SELECT ` + backtestSelectCols + ` FROM backtests WHERE id = $1`

	sum, err := scanBacktestSummary(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BacktestSummary{}, fmt.Errorf("postgres: backtest %s: %w", id, domain.ErrNotFound)
		}
		return domain.BacktestSummary{}, fmt.Errorf("postgres: get backtest %s: %w", id, err)
	}
	return sum, nil
}

// ListRecent returns the most recent backtest summaries, newest first.
func (s *BacktestStore) ListRecent(ctx context.Context, limit int) ([]domain.BacktestSummary, error) {
	query := `SELECT ` + backtestSelectCols + ` FROM backtests ORDER BY ran_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent backtests: %w", err)
	}
	defer rows.Close()

	var sums []domain.BacktestSummary
	for rows.Next() {
		sum, err := scanBacktestSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan backtest: %w", err)
		}
		sums = append(sums, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list recent backtests rows: %w", err)
	}
	return sums, nil
}

func scanBacktestSummary(row pgx.Row) (domain.BacktestSummary, error) {
	var sum domain.BacktestSummary
	var metrics []byte
	if err := row.Scan(
		&sum.InitialCapital, &sum.FinalCapital, &sum.ExecutedTrades,
		&sum.SkippedTrades, &sum.StartAt, &sum.EndAt, &metrics,
	); err != nil {
		return domain.BacktestSummary{}, err
	}
	if err := json.Unmarshal(metrics, &sum.Metrics); err != nil {
		return domain.BacktestSummary{}, fmt.Errorf("unmarshal metrics: %w", err)
	}
	return sum, nil
}
