package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Save upserts one tracked hedge position.
func (s *PositionStore) Save(ctx context.Context, pos domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, pair_id, direction, size, entry_cost, realized_pnl,
			status, opened_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			realized_pnl = EXCLUDED.realized_pnl,
			status       = EXCLUDED.status,
			closed_at    = EXCLUDED.closed_at`

	_, err := s.pool.Exec(ctx, query,
		pos.ID, pos.PairID, string(pos.Direction), pos.Size, pos.EntryCost,
		pos.RealizedPnL, string(pos.Status), pos.OpenedAt, pos.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save position %s: %w", pos.ID, err)
	}
	return nil
}

// GetOpen returns all open positions, oldest first.
func (s *PositionStore) GetOpen(ctx context.Context) ([]domain.Position, error) {
	const query = `
		SELECT id, pair_id, direction, size, entry_cost, realized_pnl,
		       status, opened_at, closed_at
		FROM positions
		WHERE status = $1
		ORDER BY opened_at ASC`

	rows, err := s.pool.Query(ctx, query, string(domain.PositionStatusOpen))
	if err != nil {
		return nil, fmt.Errorf("postgres: get open positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var pos domain.Position
		var direction, status string
		if err := rows.Scan(
			&pos.ID, &pos.PairID, &direction, &pos.Size, &pos.EntryCost,
			&pos.RealizedPnL, &status, &pos.OpenedAt, &pos.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		pos.Direction = domain.HedgeDirection(direction)
		pos.Status = domain.PositionStatus(status)
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get open positions rows: %w", err)
	}
	return positions, nil
}

// Delete removes one position by ID.
func (s *PositionStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
