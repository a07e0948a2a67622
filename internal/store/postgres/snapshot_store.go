package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL. Snapshots
// upsert on (pair_id, bucket_ts) so re-collecting a date range is idempotent.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a SnapshotStore backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// InsertBatch stores a batch of snapshots in one round trip.
func (s *SnapshotStore) InsertBatch(ctx context.Context, snaps []domain.HistoricalSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	const query = `
		INSERT INTO snapshots (
			pair_id, bucket_ts, first_yes, first_no, second_yes, second_no,
			direction, total_cost, profit_percent, has_edge
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (pair_id, bucket_ts) DO UPDATE SET
			first_yes      = EXCLUDED.first_yes,
			first_no       = EXCLUDED.first_no,
			second_yes     = EXCLUDED.second_yes,
			second_no      = EXCLUDED.second_no,
			direction      = EXCLUDED.direction,
			total_cost     = EXCLUDED.total_cost,
			profit_percent = EXCLUDED.profit_percent,
			has_edge       = EXCLUDED.has_edge`

	batch := &pgx.Batch{}
	for _, snap := range snaps {
		batch.Queue(query,
			snap.PairID, snap.Timestamp, snap.FirstYes, snap.FirstNo,
			snap.SecondYes, snap.SecondNo, string(snap.Direction),
			snap.TotalCost, snap.ProfitPercent, snap.Exists,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range snaps {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: insert snapshot %s@%s: %w",
				snaps[i].PairID, snaps[i].Timestamp, err)
		}
	}
	return nil
}

// ListByPair returns the stored snapshots for one pair, oldest first.
func (s *SnapshotStore) ListByPair(ctx context.Context, pairID string, opts domain.ListOpts) ([]domain.HistoricalSnapshot, error) {
	query := `
		SELECT pair_id, bucket_ts, first_yes, first_no, second_yes, second_no,
		       direction, total_cost, profit_percent, has_edge
		FROM snapshots
		WHERE pair_id = $1`
	args := []any{pairID}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Since != nil {
		query += " AND bucket_ts >= " + arg(*opts.Since)
	}
	if opts.Until != nil {
		query += " AND bucket_ts < " + arg(*opts.Until)
	}
	query += " ORDER BY bucket_ts ASC"
	if opts.Limit > 0 {
		query += " LIMIT " + arg(opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET " + arg(opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots for %s: %w", pairID, err)
	}
	defer rows.Close()

	var snaps []domain.HistoricalSnapshot
	for rows.Next() {
		var snap domain.HistoricalSnapshot
		var direction string
		if err := rows.Scan(
			&snap.PairID, &snap.Timestamp, &snap.FirstYes, &snap.FirstNo,
			&snap.SecondYes, &snap.SecondNo, &direction,
			&snap.TotalCost, &snap.ProfitPercent, &snap.Exists,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		snap.Direction = domain.HedgeDirection(direction)
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list snapshots rows: %w", err)
	}
	return snaps, nil
}

// CountByPair returns the number of stored snapshots for one pair.
func (s *SnapshotStore) CountByPair(ctx context.Context, pairID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM snapshots WHERE pair_id = $1`, pairID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count snapshots for %s: %w", pairID, err)
	}
	return count, nil
}
