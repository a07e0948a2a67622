package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
// The opportunity's market pair is stored by reference only: reads return
// the pair ID and leave pair metadata to the matcher that owns it.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const oppSelectCols = `id, pair_id, direction,
	first_venue, first_side, first_price, first_liquidity,
	second_venue, second_side, second_price, second_liquidity,
	base_cost, fees_first, fees_second, fees_total,
	total_cost, profit_percent, net_profit, valid,
	max_size, confidence, ttl_seconds, detected_at`

// Insert stores a new arbitrage opportunity.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, pair_id, direction,
			first_venue, first_side, first_price, first_liquidity,
			second_venue, second_side, second_price, second_liquidity,
			base_cost, fees_first, fees_second, fees_total,
			total_cost, profit_percent, net_profit, valid,
			max_size, confidence, ttl_seconds, detected_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18, $19,
			$20, $21, $22, $23
		)`

	r := opp.Result
	_, err := s.pool.Exec(ctx, query,
		opp.ID, opp.PairID, string(r.Direction),
		string(r.FirstLeg.Venue), string(r.FirstLeg.Side), r.FirstLeg.Price, r.FirstLeg.Liquidity,
		string(r.SecondLeg.Venue), string(r.SecondLeg.Side), r.SecondLeg.Price, r.SecondLeg.Liquidity,
		r.BaseCost, r.Fees.FirstLegFee, r.Fees.SecondLegFee, r.Fees.Total,
		r.TotalCost, r.ProfitPercent, r.NetProfit, r.Valid,
		opp.MaxSize, opp.Confidence, opp.TTLSeconds, opp.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// GetByID returns one opportunity by its ID.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunities WHERE id = $1`

	row := s.pool.QueryRow(ctx, query, id)
	opp, err := scanOpportunity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ArbitrageOpportunity{}, fmt.Errorf("postgres: opportunity %s: %w", id, domain.ErrNotFound)
		}
		return domain.ArbitrageOpportunity{}, fmt.Errorf("postgres: get opportunity %s: %w", id, err)
	}
	return opp, nil
}

// List returns opportunities matching the filter, newest first.
func (s *OpportunityStore) List(ctx context.Context, filter domain.OpportunityFilter) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunities WHERE 1=1`
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.PairID != "" {
		query += " AND pair_id = " + arg(filter.PairID)
	}
	if filter.MinProfitPct > 0 {
		query += " AND profit_percent >= " + arg(filter.MinProfitPct)
	}
	if filter.OnlyValid {
		query += " AND valid = TRUE"
	}
	if filter.MinConfidence > 0 {
		query += " AND confidence >= " + arg(filter.MinConfidence)
	}
	if filter.Since != nil {
		query += " AND detected_at >= " + arg(*filter.Since)
	}
	if filter.Until != nil {
		query += " AND detected_at < " + arg(*filter.Until)
	}
	query += " ORDER BY detected_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var opps []domain.ArbitrageOpportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list opportunities rows: %w", err)
	}
	return opps, nil
}

// ListBefore returns all opportunities detected strictly before the cutoff,
// oldest first. Used by the archiver to page cold data out to blob storage.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunities WHERE detected_at < $1 ORDER BY detected_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before %s: %w", before, err)
	}
	defer rows.Close()

	var opps []domain.ArbitrageOpportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before rows: %w", err)
	}
	return opps, nil
}

// DeleteBefore removes opportunities detected strictly before the cutoff.
// Called after a successful archive pass.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM opportunities WHERE detected_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

func scanOpportunity(row pgx.Row) (domain.ArbitrageOpportunity, error) {
	var opp domain.ArbitrageOpportunity
	var direction, firstVenue, firstSide, secondVenue, secondSide string

	err := row.Scan(
		&opp.ID, &opp.PairID, &direction,
		&firstVenue, &firstSide, &opp.Result.FirstLeg.Price, &opp.Result.FirstLeg.Liquidity,
		&secondVenue, &secondSide, &opp.Result.SecondLeg.Price, &opp.Result.SecondLeg.Liquidity,
		&opp.Result.BaseCost, &opp.Result.Fees.FirstLegFee, &opp.Result.Fees.SecondLegFee, &opp.Result.Fees.Total,
		&opp.Result.TotalCost, &opp.Result.ProfitPercent, &opp.Result.NetProfit, &opp.Result.Valid,
		&opp.MaxSize, &opp.Confidence, &opp.TTLSeconds, &opp.DetectedAt,
	)
	if err != nil {
		return domain.ArbitrageOpportunity{}, err
	}

	opp.Result.Direction = domain.HedgeDirection(direction)
	opp.Result.FirstLeg.Venue = domain.Venue(firstVenue)
	opp.Result.FirstLeg.Side = domain.Side(firstSide)
	opp.Result.SecondLeg.Venue = domain.Venue(secondVenue)
	opp.Result.SecondLeg.Side = domain.Side(secondSide)
	opp.Pair = domain.MarketPair{ID: opp.PairID}
	return opp, nil
}
