package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// quoteTTL bounds staleness: a quote older than this is treated as missing
// rather than served to the scanner.
const quoteTTL = 2 * time.Minute

// QuoteCache implements domain.QuoteCache using Redis string keys holding
// JSON-encoded quotes with a short TTL.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(venue domain.Venue, marketID string) string {
	return "quote:" + string(venue) + ":" + marketID
}

// SetQuote stores the latest quote for a market.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.Quote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("redis: marshal quote %s: %w", q.MarketID, err)
	}
	key := quoteKey(q.Venue, q.MarketID)
	if err := qc.rdb.Set(ctx, key, data, quoteTTL).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.MarketID, err)
	}
	return nil
}

// GetQuote retrieves the latest quote for a market. It returns
// domain.ErrNotFound when the key does not exist or has expired.
func (qc *QuoteCache) GetQuote(ctx context.Context, venue domain.Venue, marketID string) (domain.Quote, error) {
	data, err := qc.rdb.Get(ctx, quoteKey(venue, marketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Quote{}, domain.ErrNotFound
		}
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", marketID, err)
	}

	var q domain.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: unmarshal quote %s: %w", marketID, err)
	}
	return q, nil
}

// GetQuotes retrieves the latest quotes for multiple markets using a
// pipeline. Markets whose keys do not exist are silently omitted from the
// result map.
func (qc *QuoteCache) GetQuotes(ctx context.Context, venue domain.Venue, marketIDs []string) (map[string]domain.Quote, error) {
	if len(marketIDs) == 0 {
		return map[string]domain.Quote{}, nil
	}

	pipe := qc.rdb.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(marketIDs))
	for _, id := range marketIDs {
		cmds[id] = pipe.Get(ctx, quoteKey(venue, id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	result := make(map[string]domain.Quote, len(marketIDs))
	for id, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var q domain.Quote
		if err := json.Unmarshal(data, &q); err != nil {
			continue
		}
		result[id] = q
	}

	return result, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
