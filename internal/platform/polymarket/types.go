package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Polymarket Gamma API.
type APIMarket struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	ConditionID   string   `json:"condition_id"`
	Slug          string   `json:"slug"`
	ActiveFromAPI flexBool `json:"active"` // API may send bool or "true"/"false" string
	Closed        bool     `json:"closed"`
	Outcomes      string   `json:"outcomes"`      // JSON-encoded: e.g. "[\"Yes\",\"No\"]"
	OutcomePrices string   `json:"outcomePrices"` // JSON-encoded: e.g. "[\"0.5\",\"0.5\"]"
	Tokens        []Token  `json:"tokens"`
	Volume        string   `json:"volume"`
	Category      string   `json:"category"`
	EndDateISO    string   `json:"end_date_iso"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
	ClobTokenIDs  string   `json:"clobTokenIds"` // JSON-encoded: e.g. "[\"123\",\"456\"]"
	Active        bool     `json:"is_active"`
}

// Token represents a token entry inside the Gamma API market response.
type Token struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
	Winner  bool   `json:"winner"`
}

// ToMarket converts a Gamma APIMarket to the venue-neutral market model.
func (m *APIMarket) ToMarket() domain.Market {
	dm := domain.Market{
		ID:       m.ID,
		Venue:    domain.VenuePolymarket,
		Question: m.Question,
		Slug:     m.Slug,
	}
	if m.Category != "" {
		dm.Category = []string{m.Category}
	}

	if v, err := strconv.ParseFloat(m.Volume, 64); err == nil {
		dm.Volume = v
	}

	// Status (support both Active and ActiveFromAPI from Gamma).
	if m.Closed {
		dm.Status = domain.MarketStatusClosed
	} else if m.Active || bool(m.ActiveFromAPI) {
		dm.Status = domain.MarketStatusActive
	} else {
		dm.Status = domain.MarketStatusSettled
	}

	if t, err := time.Parse(time.RFC3339, m.CreatedAt); err == nil {
		dm.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, m.UpdatedAt); err == nil {
		dm.UpdatedAt = t
	}
	if m.EndDateISO != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDateISO); err == nil {
			dm.CloseTime = &t
		}
	}

	return dm
}

// TokenPair holds the CLOB token IDs for the two outcomes of one market.
type TokenPair struct {
	Yes string
	No  string
}

// tokenPair extracts the YES/NO CLOB token IDs. Gamma sends them either as
// a tokens array with outcome labels or as a JSON-encoded id list in market
// order (YES first).
func (m *APIMarket) tokenPair() (TokenPair, bool) {
	var tp TokenPair
	for _, t := range m.Tokens {
		switch {
		case strings.EqualFold(t.Outcome, "Yes"):
			tp.Yes = t.TokenID
		case strings.EqualFold(t.Outcome, "No"):
			tp.No = t.TokenID
		}
	}
	if tp.Yes != "" && tp.No != "" {
		return tp, true
	}

	var ids []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err == nil && len(ids) >= 2 {
		return TokenPair{Yes: ids[0], No: ids[1]}, true
	}
	return TokenPair{}, false
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// BookResponse is the orderbook for one token as returned by the CLOB API.
type BookResponse struct {
	Market    string         `json:"market"`
	AssetID   string         `json:"asset_id"`
	Bids      []WSPriceLevel `json:"bids"`
	Asks      []WSPriceLevel `json:"asks"`
	Timestamp string         `json:"timestamp"`
}

// HistoryResponse is the CLOB prices-history payload.
type HistoryResponse struct {
	History []HistoryPoint `json:"history"`
}

// HistoryPoint is one sample of the prices-history series.
type HistoryPoint struct {
	T int64   `json:"t"` // Unix seconds
	P float64 `json:"p"` // YES probability
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// BookMessage represents a full orderbook snapshot delivered over WebSocket.
type BookMessage struct {
	AssetID   string         `json:"asset_id"`
	Market    string         `json:"market"`
	Bids      []WSPriceLevel `json:"bids"`
	Asks      []WSPriceLevel `json:"asks"`
	Timestamp string         `json:"timestamp"`
	Hash      string         `json:"hash"`
}

// WSPriceLevel is a single bid/ask level in string-encoded decimal form.
type WSPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// WSCommand is the JSON payload sent to the WebSocket to subscribe/unsubscribe.
type WSCommand struct {
	Type    string   `json:"type"` // "subscribe" or "unsubscribe"
	Channel string   `json:"channel,omitempty"`
	Assets  []string `json:"assets_ids,omitempty"`
}

// --------------------------------------------------------------------------
// Conversion helpers
// --------------------------------------------------------------------------

// bookSide collapses one book side into its best price and the size resting
// there. better reports whether a beats b for this side of the book.
func bookSide(levels []WSPriceLevel, better func(a, b float64) bool) (price, size float64) {
	for _, lvl := range levels {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			continue
		}
		s, _ := strconv.ParseFloat(lvl.Size, 64)
		if price == 0 || better(p, price) {
			price, size = p, s
		}
	}
	return price, size
}

// yesQuote builds the YES-side quote from a token orderbook and derives the
// NO side from complement prices. Polymarket books are per-token; the NO
// token's book mirrors the YES book, so one fetch covers both sides.
func yesQuote(bids, asks []WSPriceLevel, marketID string, ts time.Time) domain.Quote {
	q := domain.Quote{
		MarketID:  marketID,
		Venue:     domain.VenuePolymarket,
		UpdatedAt: ts,
	}
	bid, bidSize := bookSide(bids, func(a, b float64) bool { return a > b })
	ask, askSize := bookSide(asks, func(a, b float64) bool { return a < b })

	q.Yes.Bid = bid
	q.Yes.Ask = ask
	q.Yes.Liquidity = askSize
	if bid > 0 || ask > 0 {
		q.Yes.Mid = midPrice(bid, ask)
	}

	if ask > 0 {
		q.No.Bid = 1 - ask
	}
	if bid > 0 {
		q.No.Ask = 1 - bid
	}
	q.No.Liquidity = bidSize
	if q.No.Bid > 0 || q.No.Ask > 0 {
		q.No.Mid = midPrice(q.No.Bid, q.No.Ask)
	}
	return q
}

func midPrice(bid, ask float64) float64 {
	if bid == 0 {
		return ask
	}
	if ask == 0 {
		return bid
	}
	return (bid + ask) / 2
}

// parseWSTimestamp handles both Unix-milliseconds and RFC3339 forms.
func parseWSTimestamp(s string, fallback time.Time) time.Time {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return fallback
}
