package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// PairHandler lists the configured market pairs with their stored snapshot
// counts.
type PairHandler struct {
	pairs  []domain.MarketPair
	snaps  domain.SnapshotStore
	logger *slog.Logger
}

// NewPairHandler creates a PairHandler. snaps is optional; when nil, snapshot
// counts are reported as zero.
func NewPairHandler(pairs []domain.MarketPair, snaps domain.SnapshotStore, logger *slog.Logger) *PairHandler {
	return &PairHandler{pairs: pairs, snaps: snaps, logger: logger}
}

// pairEntry is one row in the pairs listing.
type pairEntry struct {
	ID              string  `json:"id"`
	PolymarketID    string  `json:"polymarket_id"`
	KalshiTicker    string  `json:"kalshi_ticker"`
	Correlation     float64 `json:"correlation"`
	ResolutionScore float64 `json:"resolution_score"`
	SnapshotCount   int64   `json:"snapshot_count"`
}

// List returns every configured pair.
// GET /api/pairs
func (h *PairHandler) List(w http.ResponseWriter, r *http.Request) {
	entries := make([]pairEntry, 0, len(h.pairs))
	for _, p := range h.pairs {
		e := pairEntry{
			ID:              p.ID,
			PolymarketID:    p.First.ID,
			KalshiTicker:    p.Second.ID,
			Correlation:     p.Correlation,
			ResolutionScore: p.ResolutionScore,
		}
		if h.snaps != nil {
			count, err := h.snaps.CountByPair(r.Context(), p.ID)
			if err != nil {
				h.logger.WarnContext(r.Context(), "handler: snapshot count failed",
					slog.String("pair_id", p.ID),
					slog.String("error", err.Error()),
				)
			} else {
				e.SnapshotCount = count
			}
		}
		entries = append(entries, e)
	}

	writeJSON(w, http.StatusOK, map[string]any{"pairs": entries})
}
