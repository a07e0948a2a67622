package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// PositionHandler serves the tracked hedge positions.
type PositionHandler struct {
	positions domain.PositionStore
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given store and logger.
func NewPositionHandler(positions domain.PositionStore, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// List returns all open hedge positions. Deployments wired with the
// unsupported store variant answer 501.
// GET /api/positions
func (h *PositionHandler) List(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.GetOpen(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrPositionsUnsupported) {
			writeError(w, http.StatusNotImplemented, "position tracking not supported")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}
