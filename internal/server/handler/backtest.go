package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// BacktestHandler serves backtest run summaries.
type BacktestHandler struct {
	store  domain.BacktestStore
	logger *slog.Logger
}

// NewBacktestHandler creates a BacktestHandler over the given store.
func NewBacktestHandler(store domain.BacktestStore, logger *slog.Logger) *BacktestHandler {
	return &BacktestHandler{store: store, logger: logger}
}

// ListRecent returns the most recent backtest summaries.
// GET /api/backtests?limit=20
func (h *BacktestHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 20, 100)

	runs, err := h.store.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list backtests failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list backtests")
		return
	}
	if runs == nil {
		runs = []domain.BacktestSummary{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"backtests": runs})
}

// Get returns one backtest summary by run id.
// GET /api/backtests/{id}
func (h *BacktestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing backtest id")
		return
	}

	run, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "backtest not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get backtest failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get backtest")
		return
	}

	writeJSON(w, http.StatusOK, run)
}
