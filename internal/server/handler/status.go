package handler

import (
	"net/http"
	"time"
)

// StatusHandler reports the running mode and uptime.
type StatusHandler struct {
	Mode      string
	PairCount int
	StartedAt time.Time
}

// NewStatusHandler creates a StatusHandler for the given mode and pair count.
func NewStatusHandler(mode string, pairCount int) *StatusHandler {
	return &StatusHandler{Mode: mode, PairCount: pairCount, StartedAt: time.Now().UTC()}
}

// GetStatus responds with the current mode, configured pair count, and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	uptime := int64(time.Since(h.StartedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"pairs":          h.PairCount,
		"uptime_seconds": uptime,
	})
}
