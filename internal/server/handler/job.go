package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// JobHandler exposes collection-job progress from the job cache.
type JobHandler struct {
	jobs   domain.JobCache
	logger *slog.Logger
}

// NewJobHandler creates a JobHandler over the given cache.
func NewJobHandler(jobs domain.JobCache, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger}
}

// Get returns the progress record for one collection job.
// GET /api/jobs/{id}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get job failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	writeJSON(w, http.StatusOK, job)
}
