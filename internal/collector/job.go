package collector

import (
	"context"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// RunJob runs a collection under a CollectionJob progress record. The job
// moves pending -> running -> completed|failed; failed is reached only when
// every pair in the job errored, since collection is best-effort rather
// than all-or-nothing. Each job belongs to exactly one RunJob invocation
// and reaches the caller only through onUpdate copies.
func (c *Collector) RunJob(ctx context.Context, pairs []domain.MarketPair, dr DateRange, onUpdate UpdateFunc) (Result, domain.CollectionJob) {
	job := domain.CollectionJob{
		ID:        uuid.NewString(),
		Status:    domain.JobStatusPending,
		Progress:  domain.JobProgress{PairsTotal: len(pairs)},
		CreatedAt: c.now().UTC(),
	}
	publish := func() {
		if onUpdate != nil {
			onUpdate(job)
		}
	}
	publish()

	started := c.now().UTC()
	job.Status = domain.JobStatusRunning
	job.StartedAt = &started
	publish()

	res := c.collect(ctx, pairs, dr, func(completed, total int, pair domain.MarketPair, err error) {
		job.Progress.PairsCompleted = completed
		job.Progress.CurrentPair = pair.Label()
		if err != nil {
			job.Progress.PairsFailed++
		}
		publish()
	})

	job.Errors = res.Errors
	job.Progress.Snapshots = len(res.Snapshots)
	job.Progress.CurrentPair = ""

	completed := c.now().UTC()
	job.CompletedAt = &completed
	if len(pairs) > 0 && job.Progress.PairsFailed == len(pairs) {
		job.Status = domain.JobStatusFailed
	} else {
		job.Status = domain.JobStatusCompleted
	}
	publish()

	return res, job
}
