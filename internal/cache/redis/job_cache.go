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

// JobCache implements domain.JobCache: collection-job progress is written
// after every pair so operators can poll a long-running job from outside the
// process that owns it.
type JobCache struct {
	rdb *redis.Client
}

// NewJobCache creates a JobCache backed by the given Client.
func NewJobCache(c *Client) *JobCache {
	return &JobCache{rdb: c.Underlying()}
}

func jobKey(id string) string {
	return "job:" + id
}

// SetJob stores the job's current state with the given TTL.
func (jc *JobCache) SetJob(ctx context.Context, job domain.CollectionJob, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("redis: marshal job %s: %w", job.ID, err)
	}
	if err := jc.rdb.Set(ctx, jobKey(job.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob retrieves a job's last published state. It returns
// domain.ErrNotFound when the job is unknown or its record has expired.
func (jc *JobCache) GetJob(ctx context.Context, id string) (domain.CollectionJob, error) {
	data, err := jc.rdb.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.CollectionJob{}, domain.ErrNotFound
		}
		return domain.CollectionJob{}, fmt.Errorf("redis: get job %s: %w", id, err)
	}

	var job domain.CollectionJob
	if err := json.Unmarshal(data, &job); err != nil {
		return domain.CollectionJob{}, fmt.Errorf("redis: unmarshal job %s: %w", id, err)
	}
	return job, nil
}

// Compile-time interface check.
var _ domain.JobCache = (*JobCache)(nil)
