package redis

import (
	"context"
	"time"

	"hackathon-ai-jury/internal/domain/model"

	"github.com/go-redis/redis/v8"
)

// JobStatusCache keeps a short-lived copy of each job's status so the
// polling path doesn't hit Postgres on every request. The durable row
// stays the source of truth; a miss here is always answered from the
// repository.
type JobStatusCache struct {
	cli RedisClient
	ttl time.Duration
}

func NewJobStatusCache(cli RedisClient, ttl time.Duration) *JobStatusCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &JobStatusCache{cli: cli, ttl: ttl}
}

func jobStatusKey(jobID string) string { return "jury:job:status:" + jobID }

func (c *JobStatusCache) SetStatus(ctx context.Context, jobID string, status model.JobStatus) error {
	return c.cli.Set(ctx, jobStatusKey(jobID), string(status), c.ttl)
}

func (c *JobStatusCache) GetStatus(ctx context.Context, jobID string) (model.JobStatus, bool, error) {
	val, err := c.cli.Get(ctx, jobStatusKey(jobID))
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return model.JobStatus(val), true, nil
}

func (c *JobStatusCache) Invalidate(ctx context.Context, jobID string) error {
	return c.cli.Del(ctx, jobStatusKey(jobID))
}
