package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"telegram-image-ai/internal/domain"
	"telegram-image-ai/internal/domain/ports/adapter"
)

var _ adapter.JobQueue = (*JobQueue)(nil)

// JobQueue is a sorted set of job ids scored by the time each becomes
// eligible for pickup. Immediate jobs score now, retries score their
// backoff deadline. Only ids live here; the jobs table stays the source
// of truth, so a lost or replayed queue entry is harmless.
type JobQueue struct {
	cli *redis.Client
	key string
}

func NewJobQueue(c *Client, key string) *JobQueue {
	if key == "" {
		key = "jobs:ready"
	}
	return &JobQueue{cli: c.cli, key: key}
}

func (q *JobQueue) Enqueue(ctx context.Context, jobID string, availableAt time.Time) error {
	return q.cli.ZAddNX(ctx, q.key, &redis.Z{
		Score:  float64(availableAt.UnixMilli()),
		Member: jobID,
	}).Err()
}

// luaPop atomically takes the oldest eligible member, so two workers
// never dequeue the same id.
var luaPop = redis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, 1)
if #ids == 0 then
	return false
end
redis.call("ZREM", KEYS[1], ids[1])
return ids[1]`)

func (q *JobQueue) Dequeue(ctx context.Context) (string, error) {
	res, err := luaPop.Run(ctx, q.cli, []string{q.key}, time.Now().UnixMilli()).Result()
	if err == redis.Nil {
		return "", domain.ErrQueueEmpty
	}
	if err != nil {
		return "", err
	}
	id, ok := res.(string)
	if !ok {
		return "", domain.ErrQueueEmpty
	}
	return id, nil
}

func (q *JobQueue) Pending(ctx context.Context) (int64, error) {
	return q.cli.ZCard(ctx, q.key).Result()
}
