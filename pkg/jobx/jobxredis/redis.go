// Package jobxredis is a jobx.Queue on Redis. Ready jobs sit in a list per
// queue, delayed jobs in a sorted set scored by due time, and job state in a
// string key per job that expires once the job reaches a final state.
package jobxredis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Abraxas-365/gatekeeper/pkg/jobx"
	"github.com/redis/go-redis/v9"
)

const defaultRetention = 24 * time.Hour

// RedisQueue implements jobx.Queue backed by Redis.
type RedisQueue struct {
	rdb       redis.UniversalClient
	retention time.Duration
}

// Option configures a RedisQueue.
type Option func(*RedisQueue)

// WithRetention sets how long finished jobs stay readable
func WithRetention(d time.Duration) Option {
	return func(q *RedisQueue) { q.retention = d }
}

// NewRedisQueue creates a new Redis-backed queue.
func NewRedisQueue(rdb redis.UniversalClient, opts ...Option) *RedisQueue {
	q := &RedisQueue{rdb: rdb, retention: defaultRetention}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

var _ jobx.Queue = (*RedisQueue)(nil)

func queueKey(name string) string     { return fmt.Sprintf("jobx:queue:%s", name) }
func scheduledKey(name string) string { return fmt.Sprintf("jobx:scheduled:%s", name) }
func jobKey(id string) string         { return fmt.Sprintf("jobx:job:%s", id) }

func (q *RedisQueue) ttlFor(job *jobx.JobInfo) time.Duration {
	switch job.Status {
	case jobx.JobStatusCompleted, jobx.JobStatusFailed:
		return q.retention
	default:
		return 0
	}
}

// Push stores the job and either queues it or schedules it, in one
// transaction.
func (q *RedisQueue) Push(ctx context.Context, job *jobx.JobInfo, at time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return jobx.ErrInvalidJob("job is not JSON encodable").WithDetail("error", err.Error())
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	if at.After(job.UpdatedAt) {
		pipe.ZAdd(ctx, scheduledKey(job.Queue), redis.Z{Score: float64(at.Unix()), Member: job.ID})
	} else {
		pipe.LPush(ctx, queueKey(job.Queue), job.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return jobx.ErrBackend("push", err).WithDetail("queue", job.Queue)
	}
	return nil
}

func (q *RedisQueue) Get(ctx context.Context, jobID string) (*jobx.JobInfo, error) {
	data, err := q.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, jobx.ErrJobNotFound(jobID)
		}
		return nil, jobx.ErrBackend("get", err).WithDetail("job_id", jobID)
	}

	var info jobx.JobInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, jobx.ErrInvalidJob("stored job is corrupted").WithDetail("job_id", jobID)
	}
	return &info, nil
}

func (q *RedisQueue) Save(ctx context.Context, job *jobx.JobInfo) error {
	data, err := json.Marshal(job)
	if err != nil {
		return jobx.ErrInvalidJob("job is not JSON encodable").WithDetail("error", err.Error())
	}
	if err := q.rdb.Set(ctx, jobKey(job.ID), data, q.ttlFor(job)).Err(); err != nil {
		return jobx.ErrBackend("save", err).WithDetail("job_id", job.ID)
	}
	return nil
}

// Dequeue blocks until a job is available from one of the given queues or
// the timeout expires, then marks it active.
func (q *RedisQueue) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*jobx.JobInfo, error) {
	keys := make([]string, len(queues))
	for i, name := range queues {
		keys[i] = queueKey(name)
	}

	result, err := q.rdb.BRPop(ctx, timeout, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil, nil
		}
		return nil, jobx.ErrBackend("dequeue", err)
	}

	// result[0] = key, result[1] = job ID
	info, err := q.Get(ctx, result[1])
	if err != nil {
		return nil, err
	}

	info.Status = jobx.JobStatusActive
	info.Attempts++
	info.UpdatedAt = time.Now().UTC()
	if err := q.Save(ctx, info); err != nil {
		return nil, err
	}
	return info, nil
}

// promoteScript moves due ids from the sorted set to the list atomically.
var promoteScript = redis.NewScript(`
local scheduled_key = KEYS[1]
local queue_key = KEYS[2]
local now = tonumber(ARGV[1])
local ids = redis.call('ZRANGEBYSCORE', scheduled_key, '-inf', now)
if #ids > 0 then
    for _, id in ipairs(ids) do
        redis.call('LPUSH', queue_key, id)
    end
    redis.call('ZREMRANGEBYSCORE', scheduled_key, '-inf', now)
end
return #ids
`)

func (q *RedisQueue) PromoteDue(ctx context.Context, queues []string, now time.Time) error {
	ts := strconv.FormatInt(now.Unix(), 10)

	for _, name := range queues {
		err := promoteScript.Run(ctx, q.rdb, []string{scheduledKey(name), queueKey(name)}, ts).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return jobx.ErrBackend("promote", err).WithDetail("queue", name)
		}
	}
	return nil
}
