package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisQueueName prefixes the keys of the document queue.
const DefaultRedisQueueName = "docintel:queue:documents"

// dequeueWait bounds each blocking pop so Dequeue can observe cancellation.
const dequeueWait = time.Second

// RedisQueue is a durable Queue on three Redis keys: a ready list, a
// processing list holding jobs between Dequeue and Ack, and a sorted set of
// delayed retries scored by due time.
type RedisQueue struct {
	client     redis.UniversalClient
	ready      string
	processing string
	delayed    string
	logger     *slog.Logger
	closed     atomic.Bool
	now        func() time.Time
}

var _ Queue = (*RedisQueue)(nil)

// NewRedisQueue creates a queue whose keys are prefixed by name.
func NewRedisQueue(client redis.UniversalClient, name string, logger *slog.Logger) *RedisQueue {
	if name == "" {
		name = DefaultRedisQueueName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisQueue{
		client:     client,
		ready:      name + ":ready",
		processing: name + ":processing",
		delayed:    name + ":delayed",
		logger:     logger.With("component", "redis_queue", "queue", name),
		now:        time.Now,
	}
}

// Enqueue implements Enqueuer.
func (q *RedisQueue) Enqueue(ctx context.Context, name string, payload any) (string, error) {
	if q.closed.Load() {
		return "", ErrQueueClosed
	}
	job, err := newJob(name, payload, q.now())
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to encode job: %w", err)
	}
	if err := q.client.LPush(ctx, q.ready, raw).Err(); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	q.logger.Debug("job enqueued", "job_id", job.ID, "job_name", job.Name)
	return job.ID, nil
}

// ScheduleRetry implements Enqueuer.
func (q *RedisQueue) ScheduleRetry(ctx context.Context, job Job, delay time.Duration) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	due := q.now().Add(delay)
	if err := q.client.ZAdd(ctx, q.delayed, redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: raw,
	}).Err(); err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	return nil
}

// Dequeue implements Queue. The job is atomically moved to the processing
// list and stays there until Ack.
func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		if q.closed.Load() {
			return Job{}, ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}

		raw, err := q.client.BLMove(ctx, q.ready, q.processing, "RIGHT", "LEFT", dequeueWait).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			return Job{}, fmt.Errorf("failed to dequeue job: %w", err)
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.logger.Error("dropping undecodable job", "error", err)
			_ = q.client.LRem(ctx, q.processing, 1, raw).Err()
			continue
		}
		job.raw = raw
		return job, nil
	}
}

// Ack implements Queue.
func (q *RedisQueue) Ack(ctx context.Context, job Job) error {
	if job.raw == "" {
		return nil
	}
	if err := q.client.LRem(ctx, q.processing, 1, job.raw).Err(); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

// PromoteDue moves delayed jobs whose due time has passed onto the ready
// list and returns how many were moved. ZREM decides ownership so that
// concurrent pollers never promote the same job twice.
func (q *RedisQueue) PromoteDue(ctx context.Context) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed jobs: %w", err)
	}

	moved := 0
	for _, raw := range due {
		removed, err := q.client.ZRem(ctx, q.delayed, raw).Result()
		if err != nil {
			return moved, fmt.Errorf("failed to claim delayed job: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.ready, raw).Err(); err != nil {
			return moved, fmt.Errorf("failed to promote delayed job: %w", err)
		}
		moved++
	}
	return moved, nil
}

// RecoverInFlight returns jobs left on the processing list by a worker that
// died before acknowledging them. Call it once before starting workers.
func (q *RedisQueue) RecoverInFlight(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.ready, "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("failed to recover in-flight jobs: %w", err)
		}
		n++
	}
	if n > 0 {
		q.logger.Info("recovered in-flight jobs", "count", n)
	}
	return n, nil
}

// Len returns the number of ready jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.ready).Result()
}

// Close stops the queue. The Redis client is owned by the caller.
func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}
