package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MemoryQueue is a buffered in-process Queue. Jobs are lost on restart;
// the stuck-document sweep re-enqueues anything left pending.
type MemoryQueue struct {
	jobs   chan Job
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	timers map[*time.Timer]struct{}
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates a queue holding at most size ready jobs.
func NewMemoryQueue(size int, logger *slog.Logger) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryQueue{
		jobs:   make(chan Job, size),
		logger: logger.With("component", "memory_queue"),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Enqueue implements Enqueuer. It fails with ErrQueueFull rather than block
// the caller.
func (q *MemoryQueue) Enqueue(_ context.Context, name string, payload any) (string, error) {
	job, err := newJob(name, payload, time.Now())
	if err != nil {
		return "", err
	}
	if err := q.push(job); err != nil {
		return "", err
	}
	q.logger.Debug("job enqueued",
		"job_id", job.ID,
		"job_name", job.Name,
		"queue_len", len(q.jobs),
		"queue_cap", cap(q.jobs))
	return job.ID, nil
}

func (q *MemoryQueue) push(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.jobs))
	}
}

// ScheduleRetry implements Enqueuer.
func (q *MemoryQueue) ScheduleRetry(_ context.Context, job Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	job.Attempt++
	job.raw = ""
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()
		if err := q.push(job); err != nil {
			q.logger.Error("failed to requeue retried job",
				"job_id", job.ID,
				"job_name", job.Name,
				"error", err)
		}
	})
	q.timers[timer] = struct{}{}
	return nil
}

// Dequeue implements Queue.
func (q *MemoryQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case job, ok := <-q.jobs:
		if !ok {
			return Job{}, ErrQueueClosed
		}
		return job, nil
	}
}

// Ack implements Queue. Jobs leave a MemoryQueue when dequeued.
func (q *MemoryQueue) Ack(context.Context, Job) error { return nil }

// Len returns the number of ready jobs.
func (q *MemoryQueue) Len() int { return len(q.jobs) }

// Pending returns the number of scheduled retries that have not fired.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

// Close stops accepting jobs and cancels scheduled retries. Jobs already
// buffered can still be dequeued.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for t := range q.timers {
		t.Stop()
	}
	q.timers = nil
	close(q.jobs)
	q.logger.Info("task queue closed")
	return nil
}
