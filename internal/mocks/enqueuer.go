package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docintel-api/internal/task"
)

// ScheduledRetry is a ScheduleRetry call captured by Enqueuer.
type ScheduledRetry struct {
	Job   task.Job
	Delay time.Duration
}

// Enqueuer records jobs instead of queuing them.
type Enqueuer struct {
	mu sync.Mutex

	EnqueueFn func(ctx context.Context, name string, payload any) (string, error)
	RetryErr  error

	Jobs    []task.Job
	Retries []ScheduledRetry
}

var _ task.Enqueuer = (*Enqueuer)(nil)

// Enqueue implements task.Enqueuer.
func (e *Enqueuer) Enqueue(ctx context.Context, name string, payload any) (string, error) {
	if e.EnqueueFn != nil {
		return e.EnqueueFn(ctx, name, payload)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	job := task.Job{ID: uuid.NewString(), Name: name, Payload: raw, EnqueuedAt: time.Now().UTC()}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Jobs = append(e.Jobs, job)
	return job.ID, nil
}

// ScheduleRetry implements task.Enqueuer.
func (e *Enqueuer) ScheduleRetry(_ context.Context, job task.Job, delay time.Duration) error {
	if e.RetryErr != nil {
		return e.RetryErr
	}
	job.Attempt++
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Retries = append(e.Retries, ScheduledRetry{Job: job, Delay: delay})
	return nil
}

// EnqueuedCount returns the number of enqueued jobs.
func (e *Enqueuer) EnqueuedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Jobs)
}
