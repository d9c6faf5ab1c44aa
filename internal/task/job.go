package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common errors returned by queues.
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// Job is one unit of queued work. ID identifies the attempt chain: a job
// rescheduled for retry keeps its ID and increments Attempt.
type Job struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	// raw is the serialized form a job was dequeued as; the Redis queue
	// needs it to remove the job from the processing list.
	raw string
}

// Decode unmarshals the job payload into v.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", j.Name, err)
	}
	return nil
}

// Handler executes a job. A returned error is logged by the Runner; handlers
// that want another attempt call Queue.ScheduleRetry themselves.
type Handler func(ctx context.Context, job Job) error

// Enqueuer is the producer side of a queue.
type Enqueuer interface {
	// Enqueue serializes payload as JSON and queues it under name. It returns
	// the job ID.
	Enqueue(ctx context.Context, name string, payload any) (string, error)
	// ScheduleRetry queues job again after delay with Attempt incremented.
	ScheduleRetry(ctx context.Context, job Job, delay time.Duration) error
}

// Queue is a job queue consumed by a Runner.
type Queue interface {
	Enqueuer
	// Dequeue blocks until a job is available or ctx is done.
	Dequeue(ctx context.Context) (Job, error)
	// Ack marks a dequeued job as finished.
	Ack(ctx context.Context, job Job) error
	Close() error
}

func newJob(name string, payload any, now time.Time) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("failed to encode %s payload: %w", name, err)
	}
	return Job{
		ID:         uuid.NewString(),
		Name:       name,
		Payload:    raw,
		EnqueuedAt: now.UTC(),
	}, nil
}
