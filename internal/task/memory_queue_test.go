package task

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type docPayload struct {
	DocumentID string `json:"document_id"`
}

func TestMemoryQueue_EnqueueDequeue(t *testing.T) {
	t.Parallel()
	q := NewMemoryQueue(4, discardLogger())
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "process_document", docPayload{DocumentID: "d1"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, q.Len())

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, "process_document", job.Name)
	assert.Zero(t, job.Attempt)

	var p docPayload
	require.NoError(t, job.Decode(&p))
	assert.Equal(t, "d1", p.DocumentID)
}

func TestMemoryQueue_Full(t *testing.T) {
	t.Parallel()
	q := NewMemoryQueue(1, discardLogger())
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "a", nil)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "b", nil)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestMemoryQueue_Closed(t *testing.T) {
	t.Parallel()
	q := NewMemoryQueue(2, discardLogger())
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "a", nil)
	require.NoError(t, err)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close(), "close is idempotent")

	_, err = q.Enqueue(ctx, "b", nil)
	assert.ErrorIs(t, err, ErrQueueClosed)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err, "buffered jobs drain after close")
	assert.Equal(t, "a", job.Name)

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestMemoryQueue_DequeueHonorsContext(t *testing.T) {
	t.Parallel()
	q := NewMemoryQueue(1, discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueue_ScheduleRetry(t *testing.T) {
	t.Parallel()
	q := NewMemoryQueue(2, discardLogger())
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "a", docPayload{DocumentID: "d1"})
	require.NoError(t, err)
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, q.ScheduleRetry(ctx, job, 10*time.Millisecond))
	assert.Equal(t, 1, q.Pending())

	dctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	retried, err := q.Dequeue(dctx)
	require.NoError(t, err)
	assert.Equal(t, id, retried.ID, "retries keep the job ID")
	assert.Equal(t, 1, retried.Attempt)
	assert.JSONEq(t, `{"document_id":"d1"}`, string(retried.Payload))
	assert.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryQueue_CloseCancelsScheduledRetries(t *testing.T) {
	t.Parallel()
	q := NewMemoryQueue(2, discardLogger())
	ctx := context.Background()

	require.NoError(t, q.ScheduleRetry(ctx, Job{ID: "j", Name: "a"}, time.Hour))
	require.NoError(t, q.Close())
	assert.Zero(t, q.Pending())
	assert.ErrorIs(t, q.ScheduleRetry(ctx, Job{ID: "j", Name: "a"}, time.Millisecond), ErrQueueClosed)
}

func TestJob_DecodeError(t *testing.T) {
	t.Parallel()
	job := Job{Name: "process_document", Payload: []byte("not json")}
	var p docPayload
	err := job.Decode(&p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "process_document")
}
