package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a background processing job.
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusStarted TaskStatus = "started"
	TaskStatusRetry   TaskStatus = "retry"
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailure TaskStatus = "failure"
	TaskStatusRevoked TaskStatus = "revoked"
)

// Progress checkpoints recorded by the document pipeline.
const (
	ProgressStarted   = 10
	ProgressExtracted = 50
	ProgressCounted   = 70
	ProgressDone      = 100
)

// DefaultMaxRetries is the retry cap applied when none is configured.
const DefaultMaxRetries = 3

// ResourceTypeDocument is the resource type recorded for document jobs.
const ResourceTypeDocument = "document"

// Common validation errors for TaskRecord
var (
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrEmptyTaskName     = errors.New("task name cannot be empty")
	ErrInvalidTaskStatus = errors.New("invalid task status")
	ErrInvalidProgress   = errors.New("task progress must be between 0 and 100")
)

// TaskRecord is the durable record of one processing attempt chain. Retries
// and redeliveries of the same queue job update the same record.
type TaskRecord struct {
	TaskID       string          `json:"task_id"`
	TaskName     string          `json:"task_name"`
	TaskType     string          `json:"task_type"`
	Status       TaskStatus      `json:"status"`
	Progress     int             `json:"progress"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        *string         `json:"error,omitempty"`
	Traceback    *string         `json:"-"`
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	ResourceType string          `json:"resource_type"`
	ResourceID   uuid.UUID       `json:"resource_id"`
	TenantID     uuid.UUID       `json:"tenant_id"`
	UserID       *uuid.UUID      `json:"user_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewTaskRecord creates a started record for a job that has just begun
// executing.
func NewTaskRecord(
	taskID, taskName, taskType string,
	resourceID, tenantID uuid.UUID,
	maxRetries int,
	now time.Time,
) (*TaskRecord, error) {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	rec := &TaskRecord{
		TaskID:       taskID,
		TaskName:     taskName,
		TaskType:     taskType,
		Status:       TaskStatusStarted,
		StartedAt:    &now,
		MaxRetries:   maxRetries,
		ResourceType: ResourceTypeDocument,
		ResourceID:   resourceID,
		TenantID:     tenantID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Validate checks if the TaskRecord has valid data.
func (t *TaskRecord) Validate() error {
	if t.TaskID == "" {
		return ErrEmptyTaskID
	}
	if t.TaskName == "" {
		return ErrEmptyTaskName
	}
	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}
	if t.Progress < 0 || t.Progress > 100 {
		return ErrInvalidProgress
	}
	return nil
}

// IsTerminal reports whether the record will not change again.
func (t *TaskRecord) IsTerminal() bool {
	switch t.Status {
	case TaskStatusSuccess, TaskStatusFailure, TaskStatusRevoked:
		return true
	default:
		return false
	}
}

// Start begins a new attempt. Progress restarts at zero because it is only
// monotonic within a single attempt.
func (t *TaskRecord) Start(now time.Time) {
	t.Status = TaskStatusStarted
	t.Progress = 0
	t.StartedAt = &now
	t.CompletedAt = nil
	t.UpdatedAt = now
}

// SetProgress records a checkpoint. Lower values than the current progress
// are ignored.
func (t *TaskRecord) SetProgress(progress int, now time.Time) error {
	if progress < 0 || progress > 100 {
		return ErrInvalidProgress
	}
	if progress > t.Progress {
		t.Progress = progress
	}
	t.UpdatedAt = now
	return nil
}

// Succeed marks the task successful with the given result payload.
func (t *TaskRecord) Succeed(result any, now time.Time) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	t.Status = TaskStatusSuccess
	t.Progress = ProgressDone
	t.Result = raw
	t.Error = nil
	t.Traceback = nil
	t.CompletedAt = &now
	t.UpdatedAt = now
	return nil
}

// RecordFailure registers a failed attempt. When the retry budget allows
// another attempt it increments RetryCount, sets status retry and returns
// true. Otherwise the task becomes a permanent failure and false is returned.
func (t *TaskRecord) RecordFailure(message, trace string, now time.Time) bool {
	t.Error = &message
	if trace != "" {
		t.Traceback = &trace
	}
	t.UpdatedAt = now
	if t.RetryCount < t.MaxRetries {
		t.RetryCount++
		t.Status = TaskStatusRetry
		return true
	}
	t.Status = TaskStatusFailure
	t.CompletedAt = &now
	return false
}

// Fail marks the task permanently failed without consuming retry budget.
func (t *TaskRecord) Fail(message string, now time.Time) {
	t.Error = &message
	t.Status = TaskStatusFailure
	t.CompletedAt = &now
	t.UpdatedAt = now
}

// Revoke marks the task revoked.
func (t *TaskRecord) Revoke(reason string, now time.Time) {
	t.Error = &reason
	t.Status = TaskStatusRevoked
	t.CompletedAt = &now
	t.UpdatedAt = now
}

func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusStarted, TaskStatusRetry,
		TaskStatusSuccess, TaskStatusFailure, TaskStatusRevoked:
		return true
	default:
		return false
	}
}
