package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docintel-api/internal/domain"
)

// TaskRecordStore persists the lifecycle of background processing jobs.
type TaskRecordStore interface {
	// Get retrieves a task record by its queue handle.
	// Returns ErrTaskNotFound if it does not exist.
	Get(ctx context.Context, taskID string) (*domain.TaskRecord, error)

	// GetForTenant retrieves a task record owned by tenantID.
	GetForTenant(ctx context.Context, tenantID uuid.UUID, taskID string) (*domain.TaskRecord, error)

	// Save inserts the record or replaces the existing row with the same task ID.
	Save(ctx context.Context, rec *domain.TaskRecord) error

	// FindStale returns records in status last updated before cutoff, oldest
	// first, at most limit of them.
	FindStale(ctx context.Context, status domain.TaskStatus, cutoff time.Time, limit int) ([]*domain.TaskRecord, error)
}

// APIKeyStore resolves API keys for authentication.
type APIKeyStore interface {
	// FindByPrefix returns the keys whose clear-text prefix matches.
	FindByPrefix(ctx context.Context, prefix string) ([]*domain.APIKey, error)

	// TouchLastUsed records that the key was used.
	TouchLastUsed(ctx context.Context, id uuid.UUID) error
}
