package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docintel-api/internal/domain"
)

// SeekPosition is a keyset position in the (created_at DESC, id DESC)
// ordering of documents.
type SeekPosition struct {
	CreatedAt time.Time
	ID        uuid.UUID
	// Backward selects rows newer than the position instead of older.
	Backward bool
}

// DocumentListParams filters a tenant's document listing.
type DocumentListParams struct {
	TenantID       uuid.UUID
	Search         string
	Status         domain.DocumentStatus
	IncludeDeleted bool
	Seek           *SeekPosition
	// Limit is the number of rows to fetch. Callers ask for one more than
	// the page size to detect a following page.
	Limit int
}

// DocumentStats aggregates a tenant's documents.
type DocumentStats struct {
	TotalDocuments int64            `json:"total_documents"`
	TotalSize      int64            `json:"total_size"`
	ByStatus       map[string]int64 `json:"by_status"`
	ByType         map[string]int64 `json:"by_type"`
	RecentUploads  int64            `json:"recent_uploads"`
}

// DocumentStore defines the interface for document data access.
//
// Writes are split by actor: UpdateProcessing writes only the columns owned
// by the processing pipeline, UpdateMetadata only the columns a user can
// change. Concurrent writers therefore never overwrite each other's fields.
type DocumentStore interface {
	// Create saves a new document. Returns ErrInvalidEntity if validation fails.
	Create(ctx context.Context, doc *domain.Document) error

	// GetByID retrieves a document regardless of tenant, for background jobs.
	// Returns ErrDocumentNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error)

	// GetForTenant retrieves a document owned by tenantID, including soft
	// deleted ones. Returns ErrDocumentNotFound otherwise.
	GetForTenant(ctx context.Context, tenantID, id uuid.UUID) (*domain.Document, error)

	// UpdateProcessing persists status, extraction output, processing
	// timestamps and the error message.
	UpdateProcessing(ctx context.Context, doc *domain.Document) error

	// UpdateMetadata persists title, description, visibility, the deleted
	// flag and user-driven status changes (archive, reprocess).
	UpdateMetadata(ctx context.Context, doc *domain.Document) error

	// Delete removes the row permanently.
	Delete(ctx context.Context, tenantID, id uuid.UUID) error

	// List returns up to params.Limit documents ordered newest first.
	List(ctx context.Context, params DocumentListParams) ([]*domain.Document, error)

	// FindByHash returns the most recent non-deleted document of the tenant
	// with the given content hash, or ErrDocumentNotFound.
	FindByHash(ctx context.Context, tenantID uuid.UUID, hash string) (*domain.Document, error)

	// FindStale returns documents in status whose reference timestamp is
	// before cutoff. For processing documents the reference is
	// processing_started_at, otherwise updated_at.
	FindStale(ctx context.Context, status domain.DocumentStatus, cutoff time.Time, limit int) ([]*domain.Document, error)

	// Stats aggregates the tenant's non-deleted documents; RecentUploads
	// counts those created after since.
	Stats(ctx context.Context, tenantID uuid.UUID, since time.Time) (*DocumentStats, error)
}
