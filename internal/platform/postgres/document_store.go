package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/platform/logger"
	"github.com/phrazzld/docintel-api/internal/store"
)

const documentColumns = `
	id, tenant_id, uploaded_by, title, description, filename, storage_path,
	file_size, mime_type, content_hash, document_type, status, text_content,
	page_count, processing_started_at, processing_completed_at, error_message,
	is_public, is_deleted, deleted_at, created_at, updated_at`

// PostgresDocumentStore implements store.DocumentStore.
type PostgresDocumentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresDocumentStore creates a document store on db, which may be a
// *sql.DB or a *sql.Tx. If logger is nil, a default logger will be used.
func NewPostgresDocumentStore(db store.DBTX, logger *slog.Logger) *PostgresDocumentStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresDocumentStore{
		db:     db,
		logger: logger.With(slog.String("component", "document_store")),
	}
}

var _ store.DocumentStore = (*PostgresDocumentStore)(nil)

// WithTx returns a store that runs its queries inside tx.
func (s *PostgresDocumentStore) WithTx(tx *sql.Tx) *PostgresDocumentStore {
	return &PostgresDocumentStore{db: tx, logger: s.logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		d       domain.Document
		docType string
		status  string
	)
	err := row.Scan(
		&d.ID, &d.TenantID, &d.UploadedBy, &d.Title, &d.Description, &d.Filename, &d.StoragePath,
		&d.FileSize, &d.MimeType, &d.ContentHash, &docType, &status, &d.TextContent,
		&d.PageCount, &d.ProcessingStartedAt, &d.ProcessingCompletedAt, &d.ErrorMessage,
		&d.IsPublic, &d.IsDeleted, &d.DeletedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Type = domain.DocumentType(docType)
	d.Status = domain.DocumentStatus(status)
	return &d, nil
}

func scanDocuments(rows *sql.Rows) ([]*domain.Document, error) {
	defer func() { _ = rows.Close() }()
	var docs []*domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Create implements store.DocumentStore.
func (s *PostgresDocumentStore) Create(ctx context.Context, doc *domain.Document) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := doc.Validate(); err != nil {
		log.Warn("document validation failed during create",
			slog.String("error", err.Error()),
			slog.String("document_id", doc.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`
	_, err := s.db.ExecContext(ctx, query,
		doc.ID, doc.TenantID, doc.UploadedBy, doc.Title, doc.Description, doc.Filename, doc.StoragePath,
		doc.FileSize, doc.MimeType, doc.ContentHash, string(doc.Type), string(doc.Status), doc.TextContent,
		doc.PageCount, doc.ProcessingStartedAt, doc.ProcessingCompletedAt, doc.ErrorMessage,
		doc.IsPublic, doc.IsDeleted, doc.DeletedAt, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create document",
			slog.String("error", err.Error()),
			slog.String("document_id", doc.ID.String()),
			slog.String("tenant_id", doc.TenantID.String()))
		return MapError(err)
	}

	log.Debug("document created",
		slog.String("document_id", doc.ID.String()),
		slog.String("tenant_id", doc.TenantID.String()))
	return nil
}

// GetByID implements store.DocumentStore.
func (s *PostgresDocumentStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	return s.scanOne(ctx, row, id)
}

// GetForTenant implements store.DocumentStore.
func (s *PostgresDocumentStore) GetForTenant(ctx context.Context, tenantID, id uuid.UUID) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	return s.scanOne(ctx, row, id)
}

func (s *PostgresDocumentStore) scanOne(ctx context.Context, row *sql.Row, id uuid.UUID) (*domain.Document, error) {
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrDocumentNotFound
	}
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get document",
			slog.String("error", err.Error()),
			slog.String("document_id", id.String()))
		return nil, MapError(err)
	}
	return doc, nil
}

// UpdateProcessing implements store.DocumentStore.
func (s *PostgresDocumentStore) UpdateProcessing(ctx context.Context, doc *domain.Document) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET status = $2,
			text_content = $3,
			page_count = $4,
			processing_started_at = $5,
			processing_completed_at = $6,
			error_message = $7,
			updated_at = $8
		WHERE id = $1`,
		doc.ID, string(doc.Status), doc.TextContent, doc.PageCount,
		doc.ProcessingStartedAt, doc.ProcessingCompletedAt, doc.ErrorMessage, doc.UpdatedAt,
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to update document processing state",
			slog.String("error", err.Error()),
			slog.String("document_id", doc.ID.String()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrDocumentNotFound)
}

// UpdateMetadata implements store.DocumentStore.
func (s *PostgresDocumentStore) UpdateMetadata(ctx context.Context, doc *domain.Document) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents
		SET title = $3,
			description = $4,
			is_public = $5,
			is_deleted = $6,
			deleted_at = $7,
			status = $8,
			error_message = $9,
			updated_at = $10
		WHERE id = $1 AND tenant_id = $2`,
		doc.ID, doc.TenantID, doc.Title, doc.Description, doc.IsPublic,
		doc.IsDeleted, doc.DeletedAt, string(doc.Status), doc.ErrorMessage, doc.UpdatedAt,
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to update document metadata",
			slog.String("error", err.Error()),
			slog.String("document_id", doc.ID.String()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrDocumentNotFound)
}

// Delete implements store.DocumentStore. The document's task records are
// removed in the same transaction.
func (s *PostgresDocumentStore) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	db, ok := s.db.(*sql.DB)
	if !ok {
		return s.deleteWithTasks(ctx, tenantID, id)
	}
	return store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		return s.WithTx(tx).deleteWithTasks(ctx, tenantID, id)
	})
}

func (s *PostgresDocumentStore) deleteWithTasks(ctx context.Context, tenantID, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM task_records WHERE tenant_id = $1 AND resource_type = $2 AND resource_id = $3`,
		tenantID, domain.ResourceTypeDocument, id); err != nil {
		log.Error("failed to delete document task records",
			slog.String("error", err.Error()),
			slog.String("document_id", id.String()))
		return MapError(err)
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		log.Error("failed to delete document",
			slog.String("error", err.Error()),
			slog.String("document_id", id.String()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrDocumentNotFound)
}

// escapeLike escapes the LIKE wildcards of a user-supplied search term.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// buildListQuery renders the keyset listing query. Backward pages are read
// in ascending order so the rows nearest the cursor come first; List
// reverses them.
func buildListQuery(params store.DocumentListParams) (string, []any) {
	args := []any{params.TenantID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where := []string{"tenant_id = $1"}
	if !params.IncludeDeleted {
		where = append(where, "is_deleted = FALSE")
	}
	if params.Status != "" {
		where = append(where, "status = "+arg(string(params.Status)))
	}
	if q := strings.TrimSpace(params.Search); q != "" {
		p := arg("%" + escapeLike(q) + "%")
		where = append(where, fmt.Sprintf("(title ILIKE %[1]s OR filename ILIKE %[1]s OR description ILIKE %[1]s)", p))
	}

	order := "created_at DESC, id DESC"
	if params.Seek != nil {
		op := "<"
		if params.Seek.Backward {
			op = ">"
			order = "created_at ASC, id ASC"
		}
		where = append(where, fmt.Sprintf("(created_at, id) %s (%s, %s)",
			op, arg(params.Seek.CreatedAt), arg(params.Seek.ID)))
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY ` + order + ` LIMIT ` + arg(params.Limit)
	return query, args
}

// List implements store.DocumentStore.
func (s *PostgresDocumentStore) List(ctx context.Context, params store.DocumentListParams) ([]*domain.Document, error) {
	query, args := buildListQuery(params)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list documents",
			slog.String("error", err.Error()),
			slog.String("tenant_id", params.TenantID.String()))
		return nil, MapError(err)
	}
	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, MapError(err)
	}
	if params.Seek != nil && params.Seek.Backward {
		for i, j := 0, len(docs)-1; i < j; i, j = i+1, j-1 {
			docs[i], docs[j] = docs[j], docs[i]
		}
	}
	return docs, nil
}

// FindByHash implements store.DocumentStore.
func (s *PostgresDocumentStore) FindByHash(ctx context.Context, tenantID uuid.UUID, hash string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE tenant_id = $1 AND content_hash = $2 AND is_deleted = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, tenantID, hash)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrDocumentNotFound
	}
	if err != nil {
		return nil, MapError(err)
	}
	return doc, nil
}

// FindStale implements store.DocumentStore.
func (s *PostgresDocumentStore) FindStale(
	ctx context.Context,
	status domain.DocumentStatus,
	cutoff time.Time,
	limit int,
) ([]*domain.Document, error) {
	ref := "updated_at"
	if status == domain.DocumentStatusProcessing {
		ref = "processing_started_at"
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE status = $1 AND `+ref+` < $2
		ORDER BY `+ref+` ASC
		LIMIT $3`, string(status), cutoff, limit)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to find stale documents",
			slog.String("error", err.Error()),
			slog.String("status", string(status)))
		return nil, MapError(err)
	}
	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, MapError(err)
	}
	return docs, nil
}

// Stats implements store.DocumentStore.
func (s *PostgresDocumentStore) Stats(ctx context.Context, tenantID uuid.UUID, since time.Time) (*store.DocumentStats, error) {
	stats := &store.DocumentStats{
		ByStatus: map[string]int64{},
		ByType:   map[string]int64{},
	}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(file_size), 0),
			COUNT(*) FILTER (WHERE created_at > $2)
		FROM documents
		WHERE tenant_id = $1 AND is_deleted = FALSE`, tenantID, since,
	).Scan(&stats.TotalDocuments, &stats.TotalSize, &stats.RecentUploads)
	if err != nil {
		return nil, MapError(err)
	}

	for column, into := range map[string]map[string]int64{
		"status":        stats.ByStatus,
		"document_type": stats.ByType,
	} {
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+column+`, COUNT(*) FROM documents
			WHERE tenant_id = $1 AND is_deleted = FALSE
			GROUP BY `+column, tenantID)
		if err != nil {
			return nil, MapError(err)
		}
		for rows.Next() {
			var key string
			var n int64
			if err := rows.Scan(&key, &n); err != nil {
				_ = rows.Close()
				return nil, MapError(err)
			}
			into[key] = n
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, MapError(err)
		}
	}
	return stats, nil
}
