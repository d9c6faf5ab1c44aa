package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docintel-api/internal/blob"
	"github.com/phrazzld/docintel-api/internal/cache"
	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/pagination"
	"github.com/phrazzld/docintel-api/internal/platform/logger"
	"github.com/phrazzld/docintel-api/internal/store"
)

// Cache namespaces owned by the document service.
const (
	ListNamespace  = "documents_v2"
	StatsNamespace = "document_stats"
)

// Messages returned with an upload.
const (
	UploadQueuedMessage   = "Document uploaded successfully and queued for processing"
	UploadPendingMessage  = "Document uploaded successfully; processing will start shortly"
	DefaultStatsWindow    = 7 * 24 * time.Hour
	DefaultListTTL        = 60 * time.Second
	DefaultStatsTTL       = 300 * time.Second
	DefaultMaxUploadBytes = 10 << 20
)

// DefaultAllowedExtensions are the upload extensions accepted when none are
// configured.
var DefaultAllowedExtensions = []string{".pdf", ".docx", ".txt", ".md"}

// DocumentEnqueuer queues a processing job for a stored document.
type DocumentEnqueuer interface {
	Enqueue(ctx context.Context, doc *domain.Document) (string, error)
}

// Config holds the document service limits.
type Config struct {
	MaxUploadBytes    int64
	AllowedExtensions []string
	ListTTL           time.Duration
	StatsTTL          time.Duration
	StatsWindow       time.Duration
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		MaxUploadBytes:    DefaultMaxUploadBytes,
		AllowedExtensions: DefaultAllowedExtensions,
		ListTTL:           DefaultListTTL,
		StatsTTL:          DefaultStatsTTL,
		StatsWindow:       DefaultStatsWindow,
	}
}

// Deps are the collaborators of DocumentService. Cache and OnUpload are
// optional.
type Deps struct {
	Documents store.DocumentStore
	Tasks     store.TaskRecordStore
	Blobs     blob.Store
	Pipeline  DocumentEnqueuer
	Cache     *cache.Cache
	// OnUpload observes the size of every accepted upload.
	OnUpload func(bytes int64)
}

// DocumentService implements the document use cases.
type DocumentService struct {
	docs     store.DocumentStore
	tasks    store.TaskRecordStore
	blobs    blob.Store
	pipeline DocumentEnqueuer
	cache    *cache.Cache
	onUpload func(int64)
	config   Config
	allowed  map[string]bool
	logger   *slog.Logger
	now      func() time.Time
}

// NewDocumentService creates a DocumentService. It returns an error if any
// required dependency is nil.
func NewDocumentService(deps Deps, cfg Config, logger *slog.Logger) (*DocumentService, error) {
	switch {
	case deps.Documents == nil:
		return nil, fmt.Errorf("%w: document store cannot be nil", domain.ErrValidation)
	case deps.Tasks == nil:
		return nil, fmt.Errorf("%w: task record store cannot be nil", domain.ErrValidation)
	case deps.Blobs == nil:
		return nil, fmt.Errorf("%w: blob store cannot be nil", domain.ErrValidation)
	case deps.Pipeline == nil:
		return nil, fmt.Errorf("%w: pipeline cannot be nil", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = def.MaxUploadBytes
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = def.AllowedExtensions
	}
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = def.ListTTL
	}
	if cfg.StatsTTL <= 0 {
		cfg.StatsTTL = def.StatsTTL
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = def.StatsWindow
	}

	allowed := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.ToLower(ext)] = true
	}

	onUpload := deps.OnUpload
	if onUpload == nil {
		onUpload = func(int64) {}
	}

	return &DocumentService{
		docs:     deps.Documents,
		tasks:    deps.Tasks,
		blobs:    deps.Blobs,
		pipeline: deps.Pipeline,
		cache:    deps.Cache,
		onUpload: onUpload,
		config:   cfg,
		allowed:  allowed,
		logger:   logger.With(slog.String("component", "document_service")),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// UploadInput is one uploaded file with its optional metadata.
type UploadInput struct {
	Filename    string
	Title       string
	Description string
	Data        []byte
}

// UploadResult is returned by Upload. TaskID is empty when the job could not
// be queued; the stuck-job sweep picks such documents up later.
type UploadResult struct {
	Document *domain.Document `json:"document"`
	TaskID   string           `json:"task_id"`
	Message  string           `json:"message"`
}

func (s *DocumentService) validateUpload(in UploadInput) error {
	if strings.TrimSpace(in.Filename) == "" {
		return fmt.Errorf("%w: filename is required", domain.ErrValidation)
	}
	ext := strings.ToLower(filepath.Ext(in.Filename))
	if !s.allowed[ext] {
		return fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedFileType, ext,
			strings.Join(s.config.AllowedExtensions, ", "))
	}
	if len(in.Data) == 0 {
		return ErrEmptyFile
	}
	if int64(len(in.Data)) > s.config.MaxUploadBytes {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit",
			ErrFileTooLarge, len(in.Data), s.config.MaxUploadBytes)
	}
	return nil
}

// Upload validates the file, stores it, creates the pending document and
// queues its processing job. Validation failures leave no trace: no blob, no
// row and no job.
func (s *DocumentService) Upload(ctx context.Context, p *domain.Principal, in UploadInput) (*UploadResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(slog.String("tenant_id", p.TenantID.String()))

	if err := s.validateUpload(in); err != nil {
		log.Debug("upload rejected", slog.String("reason", err.Error()))
		return nil, err
	}

	now := s.now()
	filename := blob.SanitizeFilename(in.Filename)
	path := blob.GeneratePath(p.TenantID, filename, now)
	hash := blob.ComputeHash(in.Data)
	mimeType := blob.DetectMimeType(filename, in.Data)

	doc, err := domain.NewDocument(p.TenantID, p.UserID, strings.TrimSpace(in.Title), filename,
		path, mimeType, hash, int64(len(in.Data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if desc := strings.TrimSpace(in.Description); desc != "" {
		doc.Description = &desc
	}

	if existing, err := s.docs.FindByHash(ctx, p.TenantID, hash); err == nil {
		log.Info("duplicate upload detected",
			slog.String("existing_document_id", existing.ID.String()),
			slog.String("content_hash", hash))
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Warn("duplicate check failed", slog.String("error", err.Error()))
	}

	if _, err := s.blobs.Save(ctx, in.Data, path); err != nil {
		return nil, NewServiceError("upload", "failed to store file", err)
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		if _, delErr := s.blobs.Delete(ctx, path); delErr != nil {
			log.Error("failed to remove orphaned blob",
				slog.String("storage_path", path),
				slog.String("error", delErr.Error()))
		}
		return nil, NewServiceError("upload", "failed to create document", err)
	}

	result := &UploadResult{Document: doc, Message: UploadQueuedMessage}
	taskID, err := s.pipeline.Enqueue(ctx, doc)
	if err != nil {
		log.Error("failed to enqueue document processing",
			slog.String("document_id", doc.ID.String()),
			slog.String("error", err.Error()))
		result.Message = UploadPendingMessage
	} else {
		result.TaskID = taskID
	}

	s.InvalidateTenant(ctx, p.TenantID)
	s.onUpload(doc.FileSize)

	log.Info("document uploaded",
		slog.String("document_id", doc.ID.String()),
		slog.String("task_id", result.TaskID),
		slog.Int64("file_size", doc.FileSize),
		slog.String("document_type", string(doc.Type)))
	return result, nil
}

// ListInput selects one page of a tenant's documents.
type ListInput struct {
	Cursor string
	Limit  int
	Search string
	Status string
}

// DocumentPage is one page of documents.
type DocumentPage = pagination.Page[*domain.Document]

func documentKey(d *domain.Document) (time.Time, uuid.UUID) { return d.CreatedAt, d.ID }

// List returns a cursor page of the tenant's non-deleted documents, newest
// first. Invalid cursors restart from the first page. Results are cached per
// tenant until the next mutation or the list TTL.
func (s *DocumentService) List(ctx context.Context, p *domain.Principal, in ListInput) (DocumentPage, error) {
	status := domain.DocumentStatus(strings.ToLower(strings.TrimSpace(in.Status)))
	if status != "" && !domain.IsValidDocumentStatus(status) {
		return DocumentPage{}, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, in.Status)
	}
	limit := pagination.ClampLimit(in.Limit)
	search := strings.TrimSpace(in.Search)

	key := fmt.Sprintf("cursor:%s:%d:%s:%s", in.Cursor, limit, search, status)
	return cache.GetOrCompute(ctx, s.cache, ListNamespace, p.TenantID.String(), key, s.config.ListTTL,
		func(ctx context.Context) (DocumentPage, error) {
			cur, _ := pagination.DecodeOrStart(in.Cursor)
			params := store.DocumentListParams{
				TenantID: p.TenantID,
				Search:   search,
				Status:   status,
				Limit:    limit + 1,
			}
			if cur != nil {
				params.Seek = &store.SeekPosition{
					CreatedAt: cur.LastValue,
					ID:        cur.LastID,
					Backward:  cur.Direction == pagination.DirectionPrev,
				}
			}
			rows, err := s.docs.List(ctx, params)
			if err != nil {
				return DocumentPage{}, NewServiceError("list", "failed to list documents", err)
			}
			return pagination.BuildPage(rows, limit, cur, documentKey), nil
		})
}

// Get returns a document of the tenant, including soft-deleted ones.
func (s *DocumentService) Get(ctx context.Context, p *domain.Principal, id uuid.UUID) (*domain.Document, error) {
	doc, err := s.docs.GetForTenant(ctx, p.TenantID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrDocumentNotFound
		}
		return nil, NewServiceError("get", "failed to load document", err)
	}
	return doc, nil
}

// Download is a document together with its file content.
type Download struct {
	Document *domain.Document
	Data     []byte
}

// Download returns the stored file of a non-deleted document.
func (s *DocumentService) Download(ctx context.Context, p *domain.Principal, id uuid.UUID) (*Download, error) {
	doc, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if doc.IsDeleted {
		return nil, store.ErrDocumentNotFound
	}
	data, err := s.blobs.Get(ctx, doc.StoragePath)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			logger.FromContextOrDefault(ctx, s.logger).Error("document file missing from blob store",
				slog.String("document_id", doc.ID.String()),
				slog.String("storage_path", doc.StoragePath))
			return nil, ErrBlobMissing
		}
		return nil, NewServiceError("download", "failed to read file", err)
	}
	return &Download{Document: doc, Data: data}, nil
}

// UpdateInput holds the user-editable fields. Nil fields are unchanged.
type UpdateInput struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	IsPublic    *bool   `json:"is_public"`
}

func applyUpdate(doc *domain.Document, in UpdateInput, now time.Time) error {
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return domain.ErrEmptyDocumentTitle
		}
		doc.Title = title
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		if desc == "" {
			doc.Description = nil
		} else {
			doc.Description = &desc
		}
	}
	if in.IsPublic != nil {
		doc.IsPublic = *in.IsPublic
	}
	doc.UpdatedAt = now
	return nil
}

// Update changes title, description or visibility of a document.
func (s *DocumentService) Update(ctx context.Context, p *domain.Principal, id uuid.UUID, in UpdateInput) (*domain.Document, error) {
	doc, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := applyUpdate(doc, in, s.now()); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := s.docs.UpdateMetadata(ctx, doc); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrDocumentNotFound
		}
		return nil, NewServiceError("update", "failed to save document", err)
	}
	s.InvalidateTenant(ctx, p.TenantID)
	return doc, nil
}

// Delete soft-deletes a document. A hard delete also removes the row and the
// file and requires documents:delete.
func (s *DocumentService) Delete(ctx context.Context, p *domain.Principal, id uuid.UUID, hard bool) error {
	log := logger.FromContextOrDefault(ctx, s.logger)
	if hard && !p.HasPermission(domain.PermissionDocumentsDelete) {
		return domain.ErrForbidden
	}

	doc, err := s.Get(ctx, p, id)
	if err != nil {
		return err
	}

	if hard {
		if err := s.docs.Delete(ctx, p.TenantID, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.ErrDocumentNotFound
			}
			return NewServiceError("delete", "failed to delete document", err)
		}
		if _, err := s.blobs.Delete(ctx, doc.StoragePath); err != nil {
			log.Error("failed to delete document file",
				slog.String("document_id", id.String()),
				slog.String("storage_path", doc.StoragePath),
				slog.String("error", err.Error()))
		}
	} else {
		if doc.IsDeleted {
			return nil
		}
		doc.SoftDelete(s.now())
		if err := s.docs.UpdateMetadata(ctx, doc); err != nil {
			return NewServiceError("delete", "failed to soft delete document", err)
		}
	}

	s.InvalidateTenant(ctx, p.TenantID)
	log.Info("document deleted", slog.String("document_id", id.String()), slog.Bool("hard", hard))
	return nil
}

// Stats aggregates the tenant's documents; RecentUploads covers the stats
// window (seven days by default).
func (s *DocumentService) Stats(ctx context.Context, p *domain.Principal) (*store.DocumentStats, error) {
	return cache.GetOrCompute(ctx, s.cache, StatsNamespace, p.TenantID.String(), "summary", s.config.StatsTTL,
		func(ctx context.Context) (*store.DocumentStats, error) {
			stats, err := s.docs.Stats(ctx, p.TenantID, s.now().Add(-s.config.StatsWindow))
			if err != nil {
				return nil, NewServiceError("stats", "failed to aggregate documents", err)
			}
			return stats, nil
		})
}

// GetTask returns the tenant's task record for taskID.
func (s *DocumentService) GetTask(ctx context.Context, p *domain.Principal, taskID string) (*domain.TaskRecord, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, store.ErrTaskNotFound
	}
	rec, err := s.tasks.GetForTenant(ctx, p.TenantID, taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrTaskNotFound
		}
		return nil, NewServiceError("get task", "failed to load task", err)
	}
	return rec, nil
}

// InvalidateTenant drops the cached listings and statistics of a tenant. It
// matches pipeline.Invalidator so the processing pipeline can share it.
func (s *DocumentService) InvalidateTenant(ctx context.Context, tenantID uuid.UUID) {
	partition := tenantID.String()
	s.cache.InvalidatePartition(ctx, ListNamespace, partition)
	s.cache.InvalidatePartition(ctx, StatsNamespace, partition)
}
