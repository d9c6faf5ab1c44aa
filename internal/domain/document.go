package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentStatus represents the processing state of a document.
type DocumentStatus string

// Possible document status values
const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
	DocumentStatusArchived   DocumentStatus = "archived"
)

// DocumentType is the coarse format classification used to pick an extractor.
type DocumentType string

// Possible document type values
const (
	DocumentTypePDF      DocumentType = "pdf"
	DocumentTypeWord     DocumentType = "word"
	DocumentTypeText     DocumentType = "text"
	DocumentTypeMarkdown DocumentType = "markdown"
	DocumentTypeOther    DocumentType = "other"
)

// Common validation errors for Document
var (
	ErrEmptyDocumentID       = errors.New("document ID cannot be empty")
	ErrEmptyDocumentTenantID = errors.New("document tenant ID cannot be empty")
	ErrEmptyDocumentTitle    = errors.New("document title cannot be empty")
	ErrEmptyDocumentFilename = errors.New("document filename cannot be empty")
	ErrEmptyStoragePath      = errors.New("document storage path cannot be empty")
	ErrInvalidDocumentStatus = errors.New("invalid document status")
	ErrInvalidDocumentType   = errors.New("invalid document type")
	ErrInvalidFileSize       = errors.New("document file size must be positive")
)

// Document is the metadata record of an uploaded file. The file content lives
// in the blob store under StoragePath; only its hash is kept here.
type Document struct {
	ID                    uuid.UUID      `json:"id"`
	TenantID              uuid.UUID      `json:"tenant_id"`
	UploadedBy            uuid.UUID      `json:"uploaded_by"`
	Title                 string         `json:"title"`
	Description           *string        `json:"description,omitempty"`
	Filename              string         `json:"filename"`
	StoragePath           string         `json:"-"`
	FileSize              int64          `json:"file_size"`
	MimeType              string         `json:"mime_type"`
	ContentHash           string         `json:"content_hash"`
	Type                  DocumentType   `json:"document_type"`
	Status                DocumentStatus `json:"status"`
	TextContent           *string        `json:"text_content,omitempty"`
	PageCount             *int           `json:"page_count"`
	ProcessingStartedAt   *time.Time     `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time     `json:"processing_completed_at,omitempty"`
	ErrorMessage          *string        `json:"error_message,omitempty"`
	IsPublic              bool           `json:"is_public"`
	IsDeleted             bool           `json:"is_deleted"`
	DeletedAt             *time.Time     `json:"deleted_at,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// transitions lists every permitted status change. Anything not listed is
// rejected by CanTransition.
var transitions = map[DocumentStatus][]DocumentStatus{
	DocumentStatusPending:    {DocumentStatusProcessing},
	DocumentStatusProcessing: {DocumentStatusCompleted, DocumentStatusFailed},
	DocumentStatusCompleted:  {DocumentStatusPending, DocumentStatusArchived},
	DocumentStatusFailed:     {DocumentStatusPending, DocumentStatusArchived},
	DocumentStatusArchived:   {},
}

// NewDocument creates a pending document owned by tenantID and uploaded by
// userID. The type is derived from the filename and MIME type.
func NewDocument(
	tenantID, userID uuid.UUID,
	title, filename, storagePath, mimeType, contentHash string,
	size int64,
) (*Document, error) {
	now := time.Now().UTC()
	if strings.TrimSpace(title) == "" {
		title = filename
	}
	doc := &Document{
		ID:          uuid.New(),
		TenantID:    tenantID,
		UploadedBy:  userID,
		Title:       title,
		Filename:    filename,
		StoragePath: storagePath,
		FileSize:    size,
		MimeType:    mimeType,
		ContentHash: contentHash,
		Type:        ClassifyDocumentType(filename, mimeType),
		Status:      DocumentStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	return doc, nil
}

// Validate checks if the Document has valid data.
func (d *Document) Validate() error {
	if d.ID == uuid.Nil {
		return ErrEmptyDocumentID
	}
	if d.TenantID == uuid.Nil {
		return ErrEmptyDocumentTenantID
	}
	if strings.TrimSpace(d.Title) == "" {
		return ErrEmptyDocumentTitle
	}
	if d.Filename == "" {
		return ErrEmptyDocumentFilename
	}
	if d.StoragePath == "" {
		return ErrEmptyStoragePath
	}
	if d.FileSize <= 0 {
		return ErrInvalidFileSize
	}
	if !IsValidDocumentStatus(d.Status) {
		return ErrInvalidDocumentStatus
	}
	if !isValidDocumentType(d.Type) {
		return ErrInvalidDocumentType
	}
	return nil
}

// CanTransition reports whether a document may move from one status to
// another.
func CanTransition(from, to DocumentStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionTo changes the status if the edge is permitted and bumps
// UpdatedAt. It returns ErrInvalidTransition otherwise.
func (d *Document) TransitionTo(status DocumentStatus, now time.Time) error {
	if !IsValidDocumentStatus(status) {
		return ErrInvalidDocumentStatus
	}
	if !CanTransition(d.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, status)
	}
	d.Status = status
	d.UpdatedAt = now
	return nil
}

// BeginProcessing moves the document into processing. Completed and failed
// documents pass through pending first, which is the reprocess/retry edge.
// A document already in processing is treated as a redelivered job and only
// gets a fresh start time.
func (d *Document) BeginProcessing(now time.Time) error {
	switch d.Status {
	case DocumentStatusProcessing:
	case DocumentStatusCompleted, DocumentStatusFailed:
		if err := d.TransitionTo(DocumentStatusPending, now); err != nil {
			return err
		}
		fallthrough
	default:
		if err := d.TransitionTo(DocumentStatusProcessing, now); err != nil {
			return err
		}
	}
	d.ProcessingStartedAt = &now
	d.ProcessingCompletedAt = nil
	d.ErrorMessage = nil
	d.UpdatedAt = now
	return nil
}

// Complete records the extraction output and marks the document completed.
// Empty text is stored as no text.
func (d *Document) Complete(text string, pageCount *int, now time.Time) error {
	if err := d.TransitionTo(DocumentStatusCompleted, now); err != nil {
		return err
	}
	d.TextContent = nil
	if text != "" {
		d.TextContent = &text
	}
	d.PageCount = pageCount
	d.ProcessingCompletedAt = &now
	d.ErrorMessage = nil
	return nil
}

// Fail marks a processing document failed with the given message.
func (d *Document) Fail(message string, now time.Time) error {
	if err := d.TransitionTo(DocumentStatusFailed, now); err != nil {
		return err
	}
	d.ErrorMessage = &message
	d.ProcessingCompletedAt = &now
	return nil
}

// ResetForReprocess puts a completed or failed document back to pending and
// clears the previous error.
func (d *Document) ResetForReprocess(now time.Time) error {
	if err := d.TransitionTo(DocumentStatusPending, now); err != nil {
		return err
	}
	d.ErrorMessage = nil
	return nil
}

// Archive marks a completed or failed document archived.
func (d *Document) Archive(now time.Time) error {
	return d.TransitionTo(DocumentStatusArchived, now)
}

// SoftDelete flags the document as deleted without touching its status.
func (d *Document) SoftDelete(now time.Time) {
	d.IsDeleted = true
	d.DeletedAt = &now
	d.UpdatedAt = now
}

// Restore clears the deleted flag.
func (d *Document) Restore(now time.Time) {
	d.IsDeleted = false
	d.DeletedAt = nil
	d.UpdatedAt = now
}

// IsValidDocumentStatus checks if the given status is a known DocumentStatus.
func IsValidDocumentStatus(status DocumentStatus) bool {
	_, ok := transitions[status]
	return ok
}

func isValidDocumentType(t DocumentType) bool {
	switch t {
	case DocumentTypePDF, DocumentTypeWord, DocumentTypeText,
		DocumentTypeMarkdown, DocumentTypeOther:
		return true
	default:
		return false
	}
}

// ClassifyDocumentType maps a filename and MIME type to a DocumentType.
func ClassifyDocumentType(filename, mimeType string) DocumentType {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	switch {
	case ext == "pdf":
		return DocumentTypePDF
	case ext == "doc" || ext == "docx":
		return DocumentTypeWord
	case ext == "md" || ext == "markdown":
		return DocumentTypeMarkdown
	case ext == "txt" || strings.HasPrefix(mimeType, "text/"):
		return DocumentTypeText
	default:
		return DocumentTypeOther
	}
}
