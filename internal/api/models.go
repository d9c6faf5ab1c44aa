package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/service"
	"github.com/phrazzld/docintel-api/internal/store"
)

// DocumentResponse is the public view of a document.
type DocumentResponse struct {
	ID                    uuid.UUID  `json:"id"`
	TenantID              uuid.UUID  `json:"tenant_id"`
	UploadedBy            uuid.UUID  `json:"uploaded_by"`
	Title                 string     `json:"title"`
	Description           *string    `json:"description"`
	Filename              string     `json:"filename"`
	FileSize              int64      `json:"file_size"`
	MimeType              string     `json:"mime_type"`
	DocumentType          string     `json:"document_type"`
	Status                string     `json:"status"`
	TextContent           *string    `json:"text_content,omitempty"`
	PageCount             *int       `json:"page_count"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at"`
	ErrorMessage          *string    `json:"error_message"`
	IsPublic              bool       `json:"is_public"`
	IsDeleted             bool       `json:"is_deleted"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// documentToResponse converts a document. Listings leave out the extracted
// text, which can be large.
func documentToResponse(d *domain.Document, withText bool) DocumentResponse {
	resp := DocumentResponse{
		ID:                    d.ID,
		TenantID:              d.TenantID,
		UploadedBy:            d.UploadedBy,
		Title:                 d.Title,
		Description:           d.Description,
		Filename:              d.Filename,
		FileSize:              d.FileSize,
		MimeType:              d.MimeType,
		DocumentType:          string(d.Type),
		Status:                string(d.Status),
		PageCount:             d.PageCount,
		ProcessingStartedAt:   d.ProcessingStartedAt,
		ProcessingCompletedAt: d.ProcessingCompletedAt,
		ErrorMessage:          d.ErrorMessage,
		IsPublic:              d.IsPublic,
		IsDeleted:             d.IsDeleted,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
	if withText {
		resp.TextContent = d.TextContent
	}
	return resp
}

// UploadResponse is returned by POST /documents/upload.
type UploadResponse struct {
	Document DocumentResponse `json:"document"`
	TaskID   string           `json:"task_id"`
	Message  string           `json:"message"`
}

// DocumentListResponse is one page of documents.
type DocumentListResponse struct {
	Items      []DocumentResponse `json:"items"`
	NextCursor *string            `json:"next_cursor"`
	PrevCursor *string            `json:"prev_cursor"`
	HasNext    bool               `json:"has_next"`
	HasPrev    bool               `json:"has_prev"`
	Limit      int                `json:"limit"`
}

func pageToResponse(page service.DocumentPage) DocumentListResponse {
	items := make([]DocumentResponse, 0, len(page.Items))
	for _, d := range page.Items {
		items = append(items, documentToResponse(d, false))
	}
	return DocumentListResponse{
		Items:      items,
		NextCursor: page.NextCursor,
		PrevCursor: page.PrevCursor,
		HasNext:    page.HasNext,
		HasPrev:    page.HasPrev,
		Limit:      page.Limit,
	}
}

// UpdateDocumentRequest is the body of PATCH /documents/{id}.
type UpdateDocumentRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	IsPublic    *bool   `json:"is_public"`
}

// BulkActionRequest is the body of POST /documents/bulk/action.
type BulkActionRequest struct {
	DocumentIDs []string `json:"document_ids" validate:"required,min=1,max=100,dive,required"`
	Action      string   `json:"action" validate:"required,oneof=delete archive restore reprocess"`
}

// BulkUpdateRequest is the body of POST /documents/bulk/update.
type BulkUpdateRequest struct {
	DocumentIDs []string       `json:"document_ids" validate:"required,min=1,max=100,dive,required"`
	Updates     map[string]any `json:"updates" validate:"required,min=1"`
}

// StatsResponse is returned by GET /documents/stats.
type StatsResponse = store.DocumentStats

// TaskResponse is the public view of a task record.
type TaskResponse struct {
	TaskID       string          `json:"task_id"`
	TaskName     string          `json:"task_name"`
	TaskType     string          `json:"task_type"`
	Status       string          `json:"status"`
	Progress     int             `json:"progress"`
	StartedAt    *time.Time      `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
	Result       json.RawMessage `json:"result"`
	Error        *string         `json:"error"`
	RetryCount   int             `json:"retry_count"`
	ResourceType string          `json:"resource_type"`
	ResourceID   uuid.UUID       `json:"resource_id"`
}

func taskToResponse(t *domain.TaskRecord) TaskResponse {
	return TaskResponse{
		TaskID:       t.TaskID,
		TaskName:     t.TaskName,
		TaskType:     t.TaskType,
		Status:       string(t.Status),
		Progress:     t.Progress,
		StartedAt:    t.StartedAt,
		CompletedAt:  t.CompletedAt,
		Result:       t.Result,
		Error:        t.Error,
		RetryCount:   t.RetryCount,
		ResourceType: t.ResourceType,
		ResourceID:   t.ResourceID,
	}
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
