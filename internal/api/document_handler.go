package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/docintel-api/internal/api/shared"
	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/platform/logger"
	"github.com/phrazzld/docintel-api/internal/service"
	"github.com/phrazzld/docintel-api/internal/store"
)

// multipartOverhead is allowed on top of the upload limit for the form
// boundaries and text fields.
const multipartOverhead = 1 << 20

// DocumentService is the document use-case surface the handlers need.
type DocumentService interface {
	Upload(ctx context.Context, p *domain.Principal, in service.UploadInput) (*service.UploadResult, error)
	List(ctx context.Context, p *domain.Principal, in service.ListInput) (service.DocumentPage, error)
	Get(ctx context.Context, p *domain.Principal, id uuid.UUID) (*domain.Document, error)
	Download(ctx context.Context, p *domain.Principal, id uuid.UUID) (*service.Download, error)
	Update(ctx context.Context, p *domain.Principal, id uuid.UUID, in service.UpdateInput) (*domain.Document, error)
	Delete(ctx context.Context, p *domain.Principal, id uuid.UUID, hard bool) error
	Stats(ctx context.Context, p *domain.Principal) (*store.DocumentStats, error)
	BulkAction(ctx context.Context, p *domain.Principal, ids []string, action service.BulkAction) (*service.BulkResult, error)
	BulkUpdate(ctx context.Context, p *domain.Principal, ids []string, updates map[string]any) (*service.BulkResult, error)
	GetTask(ctx context.Context, p *domain.Principal, taskID string) (*domain.TaskRecord, error)
}

var _ DocumentService = (*service.DocumentService)(nil)

// DocumentHandler serves the document and task endpoints.
type DocumentHandler struct {
	documents      DocumentService
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewDocumentHandler creates a DocumentHandler. maxUploadBytes bounds the
// request body read for uploads; the service enforces the exact limit.
func NewDocumentHandler(documents DocumentService, maxUploadBytes int64, logger *slog.Logger) *DocumentHandler {
	if documents == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("document service cannot be nil for DocumentHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for DocumentHandler")
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = service.DefaultMaxUploadBytes
	}
	return &DocumentHandler{
		documents:      documents,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With(slog.String("component", "document_handler")),
	}
}

// Upload handles POST /documents/upload with a multipart "file" field and
// optional "title" and "description" fields.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	p, ok := getPrincipal(w, r, log)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			HandleAPIError(w, r, service.ErrFileTooLarge, "")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "File is required", err)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to read uploaded file")
		return
	}

	result, err := h.documents.Upload(r.Context(), p, service.UploadInput{
		Filename:    header.Filename,
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Data:        data,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to upload document")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, UploadResponse{
		Document: documentToResponse(result.Document, false),
		TaskID:   result.TaskID,
		Message:  result.Message,
	})
}

// List handles GET /documents?cursor=&limit=&search=&status=.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	p, ok := getPrincipal(w, r, log)
	if !ok {
		return
	}

	q := r.URL.Query()
	in := service.ListInput{
		Cursor: q.Get("cursor"),
		Search: q.Get("search"),
		Status: q.Get("status"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			HandleAPIError(w, r, fmt.Errorf("%w: limit must be a positive integer", domain.ErrValidation), "")
			return
		}
		in.Limit = limit
	}

	page, err := h.documents.List(r.Context(), p, in)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list documents")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, pageToResponse(page))
}

// Stats handles GET /documents/stats.
func (h *DocumentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	p, ok := getPrincipal(w, r, log)
	if !ok {
		return
	}
	stats, err := h.documents.Stats(r.Context(), p)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load statistics")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// Get handles GET /documents/{id}.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	p, id, ok := handlePrincipalAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}
	doc, err := h.documents.Get(r.Context(), p, id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load document")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, documentToResponse(doc, true))
}

// Download handles GET /documents/{id}/download and streams the stored file.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	p, id, ok := handlePrincipalAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}
	dl, err := h.documents.Download(r.Context(), p, id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to download document")
		return
	}

	contentType := dl.Document.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": dl.Document.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(dl.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(dl.Data); err != nil {
		log.Warn("failed to write download body", slog.String("error", err.Error()))
	}
}

// Update handles PATCH /documents/{id}.
func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	p, id, ok := handlePrincipalAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	var req UpdateDocumentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	doc, err := h.documents.Update(r.Context(), p, id, service.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update document")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, documentToResponse(doc, true))
}

// Delete handles DELETE /documents/{id}. With ?hard=true the row and the
// file are removed.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	p, id, ok := handlePrincipalAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	hard := false
	if raw := r.URL.Query().Get("hard"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			HandleAPIError(w, r, fmt.Errorf("%w: hard must be a boolean", domain.ErrValidation), "")
			return
		}
		hard = v
	}

	if err := h.documents.Delete(r.Context(), p, id, hard); err != nil {
		HandleAPIError(w, r, err, "Failed to delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BulkAction handles POST /documents/bulk/action.
func (h *DocumentHandler) BulkAction(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	p, ok := getPrincipal(w, r, log)
	if !ok {
		return
	}

	var req BulkActionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.documents.BulkAction(r.Context(), p, req.DocumentIDs, service.BulkAction(req.Action))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to apply bulk action")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// BulkUpdate handles POST /documents/bulk/update.
func (h *DocumentHandler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	p, ok := getPrincipal(w, r, log)
	if !ok {
		return
	}

	var req BulkUpdateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.documents.BulkUpdate(r.Context(), p, req.DocumentIDs, req.Updates)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to apply bulk update")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// GetTask handles GET /tasks/{task_id}.
func (h *DocumentHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	p, ok := getPrincipal(w, r, log)
	if !ok {
		return
	}
	rec, err := h.documents.GetTask(r.Context(), p, chi.URLParam(r, "task_id"))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(rec))
}

func (h *DocumentHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := shared.DecodeJSON(w, r, v); err != nil {
		if errors.Is(err, shared.ErrEmptyBody) {
			HandleAPIError(w, r, err, "")
			return false
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return false
	}
	if err := shared.ValidateRequest(v); err != nil {
		HandleAPIError(w, r, err, "")
		return false
	}
	return true
}
