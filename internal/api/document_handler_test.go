package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/docintel-api/internal/api/shared"
	"github.com/phrazzld/docintel-api/internal/blob"
	"github.com/phrazzld/docintel-api/internal/cache"
	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/mocks"
	"github.com/phrazzld/docintel-api/internal/pipeline"
	"github.com/phrazzld/docintel-api/internal/service"
)

type handlerFixture struct {
	docs   *mocks.DocumentStore
	queue  *mocks.Enqueuer
	proc   *pipeline.Processor
	svc    *service.DocumentService
	router http.Handler
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newHandlerFixture mounts the document routes behind a middleware that
// copies a test principal from the request context into the auth slot.
func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := &handlerFixture{
		docs:  mocks.NewDocumentStore(),
		queue: &mocks.Enqueuer{},
	}
	tasks := mocks.NewTaskRecordStore()
	blobs := blob.NewMemoryStore()

	proc, err := pipeline.NewProcessor(pipeline.Deps{
		Documents: f.docs,
		Tasks:     tasks,
		Blobs:     blobs,
		Queue:     f.queue,
		Invalidate: func(ctx context.Context, tenantID uuid.UUID) {
			f.svc.InvalidateTenant(ctx, tenantID)
		},
	}, pipeline.DefaultConfig(), testLogger())
	require.NoError(t, err)
	f.proc = proc

	svc, err := service.NewDocumentService(service.Deps{
		Documents: f.docs,
		Tasks:     tasks,
		Blobs:     blobs,
		Pipeline:  proc,
		Cache:     cache.New(cache.NewMemoryBackend(), cache.WithLogger(testLogger())),
	}, service.DefaultConfig(), testLogger())
	require.NoError(t, err)
	f.svc = svc

	h := NewDocumentHandler(svc, 0, testLogger())
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, ok := r.Context().Value(testPrincipalKey{}).(*domain.Principal); ok {
				r = r.WithContext(shared.WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Post("/documents/upload", h.Upload)
	r.Get("/documents", h.List)
	r.Get("/documents/stats", h.Stats)
	r.Post("/documents/bulk/action", h.BulkAction)
	r.Post("/documents/bulk/update", h.BulkUpdate)
	r.Get("/documents/{id}", h.Get)
	r.Get("/documents/{id}/download", h.Download)
	r.Patch("/documents/{id}", h.Update)
	r.Delete("/documents/{id}", h.Delete)
	r.Get("/tasks/{task_id}", h.GetTask)
	f.router = r
	return f
}

type testPrincipalKey struct{}

func editor() *domain.Principal {
	return &domain.Principal{
		UserID:   uuid.New(),
		TenantID: uuid.New(),
		Permissions: []string{
			domain.PermissionDocumentsCreate,
			domain.PermissionDocumentsRead,
			domain.PermissionDocumentsUpdate,
		},
	}
}

func (f *handlerFixture) do(t *testing.T, p *domain.Principal, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if p != nil {
		req = req.WithContext(context.WithValue(req.Context(), testPrincipalKey{}, p))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func multipartUpload(t *testing.T, filename, content, title string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	if title != "" {
		require.NoError(t, mw.WriteField("title", title))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, target string, v any) *http.Request {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *handlerFixture) uploadVia(t *testing.T, p *domain.Principal, name, content string) UploadResponse {
	t.Helper()
	rec := f.do(t, p, multipartUpload(t, name, content, ""))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[UploadResponse](t, rec)
}

func (f *handlerFixture) runJobs(t *testing.T) {
	t.Helper()
	for _, job := range f.queue.Jobs {
		require.NoError(t, f.proc.Handle(context.Background(), job))
	}
}

func TestUpload_CreatesPendingDocumentAndTask(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)
	p := editor()

	rec := f.do(t, p, multipartUpload(t, "report.txt", "hello world", "Quarterly report"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[UploadResponse](t, rec)
	assert.Equal(t, "Quarterly report", resp.Document.Title)
	assert.Equal(t, "report.txt", resp.Document.Filename)
	assert.Equal(t, string(domain.DocumentStatusPending), resp.Document.Status)
	assert.Equal(t, int64(11), resp.Document.FileSize)
	assert.Equal(t, p.TenantID, resp.Document.TenantID)
	assert.NotEmpty(t, resp.TaskID)
	assert.Equal(t, service.UploadQueuedMessage, resp.Message)
	assert.Nil(t, resp.Document.TextContent, "upload response omits extracted text")

	f.runJobs(t)

	rec = f.do(t, p, httptest.NewRequest(http.MethodGet, "/tasks/"+resp.TaskID, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	task := decode[TaskResponse](t, rec)
	assert.Equal(t, resp.TaskID, task.TaskID)
	assert.Equal(t, string(domain.TaskStatusSuccess), task.Status)
	assert.Equal(t, 100, task.Progress)

	rec = f.do(t, p, httptest.NewRequest(http.MethodGet, "/documents/"+resp.Document.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decode[DocumentResponse](t, rec)
	assert.Equal(t, string(domain.DocumentStatusCompleted), doc.Status)
	require.NotNil(t, doc.TextContent)
	assert.Equal(t, "hello world", *doc.TextContent)
}

func TestUpload_RejectsDisallowedExtension(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)

	rec := f.do(t, editor(), multipartUpload(t, "tool.exe", "MZ", ""))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[shared.ErrorResponse](t, rec)
	assert.Equal(t, "File type not allowed. Allowed types: .pdf, .docx, .txt, .md", resp.Error)
	assert.Zero(t, f.docs.Count())
	assert.Zero(t, f.queue.EnqueuedCount())
}

func TestUpload_MissingFileAndPrincipal(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("title", "no file"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := f.do(t, editor(), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "File is required", decode[shared.ErrorResponse](t, rec).Error)

	rec = f.do(t, nil, multipartUpload(t, "a.txt", "x", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestList_PaginatesAndValidatesQuery(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)
	p := editor()
	for i := 0; i < 5; i++ {
		f.uploadVia(t, p, "doc.txt", strings.Repeat("x", i+1))
	}

	rec := f.do(t, p, httptest.NewRequest(http.MethodGet, "/documents?limit=3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[DocumentListResponse](t, rec)
	assert.Len(t, first.Items, 3)
	assert.True(t, first.HasNext)
	assert.Equal(t, 3, first.Limit)
	require.NotNil(t, first.NextCursor)

	rec = f.do(t, p, httptest.NewRequest(http.MethodGet, "/documents?limit=3&cursor="+*first.NextCursor, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[DocumentListResponse](t, rec)
	assert.Len(t, second.Items, 2)
	assert.False(t, second.HasNext)
	assert.True(t, second.HasPrev)

	rec = f.do(t, p, httptest.NewRequest(http.MethodGet, "/documents?limit=3&cursor=garbage", nil))
	require.Equal(t, http.StatusOK, rec.Code, "an unreadable cursor restarts from the first page")
	restarted := decode[DocumentListResponse](t, rec)
	assert.Equal(t, first.Items, restarted.Items)
	assert.True(t, restarted.HasNext)
	assert.False(t, restarted.HasPrev)

	for _, target := range []string{
		"/documents?limit=abc",
		"/documents?limit=0",
		"/documents?status=shredded",
	} {
		rec = f.do(t, p, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestGet_OtherTenantAndBadID(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)
	owner := editor()
	up := f.uploadVia(t, owner, "secret.md", "# secret")

	rec := f.do(t, editor(), httptest.NewRequest(http.MethodGet, "/documents/"+up.Document.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Document not found", decode[shared.ErrorResponse](t, rec).Error)

	rec = f.do(t, owner, httptest.NewRequest(http.MethodGet, "/documents/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid ID format", decode[shared.ErrorResponse](t, rec).Error)
}

func TestDownload_StreamsStoredFile(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)
	p := editor()
	up := f.uploadVia(t, p, "notes.txt", "plain text body")

	rec := f.do(t, p, httptest.NewRequest(http.MethodGet, "/documents/"+up.Document.ID.String()+"/download", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "plain text body", rec.Body.String())
	assert.Equal(t, "attachment; filename=notes.txt", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "15", rec.Header().Get("Content-Length"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestUpdate_ValidatesAndApplies(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)
	p := editor()
	up := f.uploadVia(t, p, "a.txt", "a")
	target := "/documents/" + up.Document.ID.String()

	rec := f.do(t, p, jsonRequest(t, http.MethodPatch, target, map[string]any{"title": "Renamed", "is_public": true}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc := decode[DocumentResponse](t, rec)
	assert.Equal(t, "Renamed", doc.Title)
	assert.True(t, doc.IsPublic)

	rec = f.do(t, p, jsonRequest(t, http.MethodPatch, target, map[string]any{"title": ""}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, p, jsonRequest(t, http.MethodPatch, target, map[string]any{"owner": "me"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown fields are rejected")

	req := httptest.NewRequest(http.MethodPatch, target, nil)
	rec = f.do(t, p, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Request body is required", decode[shared.ErrorResponse](t, rec).Error)
}

func TestDelete_SoftAndHard(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)
	p := editor()
	up := f.uploadVia(t, p, "a.txt", "a")
	target := "/documents/" + up.Document.ID.String()

	rec := f.do(t, p, httptest.NewRequest(http.MethodDelete, target+"?hard=true", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, p, httptest.NewRequest(http.MethodDelete, target+"?hard=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, p, httptest.NewRequest(http.MethodDelete, target, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, f.docs.Snapshot(up.Document.ID).IsDeleted)

	admin := &domain.Principal{
		UserID:      uuid.New(),
		TenantID:    p.TenantID,
		Permissions: []string{domain.PermissionDocumentsDelete},
	}
	rec = f.do(t, admin, httptest.NewRequest(http.MethodDelete, target+"?hard=1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, f.docs.Snapshot(up.Document.ID))
}

func TestBulkAction_ArchivesCompletedDocuments(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)
	p := editor()

	ids := make([]string, 0, 6)
	for i := 0; i < 5; i++ {
		ids = append(ids, f.uploadVia(t, p, "doc.txt", "content").Document.ID.String())
	}
	f.runJobs(t)
	ids = append(ids, uuid.NewString())

	rec := f.do(t, p, jsonRequest(t, http.MethodPost, "/documents/bulk/action", map[string]any{
		"document_ids": ids,
		"action":       "archive",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[service.BulkResult](t, rec)
	assert.Equal(t, 6, result.TotalRequested)
	assert.Equal(t, 5, result.Succeeded)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, ids[5], result.Errors[0].ID)
	assert.Equal(t, "Document not found or access denied", result.Errors[0].Error)

	rec = f.do(t, p, httptest.NewRequest(http.MethodGet, "/documents?status=archived", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[DocumentListResponse](t, rec).Items, 5)
}

func TestBulkAction_RejectsBadRequests(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)
	p := editor()

	tooMany := make([]string, 101)
	for i := range tooMany {
		tooMany[i] = uuid.NewString()
	}

	for name, body := range map[string]map[string]any{
		"unknown_action": {"document_ids": []string{uuid.NewString()}, "action": "shred"},
		"empty_ids":      {"document_ids": []string{}, "action": "delete"},
		"too_many_ids":   {"document_ids": tooMany, "action": "delete"},
	} {
		rec := f.do(t, p, jsonRequest(t, http.MethodPost, "/documents/bulk/action", body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestBulkUpdate_AppliesWhitelistedFields(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)
	p := editor()
	a := f.uploadVia(t, p, "a.txt", "a").Document.ID
	b := f.uploadVia(t, p, "b.txt", "b").Document.ID

	rec := f.do(t, p, jsonRequest(t, http.MethodPost, "/documents/bulk/update", map[string]any{
		"document_ids": []string{a.String(), b.String()},
		"updates":      map[string]any{"is_public": true},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[service.BulkResult](t, rec)
	assert.Equal(t, 2, result.Succeeded)
	assert.True(t, f.docs.Snapshot(a).IsPublic)
	assert.True(t, f.docs.Snapshot(b).IsPublic)

	rec = f.do(t, p, jsonRequest(t, http.MethodPost, "/documents/bulk/update", map[string]any{
		"document_ids": []string{a.String()},
		"updates":      map[string]any{"tenant_id": uuid.NewString()},
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStats_ReportsTenantCounts(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)
	p := editor()
	f.uploadVia(t, p, "a.txt", "a")
	f.uploadVia(t, p, "b.txt", "bb")
	f.uploadVia(t, editor(), "c.txt", "ccc")

	rec := f.do(t, p, httptest.NewRequest(http.MethodGet, "/documents/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[StatsResponse](t, rec)
	assert.Equal(t, int64(2), stats.TotalDocuments)
	assert.Equal(t, int64(3), stats.TotalSize)
}

func TestGetTask_UnknownOrForeign(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t)
	up := f.uploadVia(t, editor(), "a.txt", "a")

	rec := f.do(t, editor(), httptest.NewRequest(http.MethodGet, "/tasks/"+up.TaskID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, editor(), httptest.NewRequest(http.MethodGet, "/tasks/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Task not found", decode[shared.ErrorResponse](t, rec).Error)
}
