package main

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
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/docintel-api/internal/api"
	"github.com/phrazzld/docintel-api/internal/blob"
	"github.com/phrazzld/docintel-api/internal/cache"
	"github.com/phrazzld/docintel-api/internal/config"
	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/mocks"
	"github.com/phrazzld/docintel-api/internal/platform/metrics"
	"github.com/phrazzld/docintel-api/internal/task"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, LogLevel: "error", Role: roleAll, ShutdownTimeoutSeconds: 1},
		Auth: config.AuthConfig{
			JWTSecret:                   "test-secret-that-is-at-least-32-characters",
			TokenLifetimeMinutes:        60,
			RefreshTokenLifetimeMinutes: 120,
		},
		Upload: config.UploadConfig{
			MaxSizeBytes:      1 << 20,
			AllowedExtensions: []string{".pdf", ".docx", ".txt", ".md"},
		},
		Pipeline: config.PipelineConfig{
			QueueBackend:          "memory",
			QueueSize:             10,
			WorkerCount:           1,
			MaxRetries:            3,
			RetryBaseDelaySeconds: 1,
			TextLimit:             1000,
			HardTimeoutSeconds:    5,
			SoftTimeoutSeconds:    4,
			StuckThresholdMinutes: 60,
			SweepIntervalMinutes:  60,
		},
		Cache: config.CacheConfig{DefaultTTLSeconds: 300, ListTTLSeconds: 60},
		RateLimit: config.RateLimitConfig{
			Enabled: true,
			Tiers: map[string]config.RateLimitTier{
				"upload": {Requests: 3, WindowSeconds: 60, KeyPrefix: "rl_upload"},
			},
		},
	}
}

// newTestApp wires an application over in-memory stores and backends.
func newTestApp(t *testing.T) *application {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := &application{
		config:        testConfig(),
		logger:        logger,
		metrics:       metrics.New(),
		documentStore: mocks.NewDocumentStore(),
		taskStore:     mocks.NewTaskRecordStore(),
		apiKeyStore:   mocks.NewAPIKeyStore(),
		blobs:         blob.NewMemoryStore(),
		cache:         cache.New(cache.NewMemoryBackend(), cache.WithLogger(logger)),
		queue:         task.NewMemoryQueue(10, logger),
	}
	require.NoError(t, app.setupServices())
	return app
}

func (app *application) token(t *testing.T, p *domain.Principal) string {
	t.Helper()
	tok, err := app.jwtService.GenerateToken(context.Background(), p)
	require.NoError(t, err)
	return tok
}

func newPrincipal(perms ...string) *domain.Principal {
	return &domain.Principal{UserID: uuid.New(), TenantID: uuid.New(), Permissions: perms}
}

func uploadRequest(t *testing.T, token, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func authed(method, target, token string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	router := app.setupRouter()

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health api.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `docintel_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestRouter_RequiresAuthentication(t *testing.T) {
	t.Parallel()
	router := newTestApp(t).setupRouter()

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(router, authed(http.MethodGet, "/api/v1/documents", "not-a-jwt"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_EnforcesPermissions(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	router := app.setupRouter()
	reader := app.token(t, newPrincipal(domain.PermissionDocumentsRead))

	rec := serve(router, uploadRequest(t, reader, "a.txt", "hello"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(router, authed(http.MethodGet, "/api/v1/documents", reader))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_UploadIsProcessedByWorkers(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	router := app.setupRouter()
	require.NoError(t, app.runner.Start(context.Background()))
	t.Cleanup(app.runner.Stop)

	tok := app.token(t, newPrincipal(domain.PermissionDocumentsCreate, domain.PermissionDocumentsRead))

	rec := serve(router, uploadRequest(t, tok, "notes.md", "# Title\n\nbody"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var up api.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	require.NotEmpty(t, up.TaskID)

	require.Eventually(t, func() bool {
		rec := serve(router, authed(http.MethodGet, "/api/v1/tasks/"+up.TaskID, tok))
		if rec.Code != http.StatusOK {
			return false
		}
		var status api.TaskResponse
		return json.Unmarshal(rec.Body.Bytes(), &status) == nil &&
			status.Status == string(domain.TaskStatusSuccess)
	}, 5*time.Second, 20*time.Millisecond)

	rec = serve(router, authed(http.MethodGet, "/api/v1/documents/"+up.Document.ID.String(), tok))
	require.Equal(t, http.StatusOK, rec.Code)
	var doc api.DocumentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, string(domain.DocumentStatusCompleted), doc.Status)

	rec = serve(router, authed(http.MethodGet, "/api/v1/documents", tok))
	require.Equal(t, http.StatusOK, rec.Code)
	var list api.DocumentListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, string(domain.DocumentStatusCompleted), list.Items[0].Status,
		"listing reflects the pipeline's write after cache invalidation")
}

func TestRouter_RateLimitsUploads(t *testing.T) {
	t.Parallel()
	app := newTestApp(t)
	router := app.setupRouter()
	tok := app.token(t, newPrincipal(domain.PermissionDocumentsCreate))

	for i := 0; i < 3; i++ {
		rec := serve(router, uploadRequest(t, tok, "a.txt", strings.Repeat("x", i+1)))
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := serve(router, uploadRequest(t, tok, "a.txt", "blocked"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestApplicationRoles(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		role          string
		api, workers bool
	}{
		{roleAll, true, true},
		{roleAPI, true, false},
		{roleWorker, false, true},
	} {
		app := &application{config: &config.Config{Server: config.ServerConfig{Role: tc.role}}}
		assert.Equal(t, tc.api, app.runsAPI(), tc.role)
		assert.Equal(t, tc.workers, app.runsWorkers(), tc.role)
	}
}

func TestOpsRouter_ServesNoDocumentRoutes(t *testing.T) {
	t.Parallel()
	router := newTestApp(t).setupOpsRouter()

	assert.Equal(t, http.StatusOK, serve(router, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
	assert.Equal(t, http.StatusNotFound, serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)).Code)
}
