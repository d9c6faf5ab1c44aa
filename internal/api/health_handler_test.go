package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealth_AllChecksPass(t *testing.T) {
	t.Parallel()
	h := NewHealthHandler(map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
	}, testLogger())

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]string{"database": "ok"}, resp.Checks)
}

func TestHealth_FailingCheckDegrades(t *testing.T) {
	t.Parallel()
	h := NewHealthHandler(map[string]HealthCheck{
		"database": func(context.Context) error {
			return errors.New("dial tcp postgres://app:hunter2@db:5432: connection refused")
		},
		"cache": func(context.Context) error { return nil },
	}, testLogger())

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unavailable", resp.Checks["database"])
	assert.Equal(t, "ok", resp.Checks["cache"])
}

func TestHealth_NoChecks(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	NewHealthHandler(nil, nil).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)
}
