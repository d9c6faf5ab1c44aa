package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/docintel-api/internal/api/shared"
	"github.com/phrazzld/docintel-api/internal/cache"
	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/ratelimit"
)

func newLimiter(tiers map[string]ratelimit.Tier) *ratelimit.Limiter {
	c := cache.New(cache.NewMemoryBackend(), cache.WithLogger(discardLogger()))
	return ratelimit.NewLimiter(c, tiers, discardLogger())
}

var noContent = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

func TestRateLimit_RejectsAfterLimit(t *testing.T) {
	t.Parallel()
	limiter := newLimiter(map[string]ratelimit.Tier{
		ratelimit.TierDefault: {Requests: 5, Window: time.Minute, KeyPrefix: "rl"},
		ratelimit.TierUpload:  {Requests: 2, Window: time.Minute, KeyPrefix: "rl_upload"},
	})
	h := RateLimit(limiter, ratelimit.TierUpload)(noContent)
	p := &domain.Principal{UserID: uuid.New(), TenantID: uuid.New()}

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", nil)
		req = req.WithContext(shared.WithPrincipal(req.Context(), p))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	first := do()
	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	reset, err := strconv.ParseInt(first.Header().Get("X-RateLimit-Reset"), 10, 64)
	require.NoError(t, err)
	assert.Greater(t, reset, time.Now().Unix())

	assert.Equal(t, http.StatusNoContent, do().Code)

	rejected := do()
	assert.Equal(t, http.StatusTooManyRequests, rejected.Code)
	assert.Equal(t, "0", rejected.Header().Get("X-RateLimit-Remaining"))
	retry, err := strconv.Atoi(rejected.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retry, 1)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rejected.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "Rate limit exceeded")
}

func TestRateLimit_IdentifiesByUserThenIP(t *testing.T) {
	t.Parallel()
	limiter := newLimiter(map[string]ratelimit.Tier{
		ratelimit.TierDefault: {Requests: 1, Window: time.Minute, KeyPrefix: "rl"},
	})
	h := RateLimit(limiter, ratelimit.TierDefault)(noContent)

	anon := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusNoContent, anon("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, anon("10.0.0.1:5678"), "same IP, different port")
	assert.Equal(t, http.StatusNoContent, anon("10.0.0.2:1234"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req = req.WithContext(shared.WithPrincipal(req.Context(), &domain.Principal{UserID: uuid.New()}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code, "authenticated users have their own budget")
}

func TestRateLimitSearch_UsesSearchTier(t *testing.T) {
	t.Parallel()
	limiter := newLimiter(map[string]ratelimit.Tier{
		ratelimit.TierDefault: {Requests: 100, Window: time.Minute, KeyPrefix: "rl"},
		ratelimit.TierSearch:  {Requests: 1, Window: time.Minute, KeyPrefix: "rl_search"},
	})
	h := RateLimitSearch(limiter)(noContent)

	get := func(target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		return w
	}
	assert.Equal(t, "1", get("/documents?search=q").Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, http.StatusTooManyRequests, get("/documents?search=q").Code)
	plain := get("/documents")
	assert.Equal(t, http.StatusNoContent, plain.Code)
	assert.Equal(t, "100", plain.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_FailsOpen(t *testing.T) {
	t.Parallel()
	limiter := ratelimit.NewLimiter(nil, nil, discardLogger())
	h := RateLimit(limiter, ratelimit.TierBulk)(noContent)
	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}
}
