package shared

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/docintel-api/internal/domain"
)

func TestSetAndGetTraceID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))

	withTrace := SetTraceID(ctx)
	traceID := GetTraceID(withTrace)
	require.Len(t, traceID, 32)
	_, err := hex.DecodeString(traceID)
	assert.NoError(t, err)

	assert.Empty(t, GetTraceID(ctx), "parent context unchanged")
}

func TestGetTraceID_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), TraceIDKey, 123)
	assert.Empty(t, GetTraceID(ctx))
}

func TestGenerateTraceID_Unique(t *testing.T) {
	seen := make(map[string]bool, 500)
	for i := 0; i < 500; i++ {
		id := generateTraceID()
		assert.False(t, seen[id], "duplicate trace ID %s", id)
		seen[id] = true
	}
}

func TestPrincipalContext(t *testing.T) {
	_, ok := GetPrincipal(context.Background())
	assert.False(t, ok)

	p := &domain.Principal{UserID: uuid.New(), TenantID: uuid.New()}
	got, ok := GetPrincipal(WithPrincipal(context.Background(), p))
	require.True(t, ok)
	assert.Same(t, p, got)

	_, ok = GetPrincipal(WithPrincipal(context.Background(), nil))
	assert.False(t, ok, "nil principal is not authenticated")
}
