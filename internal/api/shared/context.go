package shared

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/platform/tracing"
)

// ContextKey is the type of the request context keys set by the HTTP layer.
type ContextKey string

const (
	// PrincipalContextKey holds the authenticated *domain.Principal.
	PrincipalContextKey ContextKey = "principal"

	// TraceIDKey holds the request trace ID.
	TraceIDKey ContextKey = "traceID"

	// TraceIDLength is the number of random bytes in a generated trace ID.
	TraceIDLength = 16
)

// SetTraceID stores a trace ID in ctx. The ID of an active OpenTelemetry
// span is reused so error responses can be matched to exported traces;
// otherwise a random ID is generated.
func SetTraceID(ctx context.Context) context.Context {
	traceID := tracing.TraceID(ctx)
	if traceID == "" {
		traceID = generateTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace ID stored in ctx, or "".
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// WithPrincipal stores the authenticated principal in ctx.
func WithPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

// GetPrincipal returns the principal stored by the auth middleware.
func GetPrincipal(ctx context.Context) (*domain.Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(*domain.Principal)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}

// generateTraceID returns 32 hex characters. If crypto/rand fails it falls
// back to a time-derived ID, never a constant.
func generateTraceID() string {
	b := make([]byte, TraceIDLength)
	if n, err := rand.Read(b); err != nil || n != TraceIDLength {
		slog.Error("failed to generate secure random trace ID",
			"error", err,
			"bytes_read", n,
			"fallback", "time-based generation")
		now := time.Now()
		binary.BigEndian.PutUint64(b[:8], uint64(now.UnixNano()))
		binary.BigEndian.PutUint64(b[8:], uint64(now.Nanosecond())^uint64(now.Unix()))
	}
	return hex.EncodeToString(b)
}
