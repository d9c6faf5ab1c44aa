package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/phrazzld/docintel-api/internal/cache"
	"github.com/phrazzld/docintel-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type downBackend struct{ *cache.MemoryBackend }

func (*downBackend) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, assert.AnError
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	t.Parallel()
	c := cache.New(cache.NewMemoryBackend(), cache.WithLogger(testLogger()))
	l := NewLimiter(c, map[string]Tier{
		TierDefault: {Requests: 3, Window: time.Minute, KeyPrefix: "rl"},
	}, testLogger())

	rejected := 0
	l.OnReject(func(string) { rejected++ })
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res := l.Allow(ctx, TierDefault, "user-1")
		require.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 3, res.Limit)
		assert.Equal(t, 3-i, res.Remaining)
	}

	res := l.Allow(ctx, TierDefault, "user-1")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.GreaterOrEqual(t, res.RetryAfter, time.Second)
	assert.LessOrEqual(t, res.RetryAfter, time.Minute)
	assert.Equal(t, 1, rejected)

	assert.True(t, l.Allow(ctx, TierDefault, "user-2").Allowed, "identifiers are independent")

	l.Reset(ctx, TierDefault, "user-1")
	assert.True(t, l.Allow(ctx, TierDefault, "user-1").Allowed)
}

func TestLimiter_TiersAreIndependent(t *testing.T) {
	t.Parallel()
	c := cache.New(cache.NewMemoryBackend(), cache.WithLogger(testLogger()))
	l := NewLimiter(c, nil, testLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.True(t, l.Allow(ctx, TierBulk, "u").Allowed)
	}
	assert.False(t, l.Allow(ctx, TierBulk, "u").Allowed)
	assert.True(t, l.Allow(ctx, TierUpload, "u").Allowed)

	res := l.Allow(ctx, "unknown-tier", "u")
	assert.Equal(t, 60, res.Limit, "unknown tiers use the default tier")
}

func TestLimiter_FailsOpen(t *testing.T) {
	t.Parallel()
	c := cache.New(&downBackend{cache.NewMemoryBackend()}, cache.WithLogger(testLogger()))
	l := NewLimiter(c, nil, testLogger())

	for i := 0; i < 100; i++ {
		res := l.Allow(context.Background(), TierAuth, "u")
		require.True(t, res.Allowed)
		assert.Equal(t, 5, res.Limit)
	}
}

func TestTiersFromConfig(t *testing.T) {
	t.Parallel()
	tiers := TiersFromConfig(config.RateLimitConfig{
		Tiers: map[string]config.RateLimitTier{
			"upload": {Requests: 2, WindowSeconds: 30, KeyPrefix: "up"},
		},
	})
	assert.Equal(t, Tier{Requests: 2, Window: 30 * time.Second, KeyPrefix: "up"}, tiers[TierUpload])
	assert.Equal(t, 60, tiers[TierDefault].Requests)
}
