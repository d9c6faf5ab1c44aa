// Package ratelimit implements fixed-window request limiting on top of the
// cache layer. When the cache backend is unavailable every request is
// allowed.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/phrazzld/docintel-api/internal/cache"
	"github.com/phrazzld/docintel-api/internal/config"
)

// Tier names used by the HTTP layer.
const (
	TierDefault = "default"
	TierUpload  = "upload"
	TierAuth    = "auth"
	TierSearch  = "search"
	TierBulk    = "bulk"
)

// namespace holds every counter in the cache.
const namespace = "ratelimit"

// Tier is one named limit: Requests per Window.
type Tier struct {
	Requests  int
	Window    time.Duration
	KeyPrefix string
}

// DefaultTiers are the limits used when none are configured.
func DefaultTiers() map[string]Tier {
	return map[string]Tier{
		TierDefault: {Requests: 60, Window: time.Minute, KeyPrefix: "rl"},
		TierUpload:  {Requests: 10, Window: time.Minute, KeyPrefix: "rl_upload"},
		TierAuth:    {Requests: 5, Window: time.Minute, KeyPrefix: "rl_auth"},
		TierSearch:  {Requests: 30, Window: time.Minute, KeyPrefix: "rl_search"},
		TierBulk:    {Requests: 5, Window: time.Minute, KeyPrefix: "rl_bulk"},
	}
}

// TiersFromConfig converts configured tiers, falling back to the defaults
// for any tier that is not configured.
func TiersFromConfig(cfg config.RateLimitConfig) map[string]Tier {
	tiers := DefaultTiers()
	for name, t := range cfg.Tiers {
		tiers[name] = Tier{
			Requests:  t.Requests,
			Window:    time.Duration(t.WindowSeconds) * time.Second,
			KeyPrefix: t.KeyPrefix,
		}
	}
	return tiers
}

// Result describes the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	// ResetAt is when the current window ends.
	ResetAt time.Time
}

// Limiter checks requests against tiers.
type Limiter struct {
	cache  *cache.Cache
	tiers  map[string]Tier
	logger *slog.Logger
	now    func() time.Time
	// onReject is called for every rejected request, typically for metrics.
	onReject func(tier string)
}

// NewLimiter creates a Limiter. Unknown tiers resolve to TierDefault.
func NewLimiter(c *cache.Cache, tiers map[string]Tier, logger *slog.Logger) *Limiter {
	if tiers == nil {
		tiers = DefaultTiers()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		cache:  c,
		tiers:  tiers,
		logger: logger.With(slog.String("component", "rate_limiter")),
		now:    time.Now,
	}
}

// OnReject registers a callback run whenever a request is rejected.
func (l *Limiter) OnReject(fn func(tier string)) {
	l.onReject = fn
}

func (l *Limiter) tier(name string) (string, Tier) {
	if t, ok := l.tiers[name]; ok {
		return name, t
	}
	return TierDefault, l.tiers[TierDefault]
}

// Allow counts one request by identifier against the named tier.
func (l *Limiter) Allow(ctx context.Context, tierName, identifier string) Result {
	name, t := l.tier(tierName)
	now := l.now()
	open := Result{Allowed: true, Limit: t.Requests, Remaining: t.Requests, ResetAt: now.Add(t.Window)}

	key := t.KeyPrefix + ":" + identifier
	count, ok := l.cache.Increment(ctx, namespace, key, t.Window)
	if !ok {
		return open
	}

	res := Result{
		Allowed:   count <= int64(t.Requests),
		Limit:     t.Requests,
		Remaining: max(t.Requests-int(count), 0),
		ResetAt:   now.Add(t.Window),
	}
	if ttl, ok := l.cache.TTL(ctx, namespace, key); ok {
		res.ResetAt = now.Add(ttl)
	}

	if !res.Allowed {
		res.RetryAfter = res.ResetAt.Sub(now)
		if res.RetryAfter < time.Second {
			res.RetryAfter = time.Second
		}
		l.logger.Warn("rate limit exceeded",
			slog.String("tier", name),
			slog.String("identifier", identifier),
			slog.Int64("count", count),
			slog.Int("limit", t.Requests))
		if l.onReject != nil {
			l.onReject(name)
		}
	}
	return res
}

// Reset clears the counter for identifier in the named tier.
func (l *Limiter) Reset(ctx context.Context, tierName, identifier string) {
	_, t := l.tier(tierName)
	l.cache.Delete(ctx, namespace, t.KeyPrefix+":"+identifier)
}
