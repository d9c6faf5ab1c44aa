// Package cache provides a namespaced, fail-open key-value cache.
//
// Keys have the form "docintel:{namespace}:{key}". Within a namespace, keys
// may be grouped into partitions (the document listings use one partition
// per tenant) so invalidation can be scoped. Every operation swallows backend
// errors after logging them: a broken cache degrades to a cache miss and
// never fails the caller.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/docintel-api/internal/platform/logger"
)

// KeyPrefix is the application prefix of every cache key.
const KeyPrefix = "docintel"

// DefaultTTL applies when Set is called with a zero TTL.
const DefaultTTL = 300 * time.Second

// HitRecorder observes cache lookups, typically to feed metrics.
type HitRecorder func(namespace string, hit bool)

// Cache is a namespaced cache over a Backend.
type Cache struct {
	backend    Backend
	defaultTTL time.Duration
	logger     *slog.Logger
	onLookup   HitRecorder
}

// Option configures a Cache.
type Option func(*Cache)

// WithDefaultTTL overrides DefaultTTL.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithLogger sets the logger used for backend failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHitRecorder registers a callback invoked after every Get.
func WithHitRecorder(fn HitRecorder) Option {
	return func(c *Cache) { c.onLookup = fn }
}

// New creates a Cache over backend.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend:    backend,
		defaultTTL: DefaultTTL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "cache"))
	return c
}

// Key builds the fully qualified key for namespace and key.
func Key(namespace, key string) string {
	return KeyPrefix + ":" + namespace + ":" + key
}

func generationKey(namespace, partition string) string {
	return KeyPrefix + ":_gen:" + namespace + ":" + partition
}

func (c *Cache) log(ctx context.Context) *slog.Logger {
	return logger.FromContextOrDefault(ctx, c.logger)
}

// Get decodes the cached JSON value into dest and reports a hit. Misses,
// decode failures and backend errors all report false.
func (c *Cache) Get(ctx context.Context, namespace, key string, dest any) bool {
	if c == nil {
		return false
	}
	raw, ok, err := c.backend.Get(ctx, Key(namespace, key))
	if err != nil {
		c.log(ctx).Warn("cache get failed", slog.String("namespace", namespace), slog.String("error", err.Error()))
		ok = false
	}
	if ok {
		if err := json.Unmarshal(raw, dest); err != nil {
			c.log(ctx).Warn("cache entry undecodable", slog.String("namespace", namespace), slog.String("error", err.Error()))
			ok = false
		}
	}
	if c.onLookup != nil {
		c.onLookup(namespace, ok)
	}
	return ok
}

// Set stores value as JSON. A zero ttl uses the default TTL.
func (c *Cache) Set(ctx context.Context, namespace, key string, value any, ttl time.Duration) bool {
	if c == nil {
		return false
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.log(ctx).Warn("cache value not serializable", slog.String("namespace", namespace), slog.String("error", err.Error()))
		return false
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.backend.Set(ctx, Key(namespace, key), raw, ttl); err != nil {
		c.log(ctx).Warn("cache set failed", slog.String("namespace", namespace), slog.String("error", err.Error()))
		return false
	}
	return true
}

// Delete removes a single key.
func (c *Cache) Delete(ctx context.Context, namespace, key string) bool {
	if c == nil {
		return false
	}
	n, err := c.backend.Delete(ctx, Key(namespace, key))
	if err != nil {
		c.log(ctx).Warn("cache delete failed", slog.String("namespace", namespace), slog.String("error", err.Error()))
		return false
	}
	return n > 0
}

// Exists reports whether key is present.
func (c *Cache) Exists(ctx context.Context, namespace, key string) bool {
	if c == nil {
		return false
	}
	ok, err := c.backend.Exists(ctx, Key(namespace, key))
	if err != nil {
		c.log(ctx).Warn("cache exists failed", slog.String("namespace", namespace), slog.String("error", err.Error()))
		return false
	}
	return ok
}

// Increment bumps a counter that expires window after its first increment.
// The boolean is false when the backend is unavailable.
func (c *Cache) Increment(ctx context.Context, namespace, key string, window time.Duration) (int64, bool) {
	if c == nil {
		return 0, false
	}
	n, err := c.backend.Incr(ctx, Key(namespace, key), window)
	if err != nil {
		c.log(ctx).Warn("cache increment failed", slog.String("namespace", namespace), slog.String("error", err.Error()))
		return 0, false
	}
	return n, true
}

// TTL returns the remaining lifetime of key.
func (c *Cache) TTL(ctx context.Context, namespace, key string) (time.Duration, bool) {
	if c == nil {
		return 0, false
	}
	ttl, err := c.backend.TTL(ctx, Key(namespace, key))
	if err != nil || ttl < 0 {
		if err != nil {
			c.log(ctx).Warn("cache ttl failed", slog.String("namespace", namespace), slog.String("error", err.Error()))
		}
		return 0, false
	}
	return ttl, true
}

// InvalidateNamespace drops every entry in namespace and advances every
// partition generation of it. Returns the number of keys deleted.
func (c *Cache) InvalidateNamespace(ctx context.Context, namespace string) int64 {
	if c == nil {
		return 0
	}
	genKeys, err := c.backend.Keys(ctx, generationKey(namespace, "*"))
	if err != nil {
		c.log(ctx).Warn("cache generation scan failed", slog.String("namespace", namespace), slog.String("error", err.Error()))
	}
	for _, k := range genKeys {
		if _, err := c.backend.Incr(ctx, k, 0); err != nil {
			c.log(ctx).Warn("cache generation bump failed", slog.String("namespace", namespace), slog.String("error", err.Error()))
		}
	}
	return c.deletePattern(ctx, namespace, Key(namespace, "*"))
}

// InvalidatePartition drops the entries of one partition of namespace and
// advances its generation so values computed before the call are never
// stored where later reads look.
func (c *Cache) InvalidatePartition(ctx context.Context, namespace, partition string) int64 {
	if c == nil {
		return 0
	}
	if _, err := c.backend.Incr(ctx, generationKey(namespace, partition), 0); err != nil {
		c.log(ctx).Warn("cache generation bump failed",
			slog.String("namespace", namespace),
			slog.String("partition", partition),
			slog.String("error", err.Error()))
	}
	return c.deletePattern(ctx, namespace, Key(namespace, partition+":*"))
}

func (c *Cache) deletePattern(ctx context.Context, namespace, pattern string) int64 {
	keys, err := c.backend.Keys(ctx, pattern)
	if err != nil {
		c.log(ctx).Warn("cache invalidation scan failed", slog.String("namespace", namespace), slog.String("error", err.Error()))
		return 0
	}
	n, err := c.backend.Delete(ctx, keys...)
	if err != nil {
		c.log(ctx).Warn("cache invalidation delete failed", slog.String("namespace", namespace), slog.String("error", err.Error()))
		return 0
	}
	c.log(ctx).Debug("cache namespace invalidated",
		slog.String("namespace", namespace),
		slog.String("pattern", pattern),
		slog.Int64("deleted", n))
	return n
}

// PartitionKey returns the key for key inside partition at the partition's
// current generation. The boolean is false if the generation could not be
// read, in which case the result must not be cached.
func (c *Cache) PartitionKey(ctx context.Context, namespace, partition, key string) (string, bool) {
	if c == nil {
		return "", false
	}
	gen := int64(0)
	raw, ok, err := c.backend.Get(ctx, generationKey(namespace, partition))
	if err != nil {
		c.log(ctx).Warn("cache generation read failed", slog.String("namespace", namespace), slog.String("error", err.Error()))
		return "", false
	}
	if ok {
		if gen, err = strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64); err != nil {
			gen = 0
		}
	}
	return partition + ":g" + strconv.FormatInt(gen, 10) + ":" + key, true
}

// GetOrCompute returns the cached value for key in partition, or calls fn,
// caches its result for ttl and returns it. Errors from fn are returned and
// never cached. Cache failures fall through to fn.
func GetOrCompute[T any](
	ctx context.Context,
	c *Cache,
	namespace, partition, key string,
	ttl time.Duration,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	fullKey, cacheable := c.PartitionKey(ctx, namespace, partition, key)
	if cacheable {
		var cached T
		if c.Get(ctx, namespace, fullKey, &cached) {
			return cached, nil
		}
	}

	value, err := fn(ctx)
	if err != nil {
		return value, err
	}
	if cacheable {
		c.Set(ctx, namespace, fullKey, value, ttl)
	}
	return value, nil
}
