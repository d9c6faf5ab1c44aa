package cache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Backend is the raw key-value store behind Cache. Keys passed to a Backend
// are already fully qualified.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Incr increments the counter at key and starts its expiry on the first
	// increment of a window.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	// TTL returns the remaining lifetime, or a negative duration for keys
	// without expiry or that do not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Keys lists keys matching a glob pattern whose only wildcard is a
	// trailing '*'.
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
}

// ErrNotInteger is returned by MemoryBackend.Incr for non-numeric values.
var ErrNotInteger = errors.New("value is not an integer")

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryBackend is an in-process Backend used when Redis is disabled and in
// tests. It is safe for concurrent use.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry), now: time.Now}
}

var _ Backend = (*MemoryBackend)(nil)

func (m *MemoryBackend) lookup(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return e, false
	}
	if e.expired(m.now()) {
		delete(m.entries, key)
		return e, false
	}
	return e, true
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Set implements Backend.
func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := m.lookup(k); ok {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Exists implements Backend.
func (m *MemoryBackend) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lookup(key)
	return ok, nil
}

// Incr implements Backend.
func (m *MemoryBackend) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(key)
	var n int64
	if ok && len(e.value) > 0 {
		parsed, err := strconv.ParseInt(string(e.value), 10, 64)
		if err != nil {
			return 0, ErrNotInteger
		}
		n = parsed
	}
	if !ok {
		e = memoryEntry{}
		if window > 0 {
			e.expiresAt = m.now().Add(window)
		}
	}
	n++
	e.value = []byte(strconv.FormatInt(n, 10))
	m.entries[key] = e
	return n, nil
}

// TTL implements Backend.
func (m *MemoryBackend) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(key)
	if !ok {
		return -2 * time.Second, nil
	}
	if e.expiresAt.IsZero() {
		return -1 * time.Second, nil
	}
	return e.expiresAt.Sub(m.now()), nil
}

// Keys implements Backend.
func (m *MemoryBackend) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.entries {
		if _, ok := m.lookup(k); ok && matchPattern(pattern, k) {
			out = append(out, k)
		}
	}
	return out, nil
}

// Ping implements Backend.
func (m *MemoryBackend) Ping(context.Context) error { return nil }

func matchPattern(pattern, key string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}
