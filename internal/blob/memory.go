package blob

import (
	"context"
	"sync"
)

// MemoryStore keeps objects in a map. It is used by tests and by
// single-process development setups.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// SaveErr and GetErr, when set, are returned by Save and Get.
	SaveErr error
	GetErr  error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, data []byte, p string) (string, error) {
	if m.SaveErr != nil {
		return "", m.SaveErr
	}
	key, err := cleanKey(p)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return key, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, p string) ([]byte, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	key, err := cleanKey(p)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, p string) (bool, error) {
	key, err := cleanKey(p)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	delete(m.objects, key)
	return ok, nil
}

// Exists implements Store.
func (m *MemoryStore) Exists(_ context.Context, p string) (bool, error) {
	key, err := cleanKey(p)
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

// URL implements Store.
func (m *MemoryStore) URL(_ context.Context, p string) (string, error) {
	key, err := cleanKey(p)
	if err != nil {
		return "", err
	}
	return "memory://" + key, nil
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
