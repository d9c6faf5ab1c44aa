package mocks

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/store"
)

// APIKeyStore is an in-memory store.APIKeyStore.
type APIKeyStore struct {
	mu   sync.Mutex
	keys []*domain.APIKey

	// Touched records the IDs passed to TouchLastUsed.
	Touched []uuid.UUID
}

var _ store.APIKeyStore = (*APIKeyStore)(nil)

// NewAPIKeyStore creates a store holding keys.
func NewAPIKeyStore(keys ...*domain.APIKey) *APIKeyStore {
	return &APIKeyStore{keys: keys}
}

// FindByPrefix implements store.APIKeyStore.
func (s *APIKeyStore) FindByPrefix(_ context.Context, prefix string) ([]*domain.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.APIKey
	for _, k := range s.keys {
		if k.Prefix == prefix {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

// TouchLastUsed implements store.APIKeyStore.
func (s *APIKeyStore) TouchLastUsed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Touched = append(s.Touched, id)
	return nil
}
