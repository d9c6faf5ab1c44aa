package domain

import (
	"time"

	"github.com/google/uuid"
)

// APIKeyPrefixLength is the number of leading characters of a key stored in
// clear for lookup.
const APIKeyPrefixLength = 8

// APIKey is a long-lived credential bound to a user within a tenant. Only the
// bcrypt hash of the secret is stored.
type APIKey struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	UserID      uuid.UUID  `json:"user_id"`
	Name        string     `json:"name"`
	Prefix      string     `json:"prefix"`
	KeyHash     string     `json:"-"`
	Permissions []string   `json:"permissions"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsUsable reports whether the key is active and not expired at now.
func (k *APIKey) IsUsable(now time.Time) bool {
	if !k.IsActive {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}

// Principal returns the principal the key authenticates as.
func (k *APIKey) Principal() *Principal {
	id := k.ID
	return &Principal{
		UserID:      k.UserID,
		TenantID:    k.TenantID,
		Permissions: k.Permissions,
		APIKeyID:    &id,
	}
}
