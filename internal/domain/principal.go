package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Permission names used by the document API, in "resource:action" form.
const (
	PermissionDocumentsCreate = "documents:create"
	PermissionDocumentsRead   = "documents:read"
	PermissionDocumentsUpdate = "documents:update"
	PermissionDocumentsDelete = "documents:delete"
)

// Principal is the authenticated caller of a request. Every document
// operation is scoped to Principal.TenantID.
type Principal struct {
	UserID      uuid.UUID
	TenantID    uuid.UUID
	Permissions []string
	// APIKeyID is set when the caller authenticated with an API key.
	APIKeyID *uuid.UUID
}

// HasPermission reports whether the principal holds the permission, either
// exactly or through a "resource:*" or "*:*" wildcard.
func (p *Principal) HasPermission(permission string) bool {
	if p == nil {
		return false
	}
	resource, _, ok := strings.Cut(permission, ":")
	if !ok {
		return false
	}
	for _, granted := range p.Permissions {
		switch granted {
		case permission, resource + ":*", "*:*":
			return true
		}
	}
	return false
}
