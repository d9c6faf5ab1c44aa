package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docintel-api/internal/domain"
)

// Token types carried in the "type" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// JWTService defines operations for managing JWT authentication tokens.
type JWTService interface {
	// GenerateToken creates a signed access token for the principal.
	GenerateToken(ctx context.Context, principal *domain.Principal) (string, error)

	// ValidateToken validates an access token and extracts its claims.
	// Returns ErrExpiredToken, ErrInvalidToken or ErrWrongTokenType on failure.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)

	// GenerateRefreshToken creates a longer-lived refresh token.
	GenerateRefreshToken(ctx context.Context, principal *domain.Principal) (string, error)

	// ValidateRefreshToken validates a refresh token and extracts its claims.
	ValidateRefreshToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents the custom claims structure for the JWT tokens.
type Claims struct {
	UserID      uuid.UUID `json:"uid,omitempty"`
	TenantID    uuid.UUID `json:"tid,omitempty"`
	Permissions []string  `json:"perms,omitempty"`

	// TokenType indicates the purpose of the token ("access" or "refresh").
	TokenType string `json:"type,omitempty"`

	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}

// Principal returns the caller identified by the claims.
func (c *Claims) Principal() *domain.Principal {
	return &domain.Principal{
		UserID:      c.UserID,
		TenantID:    c.TenantID,
		Permissions: c.Permissions,
	}
}
