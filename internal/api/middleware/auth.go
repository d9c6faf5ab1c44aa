package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/docintel-api/internal/api/shared"
	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/platform/logger"
	"github.com/phrazzld/docintel-api/internal/service/auth"
)

// APIKeyHeader carries an API key as an alternative to a bearer token.
const APIKeyHeader = "X-API-Key"

// APIKeyAuthenticator resolves a raw API key to a principal.
type APIKeyAuthenticator interface {
	Authenticate(ctx context.Context, raw string) (*domain.Principal, error)
}

// AuthMiddleware authenticates requests by bearer JWT or API key.
type AuthMiddleware struct {
	jwtService auth.JWTService
	apiKeys    APIKeyAuthenticator
	logger     *slog.Logger
}

// NewAuthMiddleware creates an AuthMiddleware. apiKeys may be nil, in which
// case only bearer tokens are accepted.
func NewAuthMiddleware(jwtService auth.JWTService, apiKeys APIKeyAuthenticator, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{
		jwtService: jwtService,
		apiKeys:    apiKeys,
		logger:     logger.With(slog.String("component", "auth_middleware")),
	}
}

// Authenticate resolves the caller to a *domain.Principal and stores it in
// the request context. Requests without valid credentials get a 401.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.principal(r)
		if err != nil {
			status, msg := authFailure(err)
			opts := []shared.ResponseOption{}
			if status == http.StatusUnauthorized {
				opts = append(opts, shared.WithElevatedLogLevel())
			}
			shared.RespondWithErrorAndLog(w, r, status, msg, err, opts...)
			return
		}

		log := logger.FromContextOrDefault(r.Context(), m.logger).With(
			slog.String("user_id", principal.UserID.String()),
			slog.String("tenant_id", principal.TenantID.String()))
		ctx := shared.WithPrincipal(r.Context(), principal)
		ctx = logger.WithLogger(ctx, log)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) principal(r *http.Request) (*domain.Principal, error) {
	if raw := strings.TrimSpace(r.Header.Get(APIKeyHeader)); raw != "" {
		if m.apiKeys == nil {
			return nil, auth.ErrInvalidAPIKey
		}
		return m.apiKeys.Authenticate(r.Context(), raw)
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, auth.ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, auth.ErrInvalidToken
	}
	claims, err := m.jwtService.ValidateToken(r.Context(), strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	return claims.Principal(), nil
}

func authFailure(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized, "Authentication required"
	case errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "Token expired"
	case errors.Is(err, auth.ErrInvalidAPIKey):
		return http.StatusUnauthorized, "Invalid API key"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrMissingTenant):
		return http.StatusUnauthorized, "Invalid token"
	default:
		return http.StatusInternalServerError, "Authentication error"
	}
}

// RequirePermission rejects authenticated callers lacking permission with a
// 403. It must run after Authenticate.
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := shared.GetPrincipal(r.Context())
			if !ok {
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !p.HasPermission(permission) {
				shared.RespondWithErrorAndLog(w, r, http.StatusForbidden, "Permission denied",
					domain.ErrForbidden, shared.WithElevatedLogLevel())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
