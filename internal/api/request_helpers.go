package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/docintel-api/internal/api/shared"
	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/service/auth"
)

// getPrincipal returns the principal set by the auth middleware, writing a
// 401 response when there is none.
func getPrincipal(w http.ResponseWriter, r *http.Request, log *slog.Logger) (*domain.Principal, bool) {
	p, ok := shared.GetPrincipal(r.Context())
	if !ok {
		log.Warn("principal not found in request context")
		HandleAPIError(w, r, auth.ErrMissingToken, "")
		return nil, false
	}
	return p, true
}

// getPathUUID parses the named chi path parameter as a UUID.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	raw := chi.URLParam(r, paramName)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: %s is required", domain.ErrValidation, paramName)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", domain.ErrInvalidID, paramName)
	}
	return id, nil
}

// handlePrincipalAndPathUUID combines getPrincipal and getPathUUID, writing
// the error response itself when either fails.
func handlePrincipalAndPathUUID(
	w http.ResponseWriter,
	r *http.Request,
	paramName string,
	log *slog.Logger,
) (*domain.Principal, uuid.UUID, bool) {
	p, ok := getPrincipal(w, r, log)
	if !ok {
		return nil, uuid.Nil, false
	}
	id, err := getPathUUID(r, paramName)
	if err != nil {
		log.Debug("invalid path parameter",
			slog.String("param_name", paramName),
			slog.String("value", chi.URLParam(r, paramName)))
		HandleAPIError(w, r, err, "")
		return nil, uuid.Nil, false
	}
	return p, id, true
}
