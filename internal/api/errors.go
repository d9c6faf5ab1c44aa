package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/docintel-api/internal/api/shared"
	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/service"
	"github.com/phrazzld/docintel-api/internal/service/auth"
	"github.com/phrazzld/docintel-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// exposing their types to clients.
func MapErrorToStatusCode(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrMissingTenant),
		errors.Is(err, auth.ErrInvalidAPIKey):
		return http.StatusUnauthorized

	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden

	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, service.ErrBlobMissing):
		return http.StatusNotFound

	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, shared.ErrEmptyBody),
		errors.As(err, &verrs):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err that leaks no
// internal detail.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrMissingToken):
		return "Authentication required"
	case errors.Is(err, auth.ErrInvalidAPIKey):
		return "Invalid API key"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrMissingTenant):
		return "Invalid token"

	case errors.Is(err, domain.ErrForbidden):
		return "Permission denied"

	case errors.Is(err, store.ErrDocumentNotFound):
		return "Document not found"
	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, service.ErrBlobMissing):
		return "File not found"
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"

	case errors.Is(err, service.ErrUnsupportedFileType):
		return "File type not allowed. Allowed types: " + strings.Join(service.DefaultAllowedExtensions, ", ")
	case errors.Is(err, service.ErrFileTooLarge):
		return "File too large"
	case errors.Is(err, service.ErrEmptyFile):
		return "File is empty"
	case errors.Is(err, service.ErrTooManyDocuments):
		return fmt.Sprintf("Between 1 and %d document IDs are required", service.MaxBulkDocuments)
	case errors.Is(err, service.ErrUnknownBulkAction):
		return "Unknown bulk action"
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"
	case errors.As(err, &verrs):
		return SanitizeValidationError(err)
	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid ID format"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "Operation not allowed in the document's current status"
	case errors.Is(err, store.ErrDuplicate):
		return "Resource already exists"
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return validationMessage(err)

	default:
		return "An unexpected error occurred"
	}
}

// validationMessage returns the detail after the "validation failed: "
// prefix. Service validation messages are written for clients.
func validationMessage(err error) string {
	msg := err.Error()
	if _, detail, ok := strings.Cut(msg, domain.ErrValidation.Error()+": "); ok && detail != "" {
		return detail
	}
	return "Validation error"
}

// SanitizeValidationError turns validator errors into "Invalid <field>:
// <reason>" without echoing submitted values.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}
	fe := verrs[0]
	return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "uuid", "uuid4":
		return "invalid ID format"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the mapped status and safe message for err. A
// non-empty fallback replaces the generic message of 500 responses.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		msg = fallback
	}
	var opts []shared.ResponseOption
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err, opts...)
}
