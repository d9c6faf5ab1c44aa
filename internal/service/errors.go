package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/docintel-api/internal/domain"
)

// Sentinel errors returned by the document service. Validation errors wrap
// domain.ErrValidation so the API layer can map all of them to 400.
var (
	// ErrUnsupportedFileType indicates an upload whose extension is not allowed.
	ErrUnsupportedFileType = fmt.Errorf("%w: file type not allowed", domain.ErrValidation)

	// ErrFileTooLarge indicates an upload above the configured size limit.
	ErrFileTooLarge = fmt.Errorf("%w: file too large", domain.ErrValidation)

	// ErrEmptyFile indicates an upload with no content.
	ErrEmptyFile = fmt.Errorf("%w: file is empty", domain.ErrValidation)

	// ErrTooManyDocuments indicates a bulk request naming more than
	// MaxBulkDocuments IDs, or none.
	ErrTooManyDocuments = fmt.Errorf("%w: between 1 and %d document IDs required", domain.ErrValidation, MaxBulkDocuments)

	// ErrUnknownBulkAction indicates a bulk action outside the supported set.
	ErrUnknownBulkAction = fmt.Errorf("%w: unknown bulk action", domain.ErrValidation)

	// ErrBlobMissing indicates a document whose file is gone from the blob store.
	ErrBlobMissing = errors.New("document file is missing")
)

// ServiceError wraps a failure of a document service operation that is not
// one of the sentinel conditions.
type ServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("document service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("document service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(operation, message string, err error) *ServiceError {
	return &ServiceError{Operation: operation, Message: message, Err: err}
}
