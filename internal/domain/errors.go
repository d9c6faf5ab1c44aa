package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidTransition is returned when a document status change is not
	// one of the edges of the processing state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrTenantImmutable is returned when code attempts to move a document
	// to another tenant.
	ErrTenantImmutable = errors.New("tenant cannot be changed")

	// ErrForbidden is returned when the principal lacks a required permission.
	ErrForbidden = errors.New("permission denied")
)
