package auth

import "errors"

// Common authentication service errors
var (
	// ErrInvalidToken indicates the token format is invalid or signature doesn't match
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrExpiredToken indicates the token has expired
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrTokenNotYetValid indicates the token is not yet valid (nbf claim in the future)
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")

	// ErrMissingToken indicates a token was expected but not provided
	ErrMissingToken = errors.New("authentication token is missing")

	// ErrWrongTokenType indicates a refresh token was presented as an access
	// token or vice versa.
	ErrWrongTokenType = errors.New("wrong token type")

	// ErrMissingTenant indicates a token that does not name a tenant.
	ErrMissingTenant = errors.New("authentication token has no tenant")

	// ErrInvalidAPIKey indicates an API key that is malformed, unknown,
	// inactive, expired or does not match its stored hash.
	ErrInvalidAPIKey = errors.New("invalid API key")
)
