package shared

import "errors"

var (
	// ErrNotFound indicates resource not found or not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates an optimistic write was rejected by the store.
	ErrConflict = errors.New("conflicting concurrent update")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized indicates a missing or expired token.
	ErrUnauthorized = errors.New("unauthorized")
)
