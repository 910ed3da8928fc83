// Package apperror defines the error taxonomy shared by all layers.
//
// Services return these typed errors; the HTTP layer maps them onto status
// codes, and the execution engine maps them onto terminal record states.
// Callers check categories with errors.Is against the sentinel values.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// Sandbox error categories. All four surface as terminal states on an
	// execution record, never as errors escaping the execution service.
	ErrSecurityViolation = errors.New("security violation")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrSpawnFailure      = errors.New("spawn failure")
	ErrResourceLimit     = errors.New("resource limit exceeded")
)

type AppError struct {
	Err     error  // category sentinel
	Message string // human-readable, safe to surface to clients
	Field   string // optional: field or token causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized returns an AppError for missing or bad credentials.
// HTTP handlers map this to 401 Unauthorized.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// SecurityViolation reports code rejected by the validator. Token names the
// matched rule or literal so it can be audit-logged; the message never
// echoes anything beyond the token itself.
func SecurityViolation(token, message string) *AppError {
	return &AppError{
		Err:     ErrSecurityViolation,
		Message: message,
		Field:   token,
	}
}

// RateLimited reports a pre-execution denial by the rate limiter.
func RateLimited(message string) *AppError {
	return &AppError{
		Err:     ErrRateLimited,
		Message: message,
	}
}

// SpawnFailure reports an OS-level failure to start or run the interpreter
// (missing binary, permission denied, broken output pipes). Always terminal
// for the request.
func SpawnFailure(message string) *AppError {
	return &AppError{
		Err:     ErrSpawnFailure,
		Message: message,
	}
}

// ResourceLimit reports an execution stopped by an enforced bound: the
// wall-clock timeout or the output byte cap.
func ResourceLimit(message string) *AppError {
	return &AppError{
		Err:     ErrResourceLimit,
		Message: message,
	}
}
