// Package errors provides the error taxonomy shared by the sync core.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies an error for callers and for sync retry policy.
type ErrorCode string

const (
	// Caller-facing errors, surfaced synchronously and never queued.
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrConflict   ErrorCode = "CONFLICT"
	ErrNotFound   ErrorCode = "NOT_FOUND"

	// Sync-side errors, only ever visible through sync state.
	ErrNetwork ErrorCode = "NETWORK_ERROR" // transient, retried with backoff
	ErrAuth    ErrorCode = "AUTH_ERROR"    // blocks the queue until re-auth

	// Local durability failure. Fatal for the triggering operation;
	// previously committed state is never touched.
	ErrStorage ErrorCode = "STORAGE_ERROR"

	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of err, walking the wrap chain.
// Returns ErrInternal for errors that carry no AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Is checks if an error carries a specific code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Convenience constructors for the taxonomy.

func Validation(message string) *AppError { return New(ErrValidation, message) }
func Conflict(message string) *AppError   { return New(ErrConflict, message) }
func NotFound(message string) *AppError   { return New(ErrNotFound, message) }

func Network(message string, err error) *AppError { return Wrap(ErrNetwork, message, err) }
func Auth(message string, err error) *AppError    { return Wrap(ErrAuth, message, err) }
func Storage(message string, err error) *AppError { return Wrap(ErrStorage, message, err) }

// Predicates used at decision points in the sync engine.

func IsValidation(err error) bool { return Is(err, ErrValidation) }
func IsConflict(err error) bool   { return Is(err, ErrConflict) }
func IsNotFound(err error) bool   { return Is(err, ErrNotFound) }
func IsNetwork(err error) bool    { return Is(err, ErrNetwork) }
func IsAuth(err error) bool       { return Is(err, ErrAuth) }
func IsStorage(err error) bool    { return Is(err, ErrStorage) }
