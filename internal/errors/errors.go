// Package errors provides a structured application error type shared by
// every component that needs to surface a classified failure across an
// HTTP boundary or a log line.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an AppError for status-code mapping and log routing.
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeAuth         ErrorType = "auth"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeCancellation ErrorType = "cancellation"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeDatabase     ErrorType = "database"
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeInternal     ErrorType = "internal"
)

var statusByType = map[ErrorType]int{
	ErrorTypeValidation:   http.StatusBadRequest,
	ErrorTypeAuth:         http.StatusUnauthorized,
	ErrorTypeNotFound:     http.StatusNotFound,
	ErrorTypeConflict:     http.StatusConflict,
	ErrorTypeTimeout:      http.StatusRequestTimeout,
	ErrorTypeCancellation: 499,
	ErrorTypeRateLimit:    http.StatusTooManyRequests,
	ErrorTypeDatabase:     http.StatusInternalServerError,
	ErrorTypeNetwork:      http.StatusInternalServerError,
	ErrorTypeInternal:     http.StatusInternalServerError,
}

// AppError is the structured error carried across package boundaries.
type AppError struct {
	Type       ErrorType
	Message    string
	Details    string
	StatusCode int
	Cause      error
}

// New creates an AppError of the given type with no wrapped cause.
func New(t ErrorType, message string) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: statusFor(t),
	}
}

// Newf creates an AppError with a formatted message.
func Newf(t ErrorType, format string, args ...any) *AppError {
	return New(t, fmt.Sprintf(format, args...))
}

// Wrap creates an AppError that preserves cause for errors.Unwrap.
func Wrap(cause error, t ErrorType, message string) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: statusFor(t),
		Cause:      cause,
	}
}

// Wrapf creates a wrapped AppError with a formatted message.
func Wrapf(cause error, t ErrorType, format string, args ...any) *AppError {
	return Wrap(cause, t, fmt.Sprintf(format, args...))
}

func statusFor(t ErrorType) int {
	if sc, ok := statusByType[t]; ok {
		return sc
	}
	return http.StatusInternalServerError
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the wrapped cause, if any.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails sets Details in place and returns the same error for chaining.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithDetailsf sets formatted Details in place.
func (e *AppError) WithDetailsf(format string, args ...any) *AppError {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// NewValidationError is a convenience constructor for validation failures.
func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message)
}

// NewNotFoundError formats a standard "<entity> not found" message.
func NewNotFoundError(entity string) *AppError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", entity))
}

// NewDatabaseError wraps a database driver error with the failing operation name.
func NewDatabaseError(operation string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeDatabase, "database operation failed: %s", operation)
}

// NewTimeoutError builds a Failed-status timeout error per spec §7.
func NewTimeoutError(message string) *AppError {
	if message == "" {
		message = "operation timed out"
	}
	return New(ErrorTypeTimeout, message)
}

// NewCancellationError builds the canonical cancellation message used by
// the execution engine when the caller's context is canceled.
func NewCancellationError() *AppError {
	return New(ErrorTypeCancellation, "Workflow execution was canceled")
}

// As reports whether err is (or wraps) an *AppError, mirroring errors.As.
func As(err error, target **AppError) bool {
	return errors.As(err, target)
}
