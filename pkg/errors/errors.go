// Package errors defines custom error types and error handling utilities for the API shield.
// This package provides structured error types that carry an error code, an HTTP status and
// an optional cause so the request layer can map failures without inspecting strings.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code is a machine readable error code
type Code string

const (
	CodeInternal           Code = "internal_error"
	CodeInvalidRequest     Code = "invalid_request"
	CodeInvalidConfig      Code = "invalid_config"
	CodeRateLimited        Code = "rate_limited"
	CodeStorageUnavailable Code = "storage_unavailable"
	CodeNotFound           Code = "not_found"
	CodeUnauthorized       Code = "unauthorized"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// ShieldError represents a structured error with additional metadata
type ShieldError interface {
	error

	// Code returns the error code
	Code() Code

	// HTTPStatus returns the HTTP status code
	HTTPStatus() int

	// Description returns a human-readable description
	Description() string

	// Message returns the error message without its cause
	Message() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause adds a cause error to the error chain
	WithCause(cause error) ShieldError

	// WithMetadata adds additional context metadata
	WithMetadata(key string, value interface{}) ShieldError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

// baseError is the internal implementation of ShieldError
type baseError struct {
	code        Code
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

// Error implements the error interface
func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *baseError) Code() Code {
	return e.code
}

func (e *baseError) HTTPStatus() int {
	return e.httpStatus
}

func (e *baseError) Description() string {
	return e.description
}

func (e *baseError) Message() string {
	return e.message
}

func (e *baseError) Unwrap() error {
	return e.cause
}

func (e *baseError) WithCause(cause error) ShieldError {
	e.cause = cause
	return e
}

func (e *baseError) WithMetadata(key string, value interface{}) ShieldError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// ================================================================================
// Error Constructors
// ================================================================================

// NewError creates a new ShieldError with the specified parameters
func NewError(code Code, httpStatus int, description string, message string) ShieldError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ErrInvalidRequest creates an invalid_request error
func ErrInvalidRequest(message string) ShieldError {
	return NewError(
		CodeInvalidRequest,
		http.StatusBadRequest,
		"The request is missing a required parameter or includes an invalid parameter value.",
		message,
	)
}

// ErrInvalidConfig creates an invalid_config error. It is raised at startup only.
func ErrInvalidConfig(message string) ShieldError {
	return NewError(
		CodeInvalidConfig,
		http.StatusInternalServerError,
		"The shield configuration is invalid.",
		message,
	)
}

// ErrRateLimited creates a rate_limited error
func ErrRateLimited(retryAfterSeconds int) ShieldError {
	return NewError(
		CodeRateLimited,
		http.StatusTooManyRequests,
		"Too many requests.",
		"rate limited",
	).WithMetadata("retry_after", retryAfterSeconds)
}

// ErrStorageUnavailable wraps a storage backend failure. The request layer decides whether
// to fail open or closed; the engine never converts it into a decision.
func ErrStorageUnavailable(op string, cause error) ShieldError {
	return NewError(
		CodeStorageUnavailable,
		http.StatusServiceUnavailable,
		"The shield storage backend is unavailable.",
		fmt.Sprintf("storage %s failed", op),
	).WithCause(cause).WithMetadata("op", op)
}

// ErrNotFound creates a not_found error
func ErrNotFound(what string) ShieldError {
	return NewError(
		CodeNotFound,
		http.StatusNotFound,
		"The requested resource was not found.",
		fmt.Sprintf("%s not found", what),
	)
}

// ErrUnauthorized creates an unauthorized error
func ErrUnauthorized(message string) ShieldError {
	return NewError(
		CodeUnauthorized,
		http.StatusUnauthorized,
		"The request lacks valid credentials.",
		message,
	)
}

// ================================================================================
// Helpers
// ================================================================================

// As finds the first ShieldError in err's chain
func As(err error) (ShieldError, bool) {
	var se ShieldError
	if stderrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code
func HasCode(err error, code Code) bool {
	se, ok := As(err)
	return ok && se.Code() == code
}

// IsStorageUnavailable reports whether err is a wrapped storage failure
func IsStorageUnavailable(err error) bool {
	return HasCode(err, CodeStorageUnavailable)
}

// HTTPStatus maps err to an HTTP status, defaulting to 500
func HTTPStatus(err error) int {
	if se, ok := As(err); ok && se.HTTPStatus() != 0 {
		return se.HTTPStatus()
	}
	return http.StatusInternalServerError
}
