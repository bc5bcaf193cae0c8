package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Glean error code.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"  // 400
	ErrNotFound        ErrorCode = "NOT_FOUND"        // 404
	ErrFileNotFound    ErrorCode = "FILE_NOT_FOUND"   // 404
	ErrCancelled       ErrorCode = "CANCELLED"        // 499
	ErrInternal        ErrorCode = "INTERNAL"         // 500
	ErrAssistantFailed ErrorCode = "ASSISTANT_FAILED" // 502
)

// GleanError represents a structured error with code, status, and details.
type GleanError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *GleanError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *GleanError {
	return &GleanError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing record of the given kind.
func NewNotFound(kind, identifier string) *GleanError {
	return &GleanError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error when a file to read does not exist.
func NewFileNotFound(path string) *GleanError {
	return &GleanError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewCancelled creates a 499 error when an operation was cancelled by its caller.
func NewCancelled(operation string) *GleanError {
	return &GleanError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
		Details: map[string]any{"operation": operation},
	}
}

// NewAssistantFailed creates a 502 error when the assistant run did not complete.
func NewAssistantFailed(status, reason string) *GleanError {
	msg := fmt.Sprintf("assistant run %s", status)
	if reason != "" {
		msg += ": " + reason
	}
	return &GleanError{
		Code:    ErrAssistantFailed,
		Status:  502,
		Message: msg,
		Details: map[string]any{"run_status": status},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *GleanError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &GleanError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error (or anything it wraps) is a GleanError with the given code.
func Is(err error, code ErrorCode) bool {
	var gErr *GleanError
	if stderrors.As(err, &gErr) {
		return gErr.Code == code
	}
	return false
}

// As returns the GleanError in err's chain, if any.
func As(err error) (*GleanError, bool) {
	var gErr *GleanError
	ok := stderrors.As(err, &gErr)
	return gErr, ok
}
