package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// ValidationFailed indicates malformed or incomplete ingestion input
	ValidationFailed ErrorCode = "VALIDATION_FAILED"
	// Unauthorized indicates a missing identity or insufficient privilege
	Unauthorized ErrorCode = "UNAUTHORIZED"
	// StateInvalid indicates a lifecycle transition attempted from the wrong state
	StateInvalid ErrorCode = "STATE_INVALID"
	// NotFound indicates an unknown external id or resource
	NotFound ErrorCode = "NOT_FOUND"
	// StoreError indicates an underlying database failure
	StoreError ErrorCode = "STORE_ERROR"
)

// Error is a coded error carrying an optional underlying cause.
type Error struct {
	Code    ErrorCode
	Message string
	cause   error
}

// New creates a coded error without a cause
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error wrapping an underlying cause
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// HasCode reports whether err is a coded error with the given code
func HasCode(err error, code ErrorCode) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// ValidationError carries the itemized problems found while validating an
// ingestion attempt. Nothing is committed when one is returned.
type ValidationError struct {
	Problems []string
}

// NewValidationError creates a validation error from an itemized problem list
func NewValidationError(problems []string) *ValidationError {
	return &ValidationError{Problems: problems}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s", ValidationFailed, strings.Join(e.Problems, "; "))
}
