package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a strand error code.
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"    // 400
	ErrMalformedEncoding ErrorCode = "MALFORMED_ENCODING" // 400
	ErrNotFound          ErrorCode = "NOT_FOUND"          // 404
	ErrFileNotFound      ErrorCode = "FILE_NOT_FOUND"     // 404
	ErrAlreadyExists     ErrorCode = "ALREADY_EXISTS"     // 409
	ErrInputTooLarge     ErrorCode = "INPUT_TOO_LARGE"    // 413
	ErrOutputTooLarge    ErrorCode = "OUTPUT_TOO_LARGE"   // 413
	ErrCancelled         ErrorCode = "CANCELLED"          // 499
	ErrInternal          ErrorCode = "INTERNAL"           // 500
)

// StrandError represents a structured error with code, status, and details.
type StrandError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *StrandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *StrandError {
	return &StrandError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewMalformedEncoding creates a 400 error for run-length input that cannot be decoded.
func NewMalformedEncoding(offset int, reason string) *StrandError {
	return &StrandError{
		Code:    ErrMalformedEncoding,
		Status:  400,
		Message: fmt.Sprintf("malformed encoding at byte %d: %s", offset, reason),
		Details: map[string]any{"offset": offset, "reason": reason},
	}
}

// NewNotFound creates a 404 error for when a run cannot be found.
func NewNotFound(identifier string) *StrandError {
	return &StrandError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("run not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing import or batch file.
func NewFileNotFound(path string) *StrandError {
	return &StrandError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewAlreadyExists creates a 409 error when a run ID is already taken.
func NewAlreadyExists(id string) *StrandError {
	return &StrandError{
		Code:    ErrAlreadyExists,
		Status:  409,
		Message: fmt.Sprintf("run already exists: %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewInputTooLarge creates a 413 error when input exceeds the configured size limit.
func NewInputTooLarge(max, actual int) *StrandError {
	return &StrandError{
		Code:    ErrInputTooLarge,
		Status:  413,
		Message: fmt.Sprintf("input exceeds maximum size: %d chars (max %d)", actual, max),
		Details: map[string]any{"max_chars": max, "actual_chars": actual},
	}
}

// NewOutputTooLarge creates a 413 error when a decoded result would exceed its limit.
func NewOutputTooLarge(max int) *StrandError {
	return &StrandError{
		Code:    ErrOutputTooLarge,
		Status:  413,
		Message: fmt.Sprintf("decoded output exceeds maximum size of %d chars", max),
		Details: map[string]any{"max_chars": max},
	}
}

// NewCancelled creates a 499 error when an operation observes context cancellation.
func NewCancelled(op string) *StrandError {
	return &StrandError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *StrandError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &StrandError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// As extracts a *StrandError from err, following wrapped errors.
func As(err error) (*StrandError, bool) {
	var sErr *StrandError
	if stderrors.As(err, &sErr) {
		return sErr, true
	}
	return nil, false
}

// Is checks if an error (or anything it wraps) is a StrandError with the given code.
func Is(err error, code ErrorCode) bool {
	if sErr, ok := As(err); ok {
		return sErr.Code == code
	}
	return false
}
