package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a DNAI error code.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST" // 400
	ErrUnauthenticated ErrorCode = "UNAUTHENTICATED" // 401
	ErrNotFound        ErrorCode = "NOT_FOUND"       // 404
	ErrConflict        ErrorCode = "CONFLICT"        // 409
	ErrImageTooLarge   ErrorCode = "IMAGE_TOO_LARGE" // 413
	ErrCorruptState    ErrorCode = "CORRUPT_STATE"   // 422
	ErrCancelled       ErrorCode = "CANCELLED"       // 499
	ErrInternal        ErrorCode = "INTERNAL"        // 500
	ErrBackend         ErrorCode = "BACKEND_ERROR"   // 502
)

// DNAIError represents a structured error with code, status, and details.
type DNAIError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *DNAIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *DNAIError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *DNAIError {
	return &DNAIError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewUnauthenticated creates a 401 error for a missing or rejected session.
func NewUnauthenticated(msg string) *DNAIError {
	if msg == "" {
		msg = "not authenticated; run login first"
	}
	return &DNAIError{
		Code:    ErrUnauthenticated,
		Status:  401,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing entry or conversation.
func NewNotFound(kind, identifier string) *DNAIError {
	return &DNAIError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewConflict creates a 409 error, e.g. for an id collision on import.
func NewConflict(msg string) *DNAIError {
	return &DNAIError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewImageTooLarge creates a 413 error when an upload exceeds the size limit.
func NewImageTooLarge(max, actual int64) *DNAIError {
	return &DNAIError{
		Code:    ErrImageTooLarge,
		Status:  413,
		Message: fmt.Sprintf("image exceeds maximum size: %d bytes (max %d)", actual, max),
		Details: map[string]any{"max_bytes": max, "actual_bytes": actual},
	}
}

// NewCorruptState creates a 422 error when persisted state fails validation.
func NewCorruptState(key, reason string) *DNAIError {
	return &DNAIError{
		Code:    ErrCorruptState,
		Status:  422,
		Message: fmt.Sprintf("stored %q is corrupt: %s", key, reason),
		Details: map[string]any{"key": key, "reason": reason},
	}
}

// NewCancelled creates a 499 error when the caller gave up on an operation.
func NewCancelled(op string) *DNAIError {
	return &DNAIError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewBackend creates a 502 error for a failed backend exchange.
// detail is the backend's own message when it supplied one.
func NewBackend(status int, detail string) *DNAIError {
	msg := detail
	if msg == "" {
		msg = fmt.Sprintf("backend returned status %d", status)
	}
	return &DNAIError{
		Code:    ErrBackend,
		Status:  502,
		Message: msg,
		Details: map[string]any{"backend_status": status},
	}
}

// NewBackendUnreachable creates a 502 error when the request never got a response.
func NewBackendUnreachable(err error) *DNAIError {
	return &DNAIError{
		Code:    ErrBackend,
		Status:  502,
		Message: fmt.Sprintf("backend unreachable: %v", err),
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *DNAIError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &DNAIError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is (or wraps) a DNAIError with the given code.
func Is(err error, code ErrorCode) bool {
	var dErr *DNAIError
	if stderrors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// As unwraps err into a DNAIError, converting anything else to INTERNAL.
func As(err error) *DNAIError {
	var dErr *DNAIError
	if stderrors.As(err, &dErr) {
		return dErr
	}
	return NewInternal(err)
}
