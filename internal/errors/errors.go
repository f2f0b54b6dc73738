// FilePath: internal/errors/errors.go
package errors

import (
	"fmt"
	"net/http"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Error types
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeInvalidRange    ErrorType = "invalid_range"
	ErrorTypeUnsupportedType ErrorType = "unsupported_type"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeForbidden       ErrorType = "forbidden"
	ErrorTypeConflict        ErrorType = "conflict"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeTransient       ErrorType = "transient"
	ErrorTypeDatabase        ErrorType = "database"
	ErrorTypeAuth            ErrorType = "authentication"
	ErrorTypeInternal        ErrorType = "internal"
)

// APIError represents a structured API error
type APIError struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Code      int       `json:"code"`
	RequestID string    `json:"request_id,omitempty"`
	Details   any       `json:"details,omitempty"`
	err       error     // Internal error for logging
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the wrapped internal error
func (e *APIError) Unwrap() error {
	return e.err
}

// WithRequestID adds a request ID to the error
func (e *APIError) WithRequestID(id string) *APIError {
	e.RequestID = id
	return e
}

// WithDetails adds additional details to the error
func (e *APIError) WithDetails(details any) *APIError {
	e.Details = details
	return e
}

// NewValidationError creates a new validation error
func NewValidationError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeValidation,
		Message: msg,
		Code:    http.StatusBadRequest,
		err:     err,
	}
}

// NewInvalidRangeError creates an error for a malformed query window or limit
func NewInvalidRangeError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRange,
		Message: msg,
		Code:    http.StatusBadRequest,
		err:     err,
	}
}

// NewUnsupportedTypeError creates an error for a sensor type with no registered mapping
func NewUnsupportedTypeError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeUnsupportedType,
		Message: msg,
		Code:    http.StatusBadRequest,
		err:     err,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Message: msg,
		Code:    http.StatusNotFound,
		err:     err,
	}
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeForbidden,
		Message: msg,
		Code:    http.StatusForbidden,
		err:     err,
	}
}

// NewConflictError creates an error for duplicate unique keys
func NewConflictError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeConflict,
		Message: msg,
		Code:    http.StatusConflict,
		err:     err,
	}
}

// NewTimeoutError creates an error for an exceeded store deadline
func NewTimeoutError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeTimeout,
		Message: msg,
		Code:    http.StatusGatewayTimeout,
		err:     err,
	}
}

// NewTransientError creates an error for a temporarily unavailable store
func NewTransientError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeTransient,
		Message: msg,
		Code:    http.StatusServiceUnavailable,
		err:     err,
	}
}

// NewDatabaseError creates a new database error
func NewDatabaseError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeDatabase,
		Message: msg,
		Code:    http.StatusInternalServerError,
		err:     err,
	}
}

// NewAuthError creates a new authentication error
func NewAuthError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeAuth,
		Message: msg,
		Code:    http.StatusUnauthorized,
		err:     err,
	}
}

// NewInternalError creates a new internal server error
func NewInternalError(msg string, err error) *APIError {
	return &APIError{
		Type:    ErrorTypeInternal,
		Message: msg,
		Code:    http.StatusInternalServerError,
		err:     err,
	}
}

// IsNotFound checks if an error is a NotFound error
func IsNotFound(err error) bool {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.Type == ErrorTypeNotFound
	}
	return false
}

// IsForbidden checks if an error is a Forbidden error
func IsForbidden(err error) bool {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.Type == ErrorTypeForbidden
	}
	return false
}

// IsValidation checks if an error is a Validation error
func IsValidation(err error) bool {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.Type == ErrorTypeValidation || apiErr.Type == ErrorTypeInvalidRange || apiErr.Type == ErrorTypeUnsupportedType
	}
	return false
}

// IsConflict checks if an error is a Conflict error
func IsConflict(err error) bool {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.Type == ErrorTypeConflict
	}
	return false
}

// IsRetryable reports whether the operation may be retried with backoff.
// Only transient store failures and exceeded deadlines qualify; terminal
// decisions (NotFound, Forbidden) and validation errors never do.
func IsRetryable(err error) bool {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.Type == ErrorTypeTransient || apiErr.Type == ErrorTypeTimeout
	}
	return false
}
