// Package errors provides standardized API error types and the error
// classification used by the billing engine.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation decisions.
type Kind string

const (
	KindInternal       Kind = "internal"
	KindAuthentication Kind = "authentication"
	KindConfiguration  Kind = "configuration"
	KindNotFound       Kind = "not_found"
	KindStorage        Kind = "storage"
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindForbidden      Kind = "forbidden"
	KindRateLimited    Kind = "rate_limited"
	KindUnavailable    Kind = "unavailable"
)

// APIError represents a standardized API error response.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Details    any    `json:"details,omitempty"`
	Kind       Kind   `json:"-"`
	cause      error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *APIError) Unwrap() error {
	return e.cause
}

// WithDetails returns a copy of the error with additional details.
func (e *APIError) WithDetails(details any) *APIError {
	c := *e
	c.Details = details
	return &c
}

// WithMessage returns a copy of the error with a custom message.
func (e *APIError) WithMessage(message string) *APIError {
	c := *e
	c.Message = message
	return &c
}

// Wrap returns a copy of the error carrying cause.
func (e *APIError) Wrap(cause error) *APIError {
	c := *e
	c.cause = cause
	return &c
}

// Standard error definitions
var (
	// ErrUnauthorized is returned when authentication is required but missing or invalid.
	ErrUnauthorized = &APIError{
		Code:       "unauthorized",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
		Kind:       KindAuthentication,
	}

	// ErrForbidden is returned when the caller lacks permission for an action.
	ErrForbidden = &APIError{
		Code:       "forbidden",
		Message:    "You don't have permission to perform this action",
		StatusCode: http.StatusForbidden,
		Kind:       KindForbidden,
	}

	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = &APIError{
		Code:       "not_found",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
		Kind:       KindNotFound,
	}

	// ErrBadRequest is returned when the request is malformed.
	ErrBadRequest = &APIError{
		Code:       "bad_request",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
		Kind:       KindValidation,
	}

	// ErrRateLimited is returned when rate limits are exceeded.
	ErrRateLimited = &APIError{
		Code:       "rate_limited",
		Message:    "Too many requests. Please try again later.",
		StatusCode: http.StatusTooManyRequests,
		Kind:       KindRateLimited,
	}

	// ErrQuotaExceeded is returned when plan limits are exceeded.
	ErrQuotaExceeded = &APIError{
		Code:       "quota_exceeded",
		Message:    "You've exceeded your plan limits",
		StatusCode: http.StatusPaymentRequired,
		Kind:       KindForbidden,
	}

	// ErrInternal is returned for unexpected server errors.
	ErrInternal = &APIError{
		Code:       "internal_error",
		Message:    "An internal error occurred",
		StatusCode: http.StatusInternalServerError,
		Kind:       KindInternal,
	}

	// ErrConflict is returned when a resource already exists.
	ErrConflict = &APIError{
		Code:       "conflict",
		Message:    "Resource already exists",
		StatusCode: http.StatusConflict,
		Kind:       KindConflict,
	}

	// ErrServiceUnavailable is returned when a dependent service is unavailable.
	ErrServiceUnavailable = &APIError{
		Code:       "service_unavailable",
		Message:    "Service temporarily unavailable",
		StatusCode: http.StatusServiceUnavailable,
		Kind:       KindUnavailable,
	}
)

// NewValidationError creates a validation error for a specific field.
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Code:       "validation_error",
		Message:    fmt.Sprintf("Validation failed: %s", message),
		StatusCode: http.StatusBadRequest,
		Kind:       KindValidation,
		Details: map[string]string{
			"field": field,
			"error": message,
		},
	}
}

// NewValidationErrors creates a validation error with multiple field errors.
func NewValidationErrors(errors map[string]string) *APIError {
	return &APIError{
		Code:       "validation_error",
		Message:    "One or more fields failed validation",
		StatusCode: http.StatusBadRequest,
		Kind:       KindValidation,
		Details:    errors,
	}
}

// NewNotFoundError creates a not found error for a specific resource type.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "not_found",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Kind:       KindNotFound,
	}
}

// NewConflictError creates a conflict error with a custom message.
func NewConflictError(message string) *APIError {
	return &APIError{
		Code:       "conflict",
		Message:    message,
		StatusCode: http.StatusConflict,
		Kind:       KindConflict,
	}
}

// NewInternalError creates an internal error with a custom message.
// This should only be used in development; in production, use ErrInternal.
func NewInternalError(message string) *APIError {
	return &APIError{
		Code:       "internal_error",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Kind:       KindInternal,
	}
}

// NewAuthenticationError reports a missing or invalid provider signature.
// The provider is expected to retry the delivery.
func NewAuthenticationError(message string) *APIError {
	return &APIError{
		Code:       "authentication_failed",
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Kind:       KindAuthentication,
	}
}

// NewConfigurationError reports a missing price or plan mapping. Inside
// webhook processing it is logged and absorbed.
func NewConfigurationError(format string, args ...any) *APIError {
	return &APIError{
		Code:       "configuration_error",
		Message:    fmt.Sprintf(format, args...),
		StatusCode: http.StatusInternalServerError,
		Kind:       KindConfiguration,
	}
}

// NewStorageError wraps a failed store operation. Storage errors are
// retryable and must never be swallowed.
func NewStorageError(op string, err error) *APIError {
	return &APIError{
		Code:       "storage_error",
		Message:    fmt.Sprintf("storage: %s failed", op),
		StatusCode: http.StatusServiceUnavailable,
		Kind:       KindStorage,
		cause:      err,
	}
}

// IsAPIError checks if an error is an APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// AsAPIError converts an error to an APIError if possible.
// Returns ErrInternal if the error is not an APIError.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return ErrInternal
}

// Classify returns the kind of err. Errors that carry no classification
// are internal.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Kind != "" {
		return apiErr.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && Classify(err) == kind
}

// Retryable reports whether the caller may retry the failed operation.
func Retryable(err error) bool {
	switch Classify(err) {
	case KindStorage, KindInternal, KindUnavailable:
		return true
	}
	return false
}
