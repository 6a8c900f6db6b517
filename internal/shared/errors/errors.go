// Package errors provides application-level error types carrying an HTTP
// status so handlers can map failures without switch ladders.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an application error.
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation_error"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeBusy        ErrorType = "busy"
	ErrorTypeUnavailable ErrorType = "unavailable"
	ErrorTypeInternal    ErrorType = "internal_error"
)

// AppError is an application error with HTTP mapping context.
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details string    `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewValidationError reports malformed caller input (HTTP 400).
func NewValidationError(message string, details ...string) *AppError {
	return newError(ErrorTypeValidation, message, http.StatusBadRequest, details)
}

// NewNotFoundError reports an empty result for a valid request (HTTP 404).
func NewNotFoundError(message string, details ...string) *AppError {
	return newError(ErrorTypeNotFound, message, http.StatusNotFound, details)
}

// NewBusyError reports that a probe run is already in flight (HTTP 429).
// Callers are expected to retry later; nothing is queued.
func NewBusyError(message string, details ...string) *AppError {
	return newError(ErrorTypeBusy, message, http.StatusTooManyRequests, details)
}

// NewUnavailableError reports state that is not ready yet, distinct from an
// empty result and from busy (HTTP 503).
func NewUnavailableError(message string, details ...string) *AppError {
	return newError(ErrorTypeUnavailable, message, http.StatusServiceUnavailable, details)
}

// NewInternalError reports an unexpected failure (HTTP 500).
func NewInternalError(message string, details ...string) *AppError {
	return newError(ErrorTypeInternal, message, http.StatusInternalServerError, details)
}

func newError(t ErrorType, message string, code int, details []string) *AppError {
	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{Type: t, Message: message, Code: code, Details: detail}
}

// AsAppError extracts an *AppError from an error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
