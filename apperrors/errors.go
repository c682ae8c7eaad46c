// Package apperrors defines the error taxonomy shared by the workflow, the
// notification dispatcher and the HTTP layer.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error
type ErrorType string

const (
	TypeConfiguration ErrorType = "configuration_error"
	TypeRemoteService ErrorType = "remote_service_error"
	TypeValidation    ErrorType = "validation_error"
	TypeNotFound      ErrorType = "not_found"
	TypeConflict      ErrorType = "conflict"
	TypeUnauthorized  ErrorType = "unauthorized"
	TypeForbidden     ErrorType = "forbidden"
	TypeInternal      ErrorType = "internal_error"
)

// AppError represents an application error with additional context
type AppError struct {
	Type    ErrorType         `json:"type"`
	Message string            `json:"message"`
	Code    int               `json:"code"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Err     error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func newError(t ErrorType, code int, message string, details []string) *AppError {
	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{Type: t, Message: message, Code: code, Details: detail}
}

// NewConfigurationError reports a deployment problem such as an unknown
// application type or a channel that has no id configured.
func NewConfigurationError(message string, details ...string) *AppError {
	return newError(TypeConfiguration, http.StatusInternalServerError, message, details)
}

// NewRemoteServiceError wraps a failure returned by an external API. body is
// the raw response body, kept for the log.
func NewRemoteServiceError(message, body string, err error) *AppError {
	e := newError(TypeRemoteService, http.StatusBadGateway, message, []string{body})
	e.Err = err
	return e
}

func NewValidationError(message string, details ...string) *AppError {
	return newError(TypeValidation, http.StatusBadRequest, message, details)
}

// NewFieldValidationError carries per-field messages for inline form errors.
func NewFieldValidationError(message string, fields map[string]string) *AppError {
	e := newError(TypeValidation, http.StatusBadRequest, message, nil)
	e.Fields = fields
	return e
}

func NewNotFoundError(message string, details ...string) *AppError {
	return newError(TypeNotFound, http.StatusNotFound, message, details)
}

func NewConflictError(message string, details ...string) *AppError {
	return newError(TypeConflict, http.StatusConflict, message, details)
}

func NewUnauthorizedError(message string, details ...string) *AppError {
	return newError(TypeUnauthorized, http.StatusUnauthorized, message, details)
}

func NewForbiddenError(message string, details ...string) *AppError {
	return newError(TypeForbidden, http.StatusForbidden, message, details)
}

func NewInternalError(message string, details ...string) *AppError {
	return newError(TypeInternal, http.StatusInternalServerError, message, details)
}

// Get extracts the AppError from an error chain, or nil.
func Get(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// Is reports whether err carries an AppError of type t.
func Is(err error, t ErrorType) bool {
	appErr := Get(err)
	return appErr != nil && appErr.Type == t
}
