// Package apperror defines the error type every API failure is rendered from.
// Services return *AppError; anything else reaching the HTTP layer becomes
// INTERNAL_ERROR.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes.
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeInvalidFilter          = "INVALID_FILTER"
	CodeImportRejected         = "IMPORT_REJECTED"
	CodeNotFound               = "NOT_FOUND"
	CodeDuplicate              = "DUPLICATE_ENTRY"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeInternal               = "INTERNAL_ERROR"
	CodeUnavailable            = "SERVICE_UNAVAILABLE"
)

var statusByCode = map[string]int{
	CodeValidation:             http.StatusBadRequest,
	CodeInvalidFilter:          http.StatusBadRequest,
	CodeImportRejected:         http.StatusUnprocessableEntity,
	CodeNotFound:               http.StatusNotFound,
	CodeDuplicate:              http.StatusConflict,
	CodeConcurrentModification: http.StatusConflict,
	CodeUnauthorized:           http.StatusUnauthorized,
	CodeForbidden:              http.StatusForbidden,
	CodeInternal:               http.StatusInternalServerError,
	CodeUnavailable:            http.StatusServiceUnavailable,
}

// AppError carries a machine-readable code, a client-safe message and
// optional details. Err is logged but never serialised.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
	Err        error          `json:"-"`
}

func newError(code, message string) *AppError {
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key to Details and returns e.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the wrapped error and returns e.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

func NewValidation(message string) *AppError {
	return newError(CodeValidation, message)
}

// NewInvalidFilter rejects filter criteria; problems go into Details.
func NewInvalidFilter(message string) *AppError {
	return newError(CodeInvalidFilter, message)
}

// NewImportRejected is returned when an uploaded file cannot be imported at all.
// Individual bad rows are reported in the import result instead.
func NewImportRejected(reason string) *AppError {
	return newError(CodeImportRejected, "Import rejected: "+reason)
}

func NewNotFound(entity string, id any) *AppError {
	return newError(CodeNotFound, entity+" not found").
		WithDetail("entity", entity).
		WithDetail("id", id)
}

func NewDuplicate(entity, field, value string) *AppError {
	return newError(CodeDuplicate, fmt.Sprintf("%s with this %s already exists", entity, field)).
		WithDetail("entity", entity).
		WithDetail("field", field).
		WithDetail("value", value)
}

// NewConcurrentModification reports an optimistic locking failure on entity.
func NewConcurrentModification(entity string, id any) *AppError {
	return newError(CodeConcurrentModification, "Record was modified by another user. Please refresh and try again.").
		WithDetail("entity", entity).
		WithDetail("id", id)
}

func NewUnauthorized(message string) *AppError {
	return newError(CodeUnauthorized, message)
}

func NewForbidden(message string) *AppError {
	return newError(CodeForbidden, message)
}

// NewInternal hides err from the client behind a generic message.
func NewInternal(err error) *AppError {
	return newError(CodeInternal, "Internal server error").WithCause(err)
}

// NewUnavailable reports exhausted infrastructure, such as the tenant pool limit.
func NewUnavailable(err error) *AppError {
	return newError(CodeUnavailable, "Service temporarily unavailable").WithCause(err)
}

func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// AsAppError finds the first *AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus maps any error to a response status; non-AppErrors are 500.
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// HasCode reports whether err's chain holds an AppError with code.
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

func IsConcurrentModification(err error) bool {
	return HasCode(err, CodeConcurrentModification)
}
