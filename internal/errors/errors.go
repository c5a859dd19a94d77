// Package errors defines the service error taxonomy shared by all layers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error category on the wire.
type Code string

const (
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeNotFound          Code = "NOT_FOUND"
	CodeForbidden         Code = "FORBIDDEN"
	CodeConflict          Code = "CONFLICT"
	CodeUnavailable       Code = "DEPENDENCY_UNAVAILABLE"
	CodeBadRequest        Code = "BAD_REQUEST"
	CodeInternal          Code = "INTERNAL"
	CodeInvalidToken      Code = "INVALID_TOKEN"
	CodeInvalidFormat     Code = "INVALID_FORMAT"
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
)

// ServiceError carries an error category, an HTTP status and optional
// structured details. The category precedence when several conditions could
// apply is: Unauthorized > NotFound > Forbidden > Conflict > Unavailable >
// BadRequest.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/As.
func (e *ServiceError) Unwrap() error { return e.cause }

// WithDetails attaches a key/value pair and returns the error for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Unauthorized signals a missing or unusable caller identity.
func Unauthorized(message string) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// NotFound signals that a referenced entity does not exist. The entity name
// is recorded in the details so callers can tell which reference failed.
func NotFound(entity, id string) *ServiceError {
	e := &ServiceError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
	}
	e.WithDetails("entity", entity)
	if id != "" {
		e.WithDetails("id", id)
	}
	return e
}

// Forbidden signals that the actor lacks the required role or ownership.
func Forbidden(message string) *ServiceError {
	return &ServiceError{Code: CodeForbidden, Message: message, HTTPStatus: http.StatusForbidden}
}

// Conflict signals a domain-rule violation.
func Conflict(message string) *ServiceError {
	return &ServiceError{Code: CodeConflict, Message: message, HTTPStatus: http.StatusConflict}
}

// Unavailable signals that a required remote dependency could not be
// reached. The failing service is part of the message so partial-success
// outcomes stay diagnosable.
func Unavailable(service string, cause error) *ServiceError {
	return &ServiceError{
		Code:       CodeUnavailable,
		Message:    fmt.Sprintf("%s unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
		cause:      cause,
	}
}

// BadRequest signals malformed client input.
func BadRequest(message string) *ServiceError {
	return &ServiceError{Code: CodeBadRequest, Message: message, HTTPStatus: http.StatusBadRequest}
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, cause: cause}
}

// InvalidToken signals an unusable authentication token.
func InvalidToken(cause error) *ServiceError {
	return &ServiceError{Code: CodeInvalidToken, Message: "Invalid authentication token", HTTPStatus: http.StatusUnauthorized, cause: cause}
}

// InvalidFormat signals a field that failed format validation.
func InvalidFormat(field, requirement string) *ServiceError {
	e := &ServiceError{Code: CodeInvalidFormat, Message: fmt.Sprintf("invalid %s", field), HTTPStatus: http.StatusBadRequest}
	return e.WithDetails("field", field).WithDetails("requirement", requirement)
}

// RateLimitExceeded signals that the caller exhausted its request budget.
func RateLimitExceeded(limit int, window string) *ServiceError {
	e := &ServiceError{Code: CodeRateLimitExceeded, Message: "Rate limit exceeded", HTTPStatus: http.StatusTooManyRequests}
	return e.WithDetails("limit", limit).WithDetails("window", window)
}

// GetServiceError returns the ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// IsCode reports whether err carries the given category.
func IsCode(err error, code Code) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}
