// Package errors defines the service error type shared by HTTP handlers,
// middleware and the RPC layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the class of a service error.
type Code string

const (
	CodeBadRequest        Code = "BAD_REQUEST"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeInvalidToken      Code = "INVALID_TOKEN"
	CodeInternal          Code = "INTERNAL"
	CodeMissingNamespace  Code = "RPC_MISSING_NAMESPACE"
	CodeMissingMethod     Code = "RPC_MISSING_METHOD"
	CodeUpstreamProvider  Code = "UPSTREAM_PROVIDER"
	CodeValidationFailure Code = "VALIDATION_FAILURE"
)

// ServiceError carries an error class, HTTP status and optional details.
type ServiceError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.cause }

// WithDetails attaches a detail key/value pair and returns the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code Code, status int, msg string, cause error) *ServiceError {
	return &ServiceError{Code: code, Message: msg, HTTPStatus: status, cause: cause}
}

// BadRequest builds a 400 error.
func BadRequest(msg string) *ServiceError {
	return newError(CodeBadRequest, http.StatusBadRequest, msg, nil)
}

// Unauthorized builds a 401 error.
func Unauthorized(msg string) *ServiceError {
	return newError(CodeUnauthorized, http.StatusUnauthorized, msg, nil)
}

// Forbidden builds a 403 error.
func Forbidden(msg string) *ServiceError {
	return newError(CodeForbidden, http.StatusForbidden, msg, nil)
}

// NotFound builds a 404 error.
func NotFound(msg string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, msg, nil)
}

// Conflict builds a 409 error.
func Conflict(msg string) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, msg, nil)
}

// InvalidToken builds a 401 error wrapping a token parse/verify failure.
func InvalidToken(cause error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "invalid token", cause)
}

// RateLimitExceeded builds a 429 error describing the applied limit.
func RateLimitExceeded(limit int, window string) *ServiceError {
	e := newError(CodeRateLimited, http.StatusTooManyRequests, "rate limit exceeded", nil)
	return e.WithDetails("limit", limit).WithDetails("window", window)
}

// Internal builds a 500 error wrapping the cause.
func Internal(msg string, cause error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, msg, cause)
}

// Upstream builds a 502 error for a failed provider call.
func Upstream(provider string, cause error) *ServiceError {
	e := newError(CodeUpstreamProvider, http.StatusBadGateway, "upstream provider call failed", cause)
	return e.WithDetails("provider", provider)
}

// MissingNamespace reports an RPC call against an unknown namespace.
func MissingNamespace(namespace string) *ServiceError {
	e := newError(CodeMissingNamespace, http.StatusBadRequest, "rpc namespace does not exist", nil)
	return e.WithDetails("namespace", namespace)
}

// MissingMethod reports an RPC call against an unknown method.
func MissingMethod(namespace, method string) *ServiceError {
	e := newError(CodeMissingMethod, http.StatusBadRequest, "rpc method does not exist in namespace", nil)
	return e.WithDetails("namespace", namespace).WithDetails("method", method)
}

// MissingFields reports multipart/form validation failures.
func MissingFields(fields []string) *ServiceError {
	e := newError(CodeValidationFailure, http.StatusBadRequest, "missing required fields", nil)
	return e.WithDetails("fields", fields)
}

// GetServiceError extracts a *ServiceError from err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// HTTPStatus returns the status for err, defaulting to 500.
func HTTPStatus(err error) int {
	if se := GetServiceError(err); se != nil {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}
