// Package apierror renders failures as the JSON error envelope.
// Domain errors are classified here, so handlers never pick status codes
// for service failures themselves.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/openctemio/authz/pkg/domain/shared"
)

// Code is the machine-readable error code in the envelope.
type Code string

const (
	CodeBadRequest        Code = "BAD_REQUEST"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeInternalError     Code = "INTERNAL_ERROR"
	CodeValidationFailed  Code = "VALIDATION_FAILED"
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
)

// Error is an HTTP-facing failure. Err is logged but never serialized.
type Error struct {
	Status  int    `json:"-"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Response is the wire shape of an error.
type Response struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON writes the envelope with the error's status.
func (e *Error) WriteJSON(w http.ResponseWriter) {
	e.write(w, "")
}

// WriteJSONWithRequestID writes the envelope and echoes the request id
// in both the body and the X-Request-ID header.
func (e *Error) WriteJSONWithRequestID(w http.ResponseWriter, requestID string) {
	w.Header().Set("X-Request-ID", requestID)
	e.write(w, requestID)
}

func (e *Error) write(w http.ResponseWriter, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(Response{
		Code:      e.Code,
		Message:   e.Message,
		Details:   e.Details,
		RequestID: requestID,
	})
}

// New creates an error with an explicit status and code.
func New(status int, code Code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func wrap(err error, status int, code Code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message, Err: err}
}

func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, message)
}

// Unauthorized defaults the message when empty.
func Unauthorized(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

// NotFound names the missing resource, e.g. NotFound("Role").
func NotFound(resource string) *Error {
	if resource == "" {
		return New(http.StatusNotFound, CodeNotFound, "Resource not found")
	}
	return New(http.StatusNotFound, CodeNotFound, resource+" not found")
}

func Conflict(message string) *Error {
	return New(http.StatusConflict, CodeConflict, message)
}

func RateLimitExceeded() *Error {
	return New(http.StatusTooManyRequests, CodeRateLimitExceeded, "Rate limit exceeded")
}

// FromError classifies err by the shared domain sentinels. A forbidden
// decision carries the missing permission and its scope as details.
// Unclassified errors become a generic 500 whose message hides the cause.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var forbidden *shared.ForbiddenError
	if errors.As(err, &forbidden) {
		e := wrap(err, http.StatusForbidden, CodeForbidden, forbidden.Error())
		e.Details = map[string]string{
			"permission": forbidden.Permission,
			"scope":      forbidden.Scope,
		}
		return e
	}

	switch {
	case shared.IsNotFound(err):
		return wrap(err, http.StatusNotFound, CodeNotFound, err.Error())
	case shared.IsConflict(err):
		return wrap(err, http.StatusConflict, CodeConflict, err.Error())
	case shared.IsForbidden(err):
		return wrap(err, http.StatusForbidden, CodeForbidden, err.Error())
	case shared.IsUnauthorized(err):
		return wrap(err, http.StatusUnauthorized, CodeUnauthorized, err.Error())
	case shared.IsValidation(err):
		return wrap(err, http.StatusBadRequest, CodeBadRequest, err.Error())
	}
	return wrap(err, http.StatusInternalServerError, CodeInternalError, "An internal error occurred")
}

// ValidationError is one rejected request field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is rendered as a 422 with the fields as details.
type ValidationErrors []ValidationError

func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

func (v ValidationErrors) HasErrors() bool { return len(v) > 0 }

func (v ValidationErrors) ToAPIError() *Error {
	return &Error{
		Status:  http.StatusUnprocessableEntity,
		Code:    CodeValidationFailed,
		Message: "Validation failed",
		Details: v,
	}
}
