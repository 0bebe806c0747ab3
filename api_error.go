// Package catalogkit provides the HTTP plumbing shared by the catalog's public
// and admin endpoints: response state carried in request context, structured
// JSON errors, request binding, session gating and request admission control.
//
// Handlers never write to the ResponseWriter directly. They record a result
// with SetResponse or SetError and the outermost Handler middleware renders it:
//
//	r := chi.NewRouter()
//	r.Use(catalogkit.Handler(catalogkit.WithCanonlog()))
//
//	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
//		if !catalogkit.AdmitRequest(r, limiter, "login", 5) {
//			return // 429 already recorded
//		}
//		...
//		catalogkit.SetResponse(r, http.StatusOK, session)
//	})
package catalogkit

import (
	"net/http"
)

// APIError is the JSON error body returned to clients.
type APIError struct {
	Type    string       `json:"type"`
	Code    string       `json:"code,omitempty"`
	Message string       `json:"message"`
	Param   string       `json:"param,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
	Status  int          `json:"-"`
}

// FieldError describes one invalid request field.
type FieldError struct {
	Param   string `json:"param"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error *APIError `json:"error"`
}

func (e *APIError) Error() string {
	return e.Message
}

// Is matches errors of the same type and code, ignoring the message.
func (e *APIError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// With returns a copy of the error carrying message.
func (e *APIError) With(message string) *APIError {
	if e == nil {
		return nil
	}
	dup := *e
	dup.Message = message
	return &dup
}

// WithParam returns a copy of the error carrying message and the offending parameter.
func (e *APIError) WithParam(message, param string) *APIError {
	if e == nil {
		return nil
	}
	dup := *e
	dup.Message = message
	dup.Param = param
	return &dup
}

var (
	ErrBadRequest      = &APIError{Type: "request_error", Code: "bad_request", Message: "Bad request", Status: http.StatusBadRequest}
	ErrUnauthorized    = &APIError{Type: "auth_error", Code: "unauthorized", Message: "Unauthorized", Status: http.StatusUnauthorized}
	ErrNotFound        = &APIError{Type: "not_found", Code: "resource_not_found", Message: "Resource not found", Status: http.StatusNotFound}
	ErrConflict        = &APIError{Type: "request_error", Code: "conflict", Message: "Conflict", Status: http.StatusConflict}
	ErrPayloadTooLarge = &APIError{Type: "request_error", Code: "payload_too_large", Message: "Payload too large", Status: http.StatusRequestEntityTooLarge}
	ErrRateLimited     = &APIError{Type: "rate_limit_error", Code: "too_many_requests", Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests}
	ErrInternal        = &APIError{Type: "internal_error", Code: "internal", Message: "Internal server error", Status: http.StatusInternalServerError}
)

// NewValidationError creates a 400 error listing every invalid field.
func NewValidationError(errors []FieldError) *APIError {
	return &APIError{
		Type:    "validation_error",
		Code:    "invalid_request",
		Message: "Validation failed",
		Errors:  errors,
		Status:  http.StatusBadRequest,
	}
}
