package catalogkit

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nhalm/canonlog"
)

func TestHandler_SuccessResponse(t *testing.T) {
	handler := Handler()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		SetResponse(r, http.StatusCreated, map[string]string{"id": "123"})
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/articles", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("expected status %d, got %d", http.StatusCreated, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["id"] != "123" {
		t.Errorf("expected id=123, got %s", body["id"])
	}
}

func TestHandler_ErrorResponse(t *testing.T) {
	handler := Handler()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		SetError(r, ErrNotFound.With("Article not found"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/articles/missing", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}

	var body map[string]*APIError
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["error"].Type != "not_found" {
		t.Errorf("expected type not_found, got %s", body["error"].Type)
	}
	if body["error"].Message != "Article not found" {
		t.Errorf("expected message 'Article not found', got %s", body["error"].Message)
	}
}

func TestHandler_ErrorTakesPrecedence(t *testing.T) {
	handler := Handler()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		SetResponse(r, http.StatusOK, map[string]string{"status": "ok"})
		SetError(r, ErrUnauthorized)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestHandler_PanicRecovery(t *testing.T) {
	handler := Handler(WithCanonlog())(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}

	var body map[string]*APIError
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["error"].Type != "internal_error" {
		t.Errorf("expected type internal_error, got %s", body["error"].Type)
	}
}

func TestHandler_HeadersAndStatusOnly(t *testing.T) {
	handler := Handler()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		SetHeader(r, "RateLimit-Remaining", "4")
		SetResponse(r, http.StatusNoContent, nil)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", http.NoBody))

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if got := rec.Header().Get("RateLimit-Remaining"); got != "4" {
		t.Errorf("expected RateLimit-Remaining=4, got %q", got)
	}
}

func TestHandler_EmptyResponse(t *testing.T) {
	handler := Handler()(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestHasState(t *testing.T) {
	var inside bool
	handler := Handler()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		inside = HasState(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if !inside {
		t.Error("expected HasState to return true inside Handler")
	}
	if HasState(httptest.NewRequest(http.MethodGet, "/", http.NoBody).Context()) {
		t.Error("expected HasState to return false without Handler")
	}
}

func TestWithCanonlog_CreatesLogger(t *testing.T) {
	var loggerFound bool

	handler := Handler(WithCanonlog(), WithCanonlogFields(func(r *http.Request) map[string]any {
		return map[string]any{"request_id": r.Header.Get("X-Request-ID")}
	}))(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, loggerFound = canonlog.TryGetLogger(r.Context())
		SetResponse(r, http.StatusOK, nil)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/products", http.NoBody)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !loggerFound {
		t.Error("expected canonlog logger to be in context")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestWithCanonlog_Disabled(t *testing.T) {
	var loggerFound bool

	handler := Handler()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, loggerFound = canonlog.TryGetLogger(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if loggerFound {
		t.Error("expected canonlog logger to not be in context when disabled")
	}
}

func TestAPIError_Is(t *testing.T) {
	err := ErrRateLimited.With("Too many login attempts. Please try again later.")

	if !errors.Is(err, ErrRateLimited) {
		t.Error("expected errors.Is to match ErrRateLimited")
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("expected errors.Is not to match ErrUnauthorized")
	}
	if ErrRateLimited.Message == err.Message {
		t.Error("With must not modify the sentinel")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError([]FieldError{
		{Param: "title", Code: "required", Message: "required"},
	})

	if err.Status != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", err.Status)
	}
	if len(err.Errors) != 1 || err.Errors[0].Param != "title" {
		t.Errorf("unexpected field errors: %+v", err.Errors)
	}
}
