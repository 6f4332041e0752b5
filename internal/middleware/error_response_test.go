package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/planboard/internal/model"
)

func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/projects", nil)

	WriteErrorResponse(w, r, http.StatusForbidden, model.NewPermissionDeniedError("manage_users"))

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
	if ct := w.Result().Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}

	if body.Code != "PERMISSION_DENIED" {
		t.Errorf("code = %q, want PERMISSION_DENIED", body.Code)
	}
	if body.Category == "" {
		t.Error("expected category to be set")
	}
	if body.Action == "" {
		t.Error("expected action to be set")
	}
}

func TestWriteErrorResponse_IncludesRequestIDWhenPresent(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	r = r.WithContext(ContextWithRequestID(r.Context(), "req-123"))

	WriteErrorResponse(w, r, http.StatusForbidden, model.NewRoleMismatchError())

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.RequestID != "req-123" {
		t.Errorf("request_id = %q, want req-123", body.RequestID)
	}
}

func TestWriteErrorResponse_OmitsRequestIDWhenAbsent(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/projects", nil)

	WriteErrorResponse(w, r, http.StatusForbidden, model.NewRoleMismatchError())

	var raw map[string]any
	if err := json.NewDecoder(w.Result().Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if _, ok := raw["request_id"]; ok {
		t.Error("request_id should be omitted when not in context")
	}
}

func TestWriteInternalServerError_HidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/projects", nil)

	WriteInternalServerError(w, r)

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}

	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", body.Code)
	}
}
