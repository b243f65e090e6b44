package httpresp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pkm-prototype/backend/internal/identity/service"
	"pkm-prototype/backend/internal/platform/rbac"
	"pkm-prototype/backend/internal/security"
	"pkm-prototype/backend/internal/user/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		fallback string
		want     Problem
	}{
		{"validation", domain.NewValidationError("username", "Username is required"), "",
			Problem{400, CategoryValidation, "Username is required"}},
		{"bad credentials", service.ErrInvalidCredentials, "",
			Problem{401, CategoryAuthenticationFail, "Invalid username or password"}},
		{"no identity", rbac.ErrUnauthenticated, "", Problem{401, CategoryUnauthorized, "Unauthorized"}},
		{"expired", fmt.Errorf("gate: %w", security.ErrTokenExpired), "", Problem{401, CategoryUnauthorized, "Unauthorized"}},
		{"forbidden", rbac.ErrForbidden, "Only administrators can list users",
			Problem{403, CategoryForbidden, "Only administrators can list users"}},
		{"forbidden default", rbac.ErrForbidden, "", Problem{403, CategoryForbidden, "Forbidden"}},
		{"not found", domain.ErrUserNotFound, "", Problem{404, CategoryNotFound, "User not found"}},
		{"duplicate", fmt.Errorf("insert: %w", domain.ErrDuplicateUsername), "",
			Problem{409, CategoryConflict, "Username already exists"}},
		{"unavailable", domain.ErrBackendUnavailable, "",
			Problem{503, CategoryUnavailable, "Credential store is not available"}},
		{"other", errors.New("boom"), "Failed to list users", Problem{500, CategoryInternal, "Failed to list users"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err, tc.fallback); got != tc.want {
				t.Errorf("Classify = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestResponder_ErrorDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	cause := errors.New("pq: relation missing")

	rec := httptest.NewRecorder()
	Responder{}.Error(rec, req, cause, "Failed to list users")
	body := decodeError(t, rec)
	if rec.Code != 500 || body.Details != "" || body.Success {
		t.Errorf("without details: code=%d body=%+v", rec.Code, body)
	}
	if strings.Contains(rec.Body.String(), "relation") {
		t.Error("internal error text leaked")
	}

	rec = httptest.NewRecorder()
	Responder{ShowDetails: true}.Error(rec, req, cause, "Failed to list users")
	if body := decodeError(t, rec); body.Details != cause.Error() {
		t.Errorf("details = %q", body.Details)
	}

	rec = httptest.NewRecorder()
	Responder{ShowDetails: true}.Error(rec, req, domain.ErrUserNotFound, "")
	if body := decodeError(t, rec); body.Details != "" || rec.Code != 404 {
		t.Errorf("4xx should never carry details: %+v", body)
	}
}

func TestResponder_UnauthorizedNegotiation(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/menu", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := httptest.NewRecorder()
	Responder{}.Error(rec, req, security.ErrInvalidToken, "")
	if rec.Code != 401 || rec.Body.String() != UnauthorizedHTML {
		t.Errorf("html: code=%d body=%q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Accept", "application/json")
	rec = httptest.NewRecorder()
	Responder{}.Unauthorized(rec, req)
	body := decodeError(t, rec)
	if rec.Code != 401 || body.Error != CategoryUnauthorized {
		t.Errorf("json: code=%d body=%+v", rec.Code, body)
	}
}

func TestResponder_Success(t *testing.T) {
	rec := httptest.NewRecorder()
	Responder{}.Success(rec, http.StatusCreated, "User created successfully", map[string]any{"user": map[string]any{"id": 3}})
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if rec.Code != 201 || body["success"] != true || body["message"] != "User created successfully" || body["user"] == nil {
		t.Errorf("code=%d body=%v", rec.Code, body)
	}
}

func TestIsFormSubmission(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("username=a"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if !IsFormSubmission(req) {
		t.Error("urlencoded post should be a form submission")
	}
	req = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	if IsFormSubmission(req) {
		t.Error("json post is not a form submission")
	}
}
