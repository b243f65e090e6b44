// Package httpresp writes the JSON envelopes shared by every HTTP handler and maps
// service errors to status codes.
package httpresp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"pkm-prototype/backend/internal/identity/service"
	"pkm-prototype/backend/internal/platform/rbac"
	"pkm-prototype/backend/internal/security"
	"pkm-prototype/backend/internal/user/domain"
)

// Error categories. Clients may switch on these; they do not change.
const (
	CategoryValidation         = "validation_error"
	CategoryAuthenticationFail = "authentication_failed"
	CategoryUnauthorized       = "unauthorized"
	CategoryForbidden          = "forbidden"
	CategoryNotFound           = "not_found"
	CategoryConflict           = "conflict"
	CategoryUnavailable        = "service_unavailable"
	CategoryInternal           = "internal_error"
)

// UnauthorizedHTML is the body sent to browsers on 401.
const UnauthorizedHTML = "<p>Unauthorized. Please login.</p>"

// Problem is the client-facing classification of an error.
type Problem struct {
	Status   int
	Category string
	Message  string
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Classify maps err to a Problem. fallback is the message used for 403 and 500 when
// the caller has a more specific one ("Only administrators can list users").
func Classify(err error, fallback string) Problem {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return Problem{http.StatusBadRequest, CategoryValidation, ve.Message}
	case errors.Is(err, service.ErrInvalidCredentials):
		return Problem{http.StatusUnauthorized, CategoryAuthenticationFail, "Invalid username or password"}
	case errors.Is(err, rbac.ErrUnauthenticated),
		errors.Is(err, security.ErrInvalidToken),
		errors.Is(err, security.ErrTokenExpired):
		return Problem{http.StatusUnauthorized, CategoryUnauthorized, "Unauthorized"}
	case errors.Is(err, rbac.ErrForbidden):
		return Problem{http.StatusForbidden, CategoryForbidden, orDefault(fallback, "Forbidden")}
	case errors.Is(err, domain.ErrUserNotFound):
		return Problem{http.StatusNotFound, CategoryNotFound, "User not found"}
	case errors.Is(err, domain.ErrDuplicateUsername):
		return Problem{http.StatusConflict, CategoryConflict, "Username already exists"}
	case errors.Is(err, domain.ErrBackendUnavailable):
		return Problem{http.StatusServiceUnavailable, CategoryUnavailable, "Credential store is not available"}
	default:
		return Problem{http.StatusInternalServerError, CategoryInternal, orDefault(fallback, "Internal server error")}
	}
}

// Responder writes success and error envelopes. ShowDetails adds err.Error() to 500
// bodies and must be false in production.
type Responder struct {
	ShowDetails bool
}

// JSON writes v as a JSON body with status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Success writes {"success":true,"message":...} merged with fields.
func (rs Responder) Success(w http.ResponseWriter, status int, message string, fields map[string]any) {
	body := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = true
	body["message"] = message
	JSON(w, status, body)
}

// Error classifies err and writes the error envelope. 401 goes through Unauthorized so
// browsers get the HTML body. 5xx responses are logged with the request logger.
func (rs Responder) Error(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	p := Classify(err, fallback)
	if p.Status == http.StatusUnauthorized && p.Category == CategoryUnauthorized {
		rs.Unauthorized(w, r)
		return
	}
	if p.Status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Int("status", p.Status).Msg(p.Message)
	}
	body := ErrorBody{Error: p.Category, Message: p.Message}
	if rs.ShowDetails && p.Status == http.StatusInternalServerError && err != nil {
		body.Details = err.Error()
	}
	JSON(w, p.Status, body)
}

// Unauthorized writes 401: HTML for browsers, the JSON envelope otherwise.
func (rs Responder) Unauthorized(w http.ResponseWriter, r *http.Request) {
	if WantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(UnauthorizedHTML))
		return
	}
	JSON(w, http.StatusUnauthorized, ErrorBody{Error: CategoryUnauthorized, Message: "Unauthorized"})
}

// WantsHTML reports whether the client asked for an HTML response.
func WantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// IsFormSubmission reports whether the request is an HTML form post, or asked for HTML.
func IsFormSubmission(r *http.Request) bool {
	if WantsHTML(r) {
		return true
	}
	ct := r.Header.Get("Content-Type")
	return strings.Contains(ct, "application/x-www-form-urlencoded") || strings.Contains(ct, "multipart/form-data")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
