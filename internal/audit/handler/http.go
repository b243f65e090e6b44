// Package handler exposes the audit trail to administrators over HTTP.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pkm-prototype/backend/internal/audit/domain"
	"pkm-prototype/backend/internal/platform/httpresp"
	"pkm-prototype/backend/internal/platform/rbac"
	userdomain "pkm-prototype/backend/internal/user/domain"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Lister reads audit entries, newest first.
type Lister interface {
	List(ctx context.Context, limit, offset int32) ([]*domain.AuditLog, error)
}

// Handler serves GET /api/audit. It must be mounted behind the Auth Gate.
type Handler struct {
	logs Lister
	resp httpresp.Responder
}

// NewHandler returns a Handler reading from logs. A nil logs answers 503.
func NewHandler(logs Lister, resp httpresp.Responder) *Handler {
	return &Handler{logs: logs, resp: resp}
}

// RegisterRoutes mounts GET /api/audit on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/audit", h.List)
}

// List handles GET /api/audit?limit=&offset=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAdmin(r.Context()); err != nil {
		h.resp.Error(w, r, err, "Only administrators can read the audit log")
		return
	}
	if h.logs == nil {
		h.resp.Error(w, r, userdomain.ErrBackendUnavailable, "")
		return
	}
	limit, err := queryInt(r, "limit", defaultLimit, 1, maxLimit)
	if err != nil {
		h.resp.Error(w, r, err, "")
		return
	}
	offset, err := queryInt(r, "offset", 0, 0, 1<<31-1)
	if err != nil {
		h.resp.Error(w, r, err, "")
		return
	}
	entries, err := h.logs.List(r.Context(), int32(limit), int32(offset))
	if err != nil {
		h.resp.Error(w, r, err, "Failed to retrieve audit log")
		return
	}
	h.resp.Success(w, http.StatusOK, "Audit log retrieved successfully", map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

func queryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, userdomain.NewValidationError(name, name+" must be between "+strconv.Itoa(lo)+" and "+strconv.Itoa(hi))
	}
	return n, nil
}
