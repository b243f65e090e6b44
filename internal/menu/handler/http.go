// Package handler serves the role-filtered main menu.
package handler

import (
	"net/http"

	"pkm-prototype/backend/internal/platform/httpresp"
	"pkm-prototype/backend/internal/platform/rbac"
	"pkm-prototype/backend/internal/policy/engine"
	"pkm-prototype/backend/internal/user/domain"
)

const signoutPath = "/logout"

// Handler serves GET /menu. It must be mounted behind the Auth Gate.
type Handler struct {
	policy engine.Evaluator
	resp   httpresp.Responder
}

// NewHandler returns a Handler that asks policy for the caller's menu.
func NewHandler(policy engine.Evaluator, resp httpresp.Responder) *Handler {
	return &Handler{policy: policy, resp: resp}
}

type menuResponse struct {
	Username string            `json:"username"`
	Role     string            `json:"role"`
	Menu     []engine.MenuItem `json:"menu"`
	Signout  string            `json:"signout"`
}

// Menu writes {username, role, menu, signout} for the verified caller.
func (h *Handler) Menu(w http.ResponseWriter, r *http.Request) {
	id, err := rbac.RequireRole(r.Context(), domain.RoleAdmin, domain.RoleUser)
	if err != nil {
		h.resp.Error(w, r, err, "")
		return
	}
	items, err := h.policy.Menu(r.Context(), id.Role)
	if err != nil {
		h.resp.Error(w, r, err, "Failed to build menu")
		return
	}
	httpresp.JSON(w, http.StatusOK, menuResponse{
		Username: id.Username,
		Role:     string(id.Role),
		Menu:     items,
		Signout:  signoutPath,
	})
}
