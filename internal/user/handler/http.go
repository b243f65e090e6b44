// Package handler exposes admin user management over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"pkm-prototype/backend/internal/platform/httpresp"
	"pkm-prototype/backend/internal/platform/rbac"
	"pkm-prototype/backend/internal/user/domain"
	"pkm-prototype/backend/internal/user/service"
)

const maxBodyBytes = 1 << 20

// UserManager is the part of the user service the handler needs.
type UserManager interface {
	Create(ctx context.Context, in service.CreateInput) (*domain.User, error)
	Update(ctx context.Context, id int64, in service.UpdateInput) (*domain.User, error)
	Delete(ctx context.Context, id int64) (*domain.DeletedUser, error)
	List(ctx context.Context) ([]*domain.User, error)
}

// Handler serves the admin-only user routes. Every route must be mounted behind the
// Auth Gate; the admin check runs before the body is read or the store is touched.
type Handler struct {
	users UserManager
	resp  httpresp.Responder
}

// NewHandler returns a Handler for users.
func NewHandler(users UserManager, resp httpresp.Responder) *Handler {
	return &Handler{users: users, resp: resp}
}

// RegisterRoutes mounts POST /register and the /api/users routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/register", h.Create)
	r.Get("/api/users", h.List)
	r.Put("/api/users/{id}", h.Update)
	r.Delete("/api/users/{id}", h.Delete)
}

type createRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updateRequest struct {
	Password *string `json:"password"`
	Role     *string `json:"role"`
}

// Create handles POST /register.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAdmin(r.Context()); err != nil {
		h.resp.Error(w, r, err, "Only administrators can create users")
		return
	}
	var req createRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.resp.Error(w, r, err, "")
		return
	}
	u, err := h.users.Create(r.Context(), service.CreateInput{Username: req.Username, Password: req.Password, Role: req.Role})
	if err != nil {
		h.resp.Error(w, r, err, "Failed to create user")
		return
	}
	h.resp.Success(w, http.StatusCreated, "User created successfully", map[string]any{"user": u})
}

// List handles GET /api/users.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAdmin(r.Context()); err != nil {
		h.resp.Error(w, r, err, "Only administrators can list users")
		return
	}
	users, err := h.users.List(r.Context())
	if err != nil {
		h.resp.Error(w, r, err, "Failed to retrieve users")
		return
	}
	h.resp.Success(w, http.StatusOK, "Users retrieved successfully", map[string]any{
		"count": len(users),
		"users": users,
	})
}

// Update handles PUT /api/users/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAdmin(r.Context()); err != nil {
		h.resp.Error(w, r, err, "Only administrators can update users")
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.resp.Error(w, r, err, "")
		return
	}
	var req updateRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.resp.Error(w, r, err, "")
		return
	}
	u, err := h.users.Update(r.Context(), id, service.UpdateInput{Password: req.Password, Role: req.Role})
	if err != nil {
		h.resp.Error(w, r, err, "Failed to update user")
		return
	}
	h.resp.Success(w, http.StatusOK, "User updated successfully", map[string]any{"user": u})
}

// Delete handles DELETE /api/users/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if _, err := rbac.RequireAdmin(r.Context()); err != nil {
		h.resp.Error(w, r, err, "Only administrators can delete users")
		return
	}
	id, err := pathID(r)
	if err != nil {
		h.resp.Error(w, r, err, "")
		return
	}
	d, err := h.users.Delete(r.Context(), id)
	if err != nil {
		h.resp.Error(w, r, err, "Failed to delete user")
		return
	}
	h.resp.Success(w, http.StatusOK, "User deleted successfully", map[string]any{"user": d})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("id", "ID must be positive")
	}
	return id, nil
}

// decodeBody fills v from a JSON body. Form posts are accepted for browser clients.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") && httpresp.IsFormSubmission(r) {
		if err := r.ParseForm(); err != nil {
			return domain.NewValidationError("", "Invalid request body")
		}
		formInto(r, v)
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.NewValidationError("", "Invalid request body")
	}
	return nil
}

func formInto(r *http.Request, v any) {
	switch req := v.(type) {
	case *createRequest:
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
		req.Role = r.PostFormValue("role")
	case *updateRequest:
		if r.PostForm.Has("password") {
			p := r.PostFormValue("password")
			req.Password = &p
		}
		if r.PostForm.Has("role") {
			role := r.PostFormValue("role")
			req.Role = &role
		}
	}
}
