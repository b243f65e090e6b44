package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pkm-prototype/backend/internal/platform/httpresp"
)

// Handler serves GET /health and GET /ready.
type Handler struct {
	checker *Checker
}

// NewHandler returns a Handler backed by checker.
func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

// RegisterRoutes mounts the probes on r. They are public.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
}

// Health always answers 200 while the process is up and reports store state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httpresp.JSON(w, http.StatusOK, h.checker.Check(r.Context()))
}

// Ready answers 200 when the store and policy engine are usable, else 503.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	st := h.checker.Check(r.Context())
	code := http.StatusOK
	if !st.Ready() {
		code = http.StatusServiceUnavailable
	}
	httpresp.JSON(w, code, st)
}
