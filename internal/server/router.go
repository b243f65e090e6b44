// Package server assembles the HTTP router: middleware chain, public routes and the
// routes behind the Auth Gate.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	audithandler "pkm-prototype/backend/internal/audit/handler"
	healthhandler "pkm-prototype/backend/internal/health/handler"
	identityhandler "pkm-prototype/backend/internal/identity/handler"
	menuhandler "pkm-prototype/backend/internal/menu/handler"
	"pkm-prototype/backend/internal/platform/httpresp"
	"pkm-prototype/backend/internal/policy/engine"
	"pkm-prototype/backend/internal/security"
	"pkm-prototype/backend/internal/server/middleware"
	userhandler "pkm-prototype/backend/internal/user/handler"
)

// Deps holds the services the HTTP handlers need.
type Deps struct {
	// Auth serves login and logout.
	Auth identityhandler.Authenticator
	// Users serves admin user management.
	Users userhandler.UserManager
	// Audits backs the admin audit log. If nil, the route answers 503.
	Audits audithandler.Lister
	// Tokens verifies session artifacts in the Auth Gate.
	Tokens *security.TokenProvider
	// Policy builds the role-filtered menu.
	Policy engine.Evaluator
	// Health backs /health and /ready.
	Health *healthhandler.Checker
	// Metrics records HTTP metrics. If nil, requests are not measured.
	Metrics *middleware.Metrics
	// Gatherer is exposed on /metrics. If nil, the route is not registered.
	Gatherer prometheus.Gatherer
	// ShowErrorDetails adds internal error text to 500 bodies. Development only.
	ShowErrorDetails bool
	// SecureCookies sets Secure on the session cookie. Production only.
	SecureCookies bool
	// CORSAllowedOrigins enables CORS for the listed origins. Empty disables CORS.
	CORSAllowedOrigins []string
}

// NewRouter returns the application handler.
//
// Route → handler mapping:
//   - POST /login, GET /logout, GET /api/me → internal/identity/handler
//   - POST /register, /api/users[/{id}]     → internal/user/handler
//   - GET /menu                             → internal/menu/handler
//   - GET /api/audit                        → internal/audit/handler
//   - GET /health, GET /ready               → internal/health/handler
func NewRouter(deps Deps) http.Handler {
	resp := httpresp.Responder{ShowDetails: deps.ShowErrorDetails}

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Tracing)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler)
	}
	if len(deps.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders:   []string{middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	healthhandler.NewHandler(deps.Health).RegisterRoutes(r)
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	auth := identityhandler.NewHandler(deps.Auth, resp, deps.SecureCookies)
	r.Post("/login", auth.Login)
	r.With(middleware.OptionalAuth(deps.Tokens)).Get("/logout", auth.Logout)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthGate(deps.Tokens, func(w http.ResponseWriter, r *http.Request, _ error) {
			resp.Unauthorized(w, r)
		}))
		r.Get("/api/me", auth.Me)
		r.Get("/menu", menuhandler.NewHandler(deps.Policy, resp).Menu)
		userhandler.NewHandler(deps.Users, resp).RegisterRoutes(r)
		audithandler.NewHandler(deps.Audits, resp).RegisterRoutes(r)
	})
	return r
}
