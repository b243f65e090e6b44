// Package handler exposes login and logout over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"pkm-prototype/backend/internal/identity/service"
	"pkm-prototype/backend/internal/platform/httpresp"
	"pkm-prototype/backend/internal/server/middleware"
	"pkm-prototype/backend/internal/user/domain"
)

const (
	maxBodyBytes = 1 << 20

	menuPath = "/menu"
	homePath = "/"

	loginFailedMessage = "An error occurred during login"
)

// Authenticator is the part of the auth service the handler needs.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*service.LoginResult, error)
	Logout(ctx context.Context, userID int64, username string)
}

// Handler serves POST /login, GET /logout and GET /api/me.
type Handler struct {
	auth         Authenticator
	resp         httpresp.Responder
	secureCookie bool
}

// NewHandler returns a Handler. secureCookie sets the Secure attribute on the session
// cookie and must be true in production.
func NewHandler(auth Authenticator, resp httpresp.Responder, secureCookie bool) *Handler {
	return &Handler{auth: auth, resp: resp, secureCookie: secureCookie}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates the credentials and sets the session cookie. Form and HTML clients
// are redirected to the menu (or back home with ?error= on failure); JSON clients get
// the user and token in the envelope.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	html := httpresp.IsFormSubmission(r)

	req, err := decodeLogin(w, r)
	if err != nil {
		h.loginFailed(w, r, html, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.loginFailed(w, r, html, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    res.Artifact.Token,
		Path:     "/",
		MaxAge:   int(res.Artifact.ExpiresAt.Sub(res.Artifact.IssuedAt).Seconds()),
		Expires:  res.Artifact.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	if html {
		http.Redirect(w, r, menuPath, http.StatusFound)
		return
	}
	h.resp.Success(w, http.StatusOK, "Login successful", map[string]any{
		"user":     res.User,
		"token":    res.Artifact.Token,
		"redirect": menuPath,
	})
}

// Logout clears the session cookie. The artifact itself stays valid until it expires.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if id, ok := middleware.IdentityFrom(r.Context()); ok {
		h.auth.Logout(r.Context(), id.ID, id.Username)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	if httpresp.WantsHTML(r) {
		http.Redirect(w, r, homePath, http.StatusFound)
		return
	}
	h.resp.Success(w, http.StatusOK, "Logged out successfully", map[string]any{"redirect": homePath})
}

// Me echoes the verified identity {id, username, role}. Mounted behind the Auth Gate.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		h.resp.Unauthorized(w, r)
		return
	}
	httpresp.JSON(w, http.StatusOK, id)
}

func (h *Handler) loginFailed(w http.ResponseWriter, r *http.Request, html bool, err error) {
	if !html {
		h.resp.Error(w, r, err, loginFailedMessage)
		return
	}
	p := httpresp.Classify(err, loginFailedMessage)
	if p.Status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Int("status", p.Status).Msg("login failed")
	}
	http.Redirect(w, r, homePath+"?error="+url.QueryEscape(p.Message), http.StatusFound)
}

// decodeLogin reads credentials from a JSON body or from form values.
func decodeLogin(w http.ResponseWriter, r *http.Request) (loginRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return req, domain.NewValidationError("", "Invalid request body")
		}
		return req, nil
	}
	if err := r.ParseForm(); err != nil {
		return req, domain.NewValidationError("", "Invalid request body")
	}
	req.Username = r.PostFormValue("username")
	req.Password = r.PostFormValue("password")
	return req, nil
}
