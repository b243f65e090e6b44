package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkm-prototype/backend/internal/audit"
	auditdomain "pkm-prototype/backend/internal/audit/domain"
	audithandler "pkm-prototype/backend/internal/audit/handler"
	auditrepo "pkm-prototype/backend/internal/audit/repository"
	healthhandler "pkm-prototype/backend/internal/health/handler"
	identityservice "pkm-prototype/backend/internal/identity/service"
	"pkm-prototype/backend/internal/platform/httpresp"
	"pkm-prototype/backend/internal/policy/engine"
	"pkm-prototype/backend/internal/security"
	"pkm-prototype/backend/internal/server/middleware"
	"pkm-prototype/backend/internal/user/domain"
	userrepo "pkm-prototype/backend/internal/user/repository"
	userservice "pkm-prototype/backend/internal/user/service"
)

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

type app struct {
	handler http.Handler
	tokens  *security.TokenProvider
}

func newApp(t *testing.T, repo userrepo.Repository, opts ...security.Option) *app {
	t.Helper()
	ctx := context.Background()
	hasher := security.NewHasher(4, 4)
	tokens, err := security.NewTestTokenProvider(opts...)
	require.NoError(t, err)
	policy, err := engine.NewOPAEvaluator(ctx, "")
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	metrics, err := middleware.NewMetrics(reg)
	require.NoError(t, err)

	var (
		pinger      healthhandler.Pinger
		lister      audithandler.Lister
		auditLogger audit.AuditLogger = audit.Nop{}
	)
	_, storeUp := repo.(*userrepo.MemoryRepository)
	if storeUp {
		audits := auditrepo.NewMemoryRepository()
		lister = audits
		auditLogger = audit.NewLogger(audits, middleware.ClientIP, nil)
	}
	users := userservice.NewUserService(repo, hasher, auditLogger)
	if storeUp {
		_, _, err := users.EnsureUser(ctx, "admin", "admin", domain.RoleAdmin)
		require.NoError(t, err)
		pinger = okPinger{}
	}

	h := NewRouter(Deps{
		Auth:     identityservice.NewAuthService(repo, hasher, tokens, auditLogger),
		Users:    users,
		Audits:   lister,
		Tokens:   tokens,
		Policy:   policy,
		Health:   healthhandler.NewChecker(true, pinger, policy),
		Metrics:  metrics,
		Gatherer: reg,
	})
	return &app{handler: h, tokens: tokens}
}

type call struct {
	method, path, body string
	contentType        string
	accept             string
	cookie             *http.Cookie
	bearer             string
}

func (a *app) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
	if c.contentType != "" {
		req.Header.Set("Content-Type", c.contentType)
	}
	if c.accept != "" {
		req.Header.Set("Accept", c.accept)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *app) loginJSON(t *testing.T, username, password string) string {
	t.Helper()
	rec := a.do(t, call{method: http.MethodPost, path: "/login", contentType: "application/json",
		body: `{"username":"` + username + `","password":"` + password + `"}`})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func authCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	return nil
}

func TestFormLoginThenMenu(t *testing.T) {
	a := newApp(t, userrepo.NewMemoryRepository())
	form := url.Values{"username": {"admin"}, "password": {"admin"}}.Encode()

	rec := a.do(t, call{method: http.MethodPost, path: "/login", body: form, contentType: "application/x-www-form-urlencoded"})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/menu", rec.Header().Get("Location"))
	cookie := authCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 1800, cookie.MaxAge)

	rec = a.do(t, call{method: http.MethodGet, path: "/menu", cookie: cookie})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "admin", body["username"])
	assert.Equal(t, "/logout", body["signout"])
	assert.Len(t, body["menu"], 3)
}

func TestFormLoginFailureRedirects(t *testing.T) {
	a := newApp(t, userrepo.NewMemoryRepository())
	form := url.Values{"username": {"admin"}, "password": {"wrong"}}.Encode()
	rec := a.do(t, call{method: http.MethodPost, path: "/login", body: form, contentType: "application/x-www-form-urlencoded"})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/?error="+url.QueryEscape("Invalid username or password"), rec.Header().Get("Location"))
	assert.Nil(t, authCookie(rec))
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	a := newApp(t, userrepo.NewMemoryRepository())
	for _, body := range []string{`{"username":"admin","password":"nope"}`, `{"username":"ghost","password":"nope"}`} {
		rec := a.do(t, call{method: http.MethodPost, path: "/login", body: body, contentType: "application/json"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		m := decode(t, rec)
		assert.Equal(t, httpresp.CategoryAuthenticationFail, m["error"])
		assert.Equal(t, "Invalid username or password", m["message"])
	}
}

func TestAdminOnlyRoutes(t *testing.T) {
	a := newApp(t, userrepo.NewMemoryRepository())
	adminToken := a.loginJSON(t, "admin", "admin")

	rec := a.do(t, call{method: http.MethodPost, path: "/register", bearer: adminToken, contentType: "application/json",
		body: `{"username":"bob","password":"secret1","role":"user"}`})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, call{method: http.MethodGet, path: "/api/users", bearer: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(2), body["count"])
	assert.NotContains(t, rec.Body.String(), "$2a$")

	userToken := a.loginJSON(t, "bob", "secret1")
	rec = a.do(t, call{method: http.MethodGet, path: "/api/users", bearer: userToken})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(t, call{method: http.MethodDelete, path: "/api/users/1", bearer: userToken})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, call{method: http.MethodGet, path: "/menu", bearer: userToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["menu"], 2)
}

func TestAuditTrail(t *testing.T) {
	a := newApp(t, userrepo.NewMemoryRepository())
	adminToken := a.loginJSON(t, "admin", "admin")
	rec := a.do(t, call{method: http.MethodPost, path: "/register", bearer: adminToken, contentType: "application/json",
		body: `{"username":"bob","password":"secret1"}`})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, call{method: http.MethodGet, path: "/api/audit", bearer: adminToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entries := decode(t, rec)["entries"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, auditdomain.ActionUserCreated, entries[0].(map[string]any)["action"])
	assert.Equal(t, auditdomain.ActionLoginSuccess, entries[1].(map[string]any)["action"])

	userToken := a.loginJSON(t, "bob", "secret1")
	rec = a.do(t, call{method: http.MethodGet, path: "/api/audit", bearer: userToken})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGateRejectsWithoutReachingHandler(t *testing.T) {
	a := newApp(t, userrepo.NewMemoryRepository())

	rec := a.do(t, call{method: http.MethodGet, path: "/api/users"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decode(t, rec)["error"])

	rec = a.do(t, call{method: http.MethodGet, path: "/menu", accept: "text/html"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, httpresp.UnauthorizedHTML, rec.Body.String())

	rec = a.do(t, call{method: http.MethodPost, path: "/register", contentType: "application/json",
		bearer: "tampered.token.value", body: `{"username":"eve","password":"secret1"}`})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExpiredToken(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	a := newApp(t, userrepo.NewMemoryRepository(), security.WithClock(func() time.Time { return now }))
	token := a.loginJSON(t, "admin", "admin")

	now = now.Add(29 * time.Minute)
	assert.Equal(t, http.StatusOK, a.do(t, call{method: http.MethodGet, path: "/api/me", bearer: token}).Code)

	now = now.Add(time.Minute)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, call{method: http.MethodGet, path: "/api/me", bearer: token}).Code)
}

func TestLogoutKeepsTokenValidUntilExpiry(t *testing.T) {
	a := newApp(t, userrepo.NewMemoryRepository())
	token := a.loginJSON(t, "admin", "admin")
	cookie := &http.Cookie{Name: middleware.SessionCookieName, Value: token}

	rec := a.do(t, call{method: http.MethodGet, path: "/logout", cookie: cookie, accept: "text/html"})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	cleared := authCookie(rec)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	// Stateless artifacts are not revoked; only the client copy is cleared.
	rec = a.do(t, call{method: http.MethodGet, path: "/api/me", cookie: cookie})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStoreUnavailable(t *testing.T) {
	a := newApp(t, userrepo.UnavailableRepository{Reason: "store disabled"})

	rec := a.do(t, call{method: http.MethodPost, path: "/login", contentType: "application/json",
		body: `{"username":"admin","password":"admin"}`})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, httpresp.CategoryUnavailable, decode(t, rec)["error"])

	rec = a.do(t, call{method: http.MethodGet, path: "/health"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, false, body["storeReady"])
	assert.Equal(t, http.StatusServiceUnavailable, a.do(t, call{method: http.MethodGet, path: "/ready"}).Code)

	// The gate does not need the store.
	token, err := a.tokens.Issue(1, "admin", "admin")
	require.NoError(t, err)
	rec = a.do(t, call{method: http.MethodGet, path: "/api/users", bearer: token.Token})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newApp(t, userrepo.NewMemoryRepository())
	a.do(t, call{method: http.MethodGet, path: "/health"})
	rec := a.do(t, call{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}
