package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkm-prototype/backend/internal/audit/domain"
	auditrepo "pkm-prototype/backend/internal/audit/repository"
	"pkm-prototype/backend/internal/platform/httpresp"
	"pkm-prototype/backend/internal/server/middleware"
	userdomain "pkm-prototype/backend/internal/user/domain"
)

var (
	admin  = middleware.Identity{ID: 1, Username: "admin", Role: userdomain.RoleAdmin}
	member = middleware.Identity{ID: 2, Username: "bob", Role: userdomain.RoleUser}
)

func serve(t *testing.T, logs Lister, caller *middleware.Identity, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(logs, httpresp.Responder{}).RegisterRoutes(r)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if caller != nil {
		req = req.WithContext(middleware.WithIdentity(req.Context(), *caller))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func seeded(t *testing.T, actions ...string) *auditrepo.MemoryRepository {
	t.Helper()
	repo := auditrepo.NewMemoryRepository()
	for i, a := range actions {
		require.NoError(t, repo.Create(context.Background(), &domain.AuditLog{
			ID: string(rune('a' + i)), UserID: 1, Username: "admin", Action: a, Resource: domain.ResourceUser,
		}))
	}
	return repo
}

func TestList_NewestFirst(t *testing.T) {
	repo := seeded(t, domain.ActionLoginSuccess, domain.ActionUserCreated, domain.ActionLogout)

	rec, body := serve(t, repo, &admin, "/api/audit?limit=2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 2, body["count"])
	entries := body["entries"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.ActionLogout, entries[0].(map[string]any)["action"])
	assert.Equal(t, domain.ActionUserCreated, entries[1].(map[string]any)["action"])

	_, body = serve(t, repo, &admin, "/api/audit?offset=2")
	assert.EqualValues(t, 1, body["count"])
}

func TestList_AdminOnly(t *testing.T) {
	repo := seeded(t, domain.ActionLoginSuccess)

	rec, body := serve(t, repo, &member, "/api/audit")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", body["error"])

	rec, _ = serve(t, repo, nil, "/api/audit")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestList_InvalidPaging(t *testing.T) {
	repo := seeded(t)
	for _, q := range []string{"limit=0", "limit=201", "limit=x", "offset=-1"} {
		rec, body := serve(t, repo, &admin, "/api/audit?"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, "validation_error", body["error"], q)
	}
}

func TestList_NoStore(t *testing.T) {
	rec, body := serve(t, nil, &admin, "/api/audit")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "service_unavailable", body["error"])
}
