// Package rbac enforces role-based access on handlers.
package rbac

import (
	"context"
	"errors"

	"pkm-prototype/backend/internal/server/middleware"
	"pkm-prototype/backend/internal/user/domain"
)

var (
	// ErrUnauthenticated is returned when the request carries no verified identity.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the caller's role is not permitted.
	ErrForbidden = errors.New("insufficient role")
)

// RequireRole ensures the caller is authenticated and holds one of the given roles.
// Returns the caller identity on success; ErrUnauthenticated or ErrForbidden otherwise.
// The role comes from the verified token, so no store lookup happens here and a
// 403 never depends on whether the target resource exists.
func RequireRole(ctx context.Context, roles ...domain.Role) (middleware.Identity, error) {
	id, ok := middleware.IdentityFrom(ctx)
	if !ok || id.ID <= 0 {
		return middleware.Identity{}, ErrUnauthenticated
	}
	for _, r := range roles {
		if id.Role == r {
			return id, nil
		}
	}
	return middleware.Identity{}, ErrForbidden
}

// RequireAdmin is RequireRole(ctx, domain.RoleAdmin).
func RequireAdmin(ctx context.Context) (middleware.Identity, error) {
	return RequireRole(ctx, domain.RoleAdmin)
}
