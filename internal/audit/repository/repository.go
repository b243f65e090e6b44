package repository

import (
	"context"

	"pkm-prototype/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// List returns the newest entries first.
	List(ctx context.Context, limit, offset int32) ([]*domain.AuditLog, error)
}
