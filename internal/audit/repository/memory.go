package repository

import (
	"context"
	"sync"

	"pkm-prototype/backend/internal/audit/domain"
)

// MemoryRepository keeps audit logs in process. Used when the credential store is
// disabled and in tests.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(_ context.Context, a *domain.AuditLog) error {
	c := *a
	r.mu.Lock()
	r.entries = append(r.entries, &c)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) List(_ context.Context, limit, offset int32) ([]*domain.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.AuditLog, 0, len(r.entries))
	for i := len(r.entries) - 1; i >= 0; i-- {
		c := *r.entries[i]
		out = append(out, &c)
	}
	if int(offset) >= len(out) {
		return []*domain.AuditLog{}, nil
	}
	out = out[offset:]
	if limit > 0 && int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}
