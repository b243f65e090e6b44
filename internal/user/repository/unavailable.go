package repository

import (
	"context"
	"fmt"

	"pkm-prototype/backend/internal/user/domain"
)

// UnavailableRepository stands in for the credential store when it is disabled or
// failed to initialize. Every call fails with domain.ErrBackendUnavailable.
type UnavailableRepository struct {
	// Reason is logged server-side only; clients see a generic message.
	Reason string
}

func (r UnavailableRepository) err() error {
	if r.Reason == "" {
		return domain.ErrBackendUnavailable
	}
	return fmt.Errorf("%w: %s", domain.ErrBackendUnavailable, r.Reason)
}

func (r UnavailableRepository) GetByID(context.Context, int64) (*domain.User, error) {
	return nil, r.err()
}

func (r UnavailableRepository) GetByUsername(context.Context, string) (*domain.User, error) {
	return nil, r.err()
}

func (r UnavailableRepository) Create(context.Context, *domain.User) (*domain.User, error) {
	return nil, r.err()
}

func (r UnavailableRepository) Update(context.Context, int64, domain.UserUpdate) (*domain.User, error) {
	return nil, r.err()
}

func (r UnavailableRepository) Delete(context.Context, int64) (*domain.DeletedUser, error) {
	return nil, r.err()
}

func (r UnavailableRepository) List(context.Context) ([]*domain.User, error) {
	return nil, r.err()
}
