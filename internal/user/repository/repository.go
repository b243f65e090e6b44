package repository

import (
	"context"

	"pkm-prototype/backend/internal/user/domain"
)

// Repository defines persistence for users (the credential store).
// Lookups return (nil, nil) when the row does not exist; errors are reserved for
// store failures. Failures caused by an unreachable or disabled store wrap
// domain.ErrBackendUnavailable.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// Create assigns ID and CreatedAt. Returns domain.ErrDuplicateUsername when the
	// username is taken, including when a concurrent insert won the race.
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
	// Update applies only the non-nil fields of upd. Returns nil when id is unknown.
	Update(ctx context.Context, id int64, upd domain.UserUpdate) (*domain.User, error)
	// Delete returns nil when id is unknown.
	Delete(ctx context.Context, id int64) (*domain.DeletedUser, error)
	// List returns all users ordered by id ascending, without password hashes.
	List(ctx context.Context) ([]*domain.User, error)
}

// CredentialLister lists users including password hashes. Only offline tooling
// (the plaintext rehash command) uses it.
type CredentialLister interface {
	ListCredentials(ctx context.Context) ([]*domain.User, error)
}
