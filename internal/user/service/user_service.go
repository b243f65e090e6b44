// Package service implements admin user management on top of the credential store.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"pkm-prototype/backend/internal/audit"
	auditdomain "pkm-prototype/backend/internal/audit/domain"
	"pkm-prototype/backend/internal/security"
	"pkm-prototype/backend/internal/server/middleware"
	"pkm-prototype/backend/internal/user/domain"
	userrepo "pkm-prototype/backend/internal/user/repository"
)

// CreateInput is the request to create a user. Role may be empty (defaults to user).
type CreateInput struct {
	Username string
	Password string
	Role     string
}

// UpdateInput carries optional changes. Nil and empty values are ignored.
type UpdateInput struct {
	Password *string
	Role     *string
}

// UserService creates, updates, deletes and lists users. Authorization is the caller's
// job (handlers run rbac.RequireAdmin first).
type UserService struct {
	repo   userrepo.Repository
	hasher *security.Hasher
	audit  audit.AuditLogger
}

// NewUserService returns a UserService. auditLogger may be nil.
func NewUserService(repo userrepo.Repository, hasher *security.Hasher, auditLogger audit.AuditLogger) *UserService {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &UserService{repo: repo, hasher: hasher, audit: auditLogger}
}

// Create validates the input, hashes the password and stores the user.
// Returns domain.ErrDuplicateUsername when the username is taken.
func (s *UserService) Create(ctx context.Context, in CreateInput) (*domain.User, error) {
	username, err := domain.NormalizeUsername(in.Username)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(in.Password, domain.PasswordMinLen); err != nil {
		return nil, err
	}
	role, err := domain.ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	hash, err := s.hashPassword(ctx, in.Password)
	if err != nil {
		return nil, err
	}
	u, err := s.repo.Create(ctx, &domain.User{Username: username, PasswordHash: hash, Role: role})
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, u.ID, u.Username, auditdomain.ActionUserCreated, auditdomain.ResourceUser, actorMeta(ctx))
	return u.Public(), nil
}

// Update applies a new password and/or role to user id. Returns a *domain.ValidationError
// when nothing would change and domain.ErrUserNotFound for an unknown id.
func (s *UserService) Update(ctx context.Context, id int64, in UpdateInput) (*domain.User, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	var upd domain.UserUpdate
	if in.Password != nil && *in.Password != "" {
		if err := domain.ValidatePassword(*in.Password, domain.PasswordMinLen); err != nil {
			return nil, err
		}
		hash, err := s.hashPassword(ctx, *in.Password)
		if err != nil {
			return nil, err
		}
		upd.PasswordHash = &hash
	}
	if in.Role != nil && *in.Role != "" {
		role, err := domain.ParseRole(*in.Role)
		if err != nil {
			return nil, err
		}
		upd.Role = &role
	}
	if upd.Empty() {
		return nil, domain.NewValidationError("", "No valid fields to update")
	}
	u, err := s.repo.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("update user %d: %w", id, domain.ErrUserNotFound)
	}
	s.audit.LogEvent(ctx, u.ID, u.Username, auditdomain.ActionUserUpdated, auditdomain.ResourceUser, actorMeta(ctx))
	return u.Public(), nil
}

// Delete removes user id. Returns domain.ErrUserNotFound for an unknown id.
func (s *UserService) Delete(ctx context.Context, id int64) (*domain.DeletedUser, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	d, err := s.repo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("delete user %d: %w", id, domain.ErrUserNotFound)
	}
	s.audit.LogEvent(ctx, d.ID, d.Username, auditdomain.ActionUserDeleted, auditdomain.ResourceUser, actorMeta(ctx))
	return d, nil
}

// List returns every user ordered by id, without password hashes.
func (s *UserService) List(ctx context.Context) ([]*domain.User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.User, len(users))
	for i, u := range users {
		out[i] = u.Public()
	}
	return out, nil
}

// RehashPlaintext replaces every stored password that is not a bcrypt hash with the hash
// of that stored value. It is a one-shot repair for legacy seed data and never runs on
// the request path. Returns the number of rows rewritten.
func (s *UserService) RehashPlaintext(ctx context.Context, lister userrepo.CredentialLister) (int, error) {
	users, err := lister.ListCredentials(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, u := range users {
		if security.IsHash(u.PasswordHash) {
			continue
		}
		if u.PasswordHash == "" {
			zerolog.Ctx(ctx).Warn().Int64("user_id", u.ID).Msg("rehash: empty stored password, skipping")
			continue
		}
		hash, err := s.hashPassword(ctx, u.PasswordHash)
		if err != nil {
			return n, fmt.Errorf("rehash user %d: %w", u.ID, err)
		}
		if _, err := s.repo.Update(ctx, u.ID, domain.UserUpdate{PasswordHash: &hash}); err != nil {
			return n, fmt.Errorf("rehash user %d: %w", u.ID, err)
		}
		s.audit.LogEvent(ctx, u.ID, u.Username, auditdomain.ActionRehash, auditdomain.ResourceUser, "")
		n++
	}
	return n, nil
}

// EnsureUser creates username with password and role, or resets the password and role
// of an existing row. Used by the seed command to restore the default admin.
func (s *UserService) EnsureUser(ctx context.Context, username, password string, role domain.Role) (*domain.User, bool, error) {
	hash, err := s.hashPassword(ctx, password)
	if err != nil {
		return nil, false, err
	}
	existing, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		u, err := s.repo.Create(ctx, &domain.User{Username: username, PasswordHash: hash, Role: role})
		if err != nil {
			return nil, false, err
		}
		return u.Public(), true, nil
	}
	u, err := s.repo.Update(ctx, existing.ID, domain.UserUpdate{PasswordHash: &hash, Role: &role})
	if err != nil {
		return nil, false, err
	}
	if u == nil {
		return nil, false, fmt.Errorf("reset user %q: %w", username, domain.ErrUserNotFound)
	}
	return u.Public(), false, nil
}

func (s *UserService) hashPassword(ctx context.Context, password string) (string, error) {
	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		if errors.Is(err, security.ErrEncoding) {
			return "", domain.NewValidationError("password", "Password must be valid UTF-8")
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func validateID(id int64) error {
	if id <= 0 {
		return domain.NewValidationError("id", "ID must be positive")
	}
	return nil
}

func actorMeta(ctx context.Context) string {
	if id, ok := middleware.IdentityFrom(ctx); ok {
		return "by=" + id.Username
	}
	return ""
}
