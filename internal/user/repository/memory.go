package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pkm-prototype/backend/internal/user/domain"
)

// MemoryRepository is an in-process credential store for tests and local runs.
// The mutex is held only around map access, never across caller work.
type MemoryRepository struct {
	mu         sync.Mutex
	nextID     int64
	byID       map[int64]*domain.User
	byUsername map[string]int64
	now        func() time.Time
}

// NewMemoryRepository returns an empty in-memory user repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextID:     1,
		byID:       make(map[int64]*domain.User),
		byUsername: make(map[string]int64),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (r *MemoryRepository) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byUsername[username]
	if !ok {
		return nil, nil
	}
	c := *r.byID[id]
	return &c, nil
}

func (r *MemoryRepository) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byUsername[u.Username]; exists {
		return nil, fmt.Errorf("create user %q: %w", u.Username, domain.ErrDuplicateUsername)
	}
	stored := *u
	stored.ID = r.nextID
	stored.CreatedAt = r.now()
	r.nextID++
	r.byID[stored.ID] = &stored
	r.byUsername[stored.Username] = stored.ID
	out := stored
	return &out, nil
}

func (r *MemoryRepository) Update(_ context.Context, id int64, upd domain.UserUpdate) (*domain.User, error) {
	if upd.Role != nil && !upd.Role.Valid() {
		return nil, domain.NewValidationError("role", `Invalid role. Must be "user" or "admin"`)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	c := *u
	return &c, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id int64) (*domain.DeletedUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	delete(r.byID, id)
	delete(r.byUsername, u.Username)
	return &domain.DeletedUser{ID: u.ID, Username: u.Username}, nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]*domain.User, error) {
	users, err := r.ListCredentials(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		u.PasswordHash = ""
	}
	return users, nil
}

func (r *MemoryRepository) ListCredentials(_ context.Context) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]*domain.User, 0, len(r.byID))
	for _, u := range r.byID {
		c := *u
		users = append(users, &c)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// PingContext always succeeds; it lets the memory store back readiness probes.
func (r *MemoryRepository) PingContext(context.Context) error { return nil }
