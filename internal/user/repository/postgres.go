package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"pkm-prototype/backend/internal/user/domain"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

const (
	selectUserColumns = `SELECT id, username, password, role, created_at FROM users`

	queryGetByID       = selectUserColumns + ` WHERE id = $1`
	queryGetByUsername = selectUserColumns + ` WHERE username = $1`
	queryCreate        = `INSERT INTO users (username, password, role) VALUES ($1, $2, $3) RETURNING id, created_at`
	queryUpdate        = `UPDATE users SET password = COALESCE($2, password), role = COALESCE($3, role) WHERE id = $1 RETURNING id, username, password, role, created_at`
	queryDelete        = `DELETE FROM users WHERE id = $1 RETURNING id, username`
	queryList          = `SELECT id, username, role, created_at FROM users ORDER BY id`
	queryListCreds     = selectUserColumns + ` ORDER BY id`
)

// PostgresRepository is the credential store backed by the users table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the user for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, queryGetByID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapDBError("get user by id", err)
	}
	return u, nil
}

// GetByUsername returns the user with the given username (case-sensitive), or nil if not found.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, queryGetByUsername, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapDBError("get user by username", err)
	}
	return u, nil
}

// Create inserts u and relies on the UNIQUE(username) constraint to reject duplicates.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	out := *u
	err := r.db.QueryRowContext(ctx, queryCreate, u.Username, u.PasswordHash, string(u.Role)).
		Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, fmt.Errorf("create user %q: %w", u.Username, domain.ErrDuplicateUsername)
		}
		return nil, wrapDBError("create user", err)
	}
	return &out, nil
}

// Update sets password and/or role in a single statement. Returns nil when id is unknown.
func (r *PostgresRepository) Update(ctx context.Context, id int64, upd domain.UserUpdate) (*domain.User, error) {
	var password, role sql.NullString
	if upd.PasswordHash != nil {
		password = sql.NullString{String: *upd.PasswordHash, Valid: true}
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			return nil, domain.NewValidationError("role", `Invalid role. Must be "user" or "admin"`)
		}
		role = sql.NullString{String: string(*upd.Role), Valid: true}
	}
	u, err := scanUser(r.db.QueryRowContext(ctx, queryUpdate, id, password, role))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapDBError("update user", err)
	}
	return u, nil
}

// Delete removes the user and returns its id and username, or nil if not found.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) (*domain.DeletedUser, error) {
	var d domain.DeletedUser
	err := r.db.QueryRowContext(ctx, queryDelete, id).Scan(&d.ID, &d.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapDBError("delete user", err)
	}
	return &d, nil
}

// List returns all users by id ascending. The password column is not selected.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, queryList)
	if err != nil {
		return nil, wrapDBError("list users", err)
	}
	defer rows.Close()

	users := make([]*domain.User, 0)
	for rows.Next() {
		var (
			u    domain.User
			role string
		)
		if err := rows.Scan(&u.ID, &u.Username, &role, &u.CreatedAt); err != nil {
			return nil, wrapDBError("scan user", err)
		}
		u.Role = domain.Role(role)
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("list users", err)
	}
	return users, nil
}

// ListCredentials returns all users including password hashes.
func (r *PostgresRepository) ListCredentials(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, queryListCreds)
	if err != nil {
		return nil, wrapDBError("list credentials", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, wrapDBError("scan credential", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("list credentials", err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u    domain.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}

// wrapDBError adds context and tags connectivity failures with domain.ErrBackendUnavailable.
func wrapDBError(op string, err error) error {
	if isConnectivityError(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrBackendUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConnectivityError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
