package repository

import (
	"context"
	"database/sql"

	"pkm-prototype/backend/internal/audit/domain"
)

const (
	queryCreateAuditLog = `INSERT INTO audit_logs (id, user_id, username, action, resource, ip, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	queryListAuditLogs = `SELECT id, user_id, username, action, resource, ip, metadata, created_at
FROM audit_logs ORDER BY created_at DESC LIMIT $1 OFFSET $2`
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	uid := sql.NullInt64{Int64: a.UserID, Valid: a.UserID > 0}
	uname := sql.NullString{String: a.Username, Valid: a.Username != ""}
	meta := sql.NullString{String: a.Metadata, Valid: a.Metadata != ""}
	_, err := r.db.ExecContext(ctx, queryCreateAuditLog,
		a.ID, uid, uname, a.Action, a.Resource, a.IP, meta, a.CreatedAt)
	return err
}

// List returns audit logs newest first, paginated by limit and offset.
func (r *PostgresRepository) List(ctx context.Context, limit, offset int32) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, queryListAuditLogs, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a     domain.AuditLog
			uid   sql.NullInt64
			uname sql.NullString
			meta  sql.NullString
		)
		if err := rows.Scan(&a.ID, &uid, &uname, &a.Action, &a.Resource, &a.IP, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.UserID = uid.Int64
		a.Username = uname.String
		a.Metadata = meta.String
		out = append(out, &a)
	}
	return out, rows.Err()
}
