package domain

import "time"

// Audit actions recorded by the auth core.
const (
	ActionLoginSuccess = "login_success"
	ActionLoginFailure = "login_failure"
	ActionLogout       = "logout"
	ActionUserCreated  = "user_created"
	ActionUserUpdated  = "user_updated"
	ActionUserDeleted  = "user_deleted"
	ActionRehash       = "password_rehashed"
)

// ResourceUser is the resource of every user-management and session event.
const ResourceUser = "user"

// AuditLog represents an audit event. UserID is 0 when the actor is unknown
// (e.g. a failed login for a username that does not exist).
type AuditLog struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
