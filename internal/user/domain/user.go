package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Role is the coarse-grained permission tag attached to a user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

const (
	UsernameMinLen = 3
	UsernameMaxLen = 50
	// PasswordMinLen applies to new passwords (register, update). Login only requires non-empty.
	PasswordMinLen = 6
	// PasswordMaxLen is the bcrypt input limit in bytes.
	PasswordMaxLen = 72
	// minHashLen is the length of a bcrypt encoding; anything shorter cannot be a stored hash.
	minHashLen = 60
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Sentinel errors for the credential store. Handlers map them to HTTP status codes.
var (
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrBackendUnavailable = errors.New("credential store unavailable")
)

// ValidationError describes malformed input. Message is safe to show to clients.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError returns a *ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// User is the core credential record. PasswordHash never leaves the store boundary in
// serialized form.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Public returns a copy of u with the password hash cleared.
func (u *User) Public() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.PasswordHash = ""
	return &c
}

// Validate checks the user for persistence. An empty role defaults to RoleUser.
func (u *User) Validate() error {
	if err := ValidateUsername(u.Username); err != nil {
		return err
	}
	if len(u.PasswordHash) < minHashLen {
		return NewValidationError("password", "password must be hashed")
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if !u.Role.Valid() {
		return NewValidationError("role", `Invalid role. Must be "user" or "admin"`)
	}
	return nil
}

// UserUpdate carries the optional fields of an update. Nil fields are left untouched.
type UserUpdate struct {
	PasswordHash *string
	Role         *Role
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.PasswordHash == nil && u.Role == nil
}

// DeletedUser is the projection returned by a successful delete.
type DeletedUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// ParseRole normalizes s (case-insensitive, trimmed). Empty input yields RoleUser.
func ParseRole(s string) (Role, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RoleUser, nil
	}
	r := Role(s)
	if !r.Valid() {
		return "", NewValidationError("role", `Invalid role. Must be "user" or "admin"`)
	}
	return r, nil
}

// NormalizeUsername trims surrounding whitespace and validates the result.
func NormalizeUsername(s string) (string, error) {
	s = strings.TrimSpace(s)
	if err := ValidateUsername(s); err != nil {
		return "", err
	}
	return s, nil
}

// ValidateUsername enforces length 3-50 and charset [a-zA-Z0-9_-].
func ValidateUsername(s string) error {
	switch {
	case s == "":
		return NewValidationError("username", "Username is required")
	case len(s) < UsernameMinLen:
		return NewValidationError("username", "Username must be at least 3 characters")
	case len(s) > UsernameMaxLen:
		return NewValidationError("username", "Username must not exceed 50 characters")
	case !usernamePattern.MatchString(s):
		return NewValidationError("username", "Username can only contain letters, numbers, underscore, and hyphen")
	}
	return nil
}

// ValidatePassword checks a new password. minLen lets login accept any non-empty value.
func ValidatePassword(p string, minLen int) error {
	if p == "" {
		return NewValidationError("password", "Password is required")
	}
	if len(p) < minLen {
		return NewValidationError("password", fmt.Sprintf("Password must be at least %d characters", minLen))
	}
	if len(p) > PasswordMaxLen {
		return NewValidationError("password", "Password is too long")
	}
	return nil
}
