package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"pkm-prototype/backend/internal/audit"
	auditdomain "pkm-prototype/backend/internal/audit/domain"
	"pkm-prototype/backend/internal/security"
	userdomain "pkm-prototype/backend/internal/user/domain"
)

// ErrInvalidCredentials is returned for an unknown username or a wrong password. The two
// cases are indistinguishable to the caller.
var ErrInvalidCredentials = errors.New("invalid credentials")

const instrumentationName = "pkm-prototype/backend/internal/identity/service"

// LoginResult holds the authenticated user (without password hash) and its session artifact.
type LoginResult struct {
	User     *userdomain.User
	Artifact security.Artifact
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByUsername(ctx context.Context, username string) (*userdomain.User, error)
}

// AuthService implements password login and logout bookkeeping for the stateless
// session variant.
type AuthService struct {
	userRepo UserRepo
	hasher   *security.Hasher
	tokens   *security.TokenProvider
	audit    audit.AuditLogger

	attempts metric.Int64Counter

	// dummyHash is verified against when the username is unknown so both failure
	// paths cost one bcrypt comparison.
	dummyMu   sync.Mutex
	dummyHash string
}

// NewAuthService returns an AuthService with the given dependencies. auditLogger may be nil.
func NewAuthService(userRepo UserRepo, hasher *security.Hasher, tokens *security.TokenProvider, auditLogger audit.AuditLogger) *AuthService {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	attempts, _ := otel.Meter(instrumentationName).Int64Counter("auth.login.attempts",
		metric.WithDescription("Login attempts by outcome"))
	return &AuthService{
		userRepo: userRepo,
		hasher:   hasher,
		tokens:   tokens,
		audit:    auditLogger,
		attempts: attempts,
	}
}

// TokenTTL is the lifetime of issued artifacts; handlers use it for the cookie Max-Age.
func (s *AuthService) TokenTTL() time.Duration { return s.tokens.TTL() }

// Login validates the input, verifies the password against the stored hash and issues a
// session artifact. Returns *userdomain.ValidationError for malformed input,
// ErrInvalidCredentials for unknown user or wrong password, and wraps
// userdomain.ErrBackendUnavailable when the store cannot be reached.
func (s *AuthService) Login(ctx context.Context, username, password string) (res *LoginResult, err error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "AuthService.Login")
	defer func() {
		outcome := "success"
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			outcome = "invalid_credentials"
		case err != nil:
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, "login failed")
		}
		span.SetAttributes(attribute.String("auth.outcome", outcome))
		if s.attempts != nil {
			s.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		}
		span.End()
	}()

	username, err = userdomain.NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if err := userdomain.ValidatePassword(password, 1); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if user == nil {
		// Spend the same work as a real comparison before failing.
		_, _ = s.hasher.Verify(ctx, password, s.placeholderHash(ctx))
		s.audit.LogEvent(ctx, 0, username, auditdomain.ActionLoginFailure, auditdomain.ResourceUser, "unknown username")
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(ctx, password, user.PasswordHash)
	switch {
	case errors.Is(err, security.ErrMalformedHash):
		// Stored value is not a bcrypt hash (e.g. plaintext seed data). Never compared as
		// plaintext; cmd/seed -rehash-plaintext repairs such rows.
		zerolog.Ctx(ctx).Error().Int64("user_id", user.ID).Msg("stored password is not a bcrypt hash")
		s.audit.LogEvent(ctx, user.ID, user.Username, auditdomain.ActionLoginFailure, auditdomain.ResourceUser, "malformed hash")
		return nil, ErrInvalidCredentials
	case errors.Is(err, security.ErrEncoding):
		return nil, userdomain.NewValidationError("password", "Password must be valid UTF-8")
	case err != nil:
		return nil, fmt.Errorf("login: verify password: %w", err)
	case !ok:
		s.audit.LogEvent(ctx, user.ID, user.Username, auditdomain.ActionLoginFailure, auditdomain.ResourceUser, "wrong password")
		return nil, ErrInvalidCredentials
	}

	art, err := s.tokens.Issue(user.ID, user.Username, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("login: issue token: %w", err)
	}
	s.audit.LogEvent(ctx, user.ID, user.Username, auditdomain.ActionLoginSuccess, auditdomain.ResourceUser, "")
	return &LoginResult{User: user.Public(), Artifact: art}, nil
}

// Logout records the logout of the given caller. The artifact itself stays valid until
// its exp; the handler only clears the client cookie.
func (s *AuthService) Logout(ctx context.Context, userID int64, username string) {
	if userID <= 0 {
		return
	}
	s.audit.LogEvent(ctx, userID, username, auditdomain.ActionLogout, auditdomain.ResourceUser, "")
}

// placeholderHash builds the dummy hash on first use. The caller's cancellation is
// detached so an aborted request cannot leave it empty; a failed build is retried.
func (s *AuthService) placeholderHash(ctx context.Context) string {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()
	if s.dummyHash == "" {
		h, err := s.hasher.Hash(context.WithoutCancel(ctx), "placeholder-password")
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("build placeholder hash")
			return ""
		}
		s.dummyHash = h
	}
	return s.dummyHash
}
