package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pkm-prototype/backend/internal/audit/domain"
	auditrepo "pkm-prototype/backend/internal/audit/repository"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// Emitter forwards an audit entry to an external sink (OTel logs).
type Emitter interface {
	Emit(ctx context.Context, entry *domain.AuditLog)
}

// AuditLogger writes a single audit event with explicit action/resource. Used by the login
// and user-management code paths. LogEvent is best-effort: failures are logged and do not
// affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID int64, username, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository, an optional IP extractor and
// an optional emitter.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	emitter     Emitter
	now         func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor and emitter may be nil; then IP is recorded as "unknown" and nothing is emitted.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, emitter Emitter) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, emitter: emitter, now: time.Now}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID int64, username, action, resource, metadata string) {
	if l == nil || (l.repo == nil && l.emitter == nil) {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Username:  username,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: l.now().UTC(),
	}
	if l.emitter != nil {
		l.emitter.Emit(ctx, entry)
	}
	if l.repo == nil {
		return
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("action", action).
			Str("resource", resource).
			Msg("audit: failed to log event")
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) LogEvent(context.Context, int64, string, string, string, string) {}
