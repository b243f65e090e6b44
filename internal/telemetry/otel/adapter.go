package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"pkm-prototype/backend/internal/audit"
	"pkm-prototype/backend/internal/audit/domain"
)

const auditScope = "pkm.audit"

// recordEmitter is the subset of otellog.Logger used by the emitter.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewAuditEmitter returns an audit.Emitter that sends entries as OTel log records via the
// given LoggerProvider. If provider is nil, returns a no-op emitter.
func NewAuditEmitter(provider *sdklog.LoggerProvider) audit.Emitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger(auditScope)}
}

// NewAuditEmitterWithLogger returns an emitter writing to logger directly.
func NewAuditEmitterWithLogger(logger recordEmitter) audit.Emitter {
	if logger == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.AuditLog) {}

type otelEmitter struct {
	logger recordEmitter
}

// Emit converts the audit entry to an OTel log record. Failed logins are WARN, the rest INFO.
func (e *otelEmitter) Emit(ctx context.Context, entry *domain.AuditLog) {
	if entry == nil {
		return
	}
	rec := otellog.Record{}
	ts := entry.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetObservedTimestamp(time.Now().UTC())
	rec.SetBody(otellog.StringValue(entry.Action))
	rec.SetEventName("audit." + entry.Action)
	if entry.Action == domain.ActionLoginFailure {
		rec.SetSeverity(otellog.SeverityWarn)
		rec.SetSeverityText("WARN")
	} else {
		rec.SetSeverity(otellog.SeverityInfo)
		rec.SetSeverityText("INFO")
	}
	rec.AddAttributes(
		otellog.String("audit.id", entry.ID),
		otellog.String("action", entry.Action),
		otellog.String("resource", entry.Resource),
	)
	if entry.UserID > 0 {
		rec.AddAttributes(otellog.Int64("user_id", entry.UserID))
	}
	if entry.Username != "" {
		rec.AddAttributes(otellog.String("username", entry.Username))
	}
	if entry.IP != "" {
		rec.AddAttributes(otellog.String("client_ip", entry.IP))
	}
	if entry.Metadata != "" {
		rec.AddAttributes(otellog.String("metadata", entry.Metadata))
	}
	e.logger.Emit(ctx, rec)
}
