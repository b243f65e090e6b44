package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"pkm-prototype/backend/internal/security"
	"pkm-prototype/backend/internal/user/domain"
)

// SessionCookieName is the cookie carrying the session artifact.
const SessionCookieName = "auth"

const bearerPrefix = "bearer "

const instrumentationName = "pkm-prototype/backend/internal/server/middleware"

// ErrNoToken is passed to the failure handler when the request carries no artifact.
var ErrNoToken = errors.New("no session token")

// FailureFunc writes the response for a request the gate rejected.
type FailureFunc func(w http.ResponseWriter, r *http.Request, err error)

// AuthGate returns middleware that verifies the session artifact and attaches the caller
// Identity to the request context. The artifact comes from the auth cookie, or from an
// Authorization Bearer header when no cookie is present. Every failure (missing,
// malformed, tampered, wrong secret, expired) short-circuits to onFail; the handler is
// never reached. onFail may be nil, then a bare 401 is written.
func AuthGate(tokens *security.TokenProvider, onFail FailureFunc) func(http.Handler) http.Handler {
	if onFail == nil {
		onFail = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		}
	}
	decisions, _ := otel.Meter(instrumentationName).Int64Counter("auth.gate.decisions",
		metric.WithDescription("Auth Gate decisions by outcome"))

	record := func(r *http.Request, outcome string) {
		trace.SpanFromContext(r.Context()).AddEvent("auth.gate",
			trace.WithAttributes(attribute.String("auth.outcome", outcome)))
		if decisions != nil {
			decisions.Add(r.Context(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, outcome, err := verifyRequest(tokens, r)
			record(r, outcome)
			if err != nil {
				zerolog.Ctx(r.Context()).Debug().Str("auth_outcome", outcome).Msg("auth gate rejected request")
				onFail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withCallerContext(r.Context(), id)))
		})
	}
}

// OptionalAuth attaches the caller Identity when the request carries a valid artifact and
// otherwise passes the request through unchanged. Used on public routes such as logout.
func OptionalAuth(tokens *security.TokenProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, _, err := verifyRequest(tokens, r); err == nil {
				r = r.WithContext(withCallerContext(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// verifyRequest extracts and validates the artifact. outcome is one of missing,
// invalid, expired or allowed.
func verifyRequest(tokens *security.TokenProvider, r *http.Request) (Identity, string, error) {
	token := extractToken(r)
	if token == "" {
		return Identity{}, "missing", ErrNoToken
	}
	claims, err := tokens.Validate(token)
	if err == nil && !domain.Role(claims.Role).Valid() {
		err = security.ErrInvalidToken
	}
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return Identity{}, "expired", err
		}
		return Identity{}, "invalid", err
	}
	return Identity{ID: claims.UID, Username: claims.Username, Role: domain.Role(claims.Role)}, "allowed", nil
}

func withCallerContext(ctx context.Context, id Identity) context.Context {
	ctx = WithIdentity(ctx, id)
	logger := zerolog.Ctx(ctx).With().Int64("user_id", id.ID).Logger()
	return logger.WithContext(ctx)
}

// extractToken returns the artifact from the auth cookie, else from a Bearer header
// (scheme case-insensitive), else "".
func extractToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
