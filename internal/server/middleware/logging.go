package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RequestIDHeader carries the request id in and out.
const RequestIDHeader = "X-Request-ID"

const traceParentHeader = "traceparent"

var clientIPKey = contextKey{"client_ip"}

// RequestLogger attaches a zerolog logger with request_id (and trace_id when a W3C
// traceparent is present) to the request context, echoes the request id header and
// logs one line per request. Passwords and tokens are never logged.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if reqID == "" {
			reqID = uuid.New().String()
		}
		lc := log.With().Str("request_id", reqID)
		if tid := traceIDFromParent(r.Header.Get(traceParentHeader)); tid != "" {
			lc = lc.Str("trace_id", tid)
		}
		logger := lc.Logger()

		ip := clientIP(r)
		ctx := logger.WithContext(r.Context())
		ctx = context.WithValue(ctx, clientIPKey, ip)
		w.Header().Set(RequestIDHeader, reqID)

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		default:
			event = logger.Info()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("client_ip", ip).
			Str("user_agent", r.UserAgent()).
			Msg("HTTP request")
	})
}

// ClientIP returns the client IP recorded by RequestLogger, or "" if none.
func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// traceIDFromParent extracts the trace id from a traceparent header
// (version-traceid-parentid-flags), or "".
func traceIDFromParent(tp string) string {
	parts := strings.Split(strings.TrimSpace(tp), "-")
	if len(parts) < 4 || len(parts[1]) != 32 {
		return ""
	}
	return parts[1]
}
