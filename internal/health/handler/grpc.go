package handler

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// NewGRPCServer returns a grpc.health.v1 server whose overall ("") status follows
// checker. The status is computed once here; call Watch to keep it current.
func NewGRPCServer(ctx context.Context, checker *Checker) *health.Server {
	hs := health.NewServer()
	syncStatus(ctx, hs, checker)
	return hs
}

// Watch re-runs checker every interval and updates hs until ctx ends, then marks every
// service NOT_SERVING.
func Watch(ctx context.Context, hs *health.Server, checker *Checker, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
			syncStatus(ctx, hs, checker)
		}
	}
}

func syncStatus(ctx context.Context, hs *health.Server, checker *Checker) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if checker.Check(ctx).Ready() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus("", status)
}
