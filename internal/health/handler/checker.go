// Package handler serves liveness and readiness over HTTP and the grpc.health.v1 protocol.
package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const checkTimeout = 2 * time.Second

// Pinger is implemented by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is implemented by the policy engine.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Status is the result of one health check.
type Status struct {
	OK           bool `json:"ok"`
	StoreEnabled bool `json:"storeEnabled"`
	StoreReady   bool `json:"storeReady"`
	policyReady  bool
}

// Ready reports whether requests needing the store and the policy engine can be served.
func (s Status) Ready() bool {
	return s.StoreReady && s.policyReady
}

// Checker probes the credential store and the policy engine. db nil means the store never
// came up (or is disabled); policy nil is treated as healthy.
type Checker struct {
	storeEnabled bool
	db           Pinger
	policy       PolicyChecker
}

// NewChecker returns a Checker.
func NewChecker(storeEnabled bool, db Pinger, policy PolicyChecker) *Checker {
	return &Checker{storeEnabled: storeEnabled, db: db, policy: policy}
}

// Check runs the probes. Failures are logged and reported in Status, never returned.
func (c *Checker) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	st := Status{OK: true, StoreEnabled: c.storeEnabled, policyReady: true}
	if c.storeEnabled && c.db != nil {
		if err := c.db.PingContext(ctx); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("health: store ping failed")
		} else {
			st.StoreReady = true
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("health: policy check failed")
			st.policyReady = false
		}
	}
	return st
}
