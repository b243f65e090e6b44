// Package migrate runs database migrations from embedded SQL files using golang-migrate.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pkm-prototype/backend/internal/db"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrNoChange is returned when Up/Down has nothing to do (already at target version).
var ErrNoChange = migrate.ErrNoChange

type stepper interface {
	Up() error
	Down() error
}

// apply runs one direction unless ctx already ended while the instance was being built.
func apply(ctx context.Context, m stepper, direction string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var err error
	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Run applies migrations in the given direction using the provided DSN.
// direction must be "up" or "down". Returns nil on success, including when already
// at the target version. When ctx ends first, the migration is asked to stop after
// the current step and ctx.Err() is returned.
func Run(ctx context.Context, dsn string, direction string) error {
	if strings.TrimSpace(dsn) == "" {
		return errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}

	sourceDriver, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}

	type result struct{ err error }
	done := make(chan result, 1)
	stop := make(chan chan bool, 1)

	go func() {
		m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
		if err != nil {
			done <- result{fmt.Errorf("migrate: %w", err)}
			return
		}
		defer func() { _, _ = m.Close() }()
		stop <- m.GracefulStop
		done <- result{apply(ctx, m, direction)}
	}()

	select {
	case r := <-done:
		return r.err
	case <-ctx.Done():
		select {
		case gs := <-stop:
			select {
			case gs <- true:
			default:
			}
		default:
		}
		return ctx.Err()
	}
}
