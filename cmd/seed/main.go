// seed maintains the credential store from the command line:
//
//	-reset-admin        create the admin account, or reset its password and role
//	-rehash-plaintext   replace stored non-bcrypt passwords with their bcrypt hash
//
// Both are idempotent. Requires DATABASE_URL.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"pkm-prototype/backend/internal/audit"
	auditrepo "pkm-prototype/backend/internal/audit/repository"
	"pkm-prototype/backend/internal/config"
	"pkm-prototype/backend/internal/db"
	"pkm-prototype/backend/internal/db/migrate"
	"pkm-prototype/backend/internal/logging"
	"pkm-prototype/backend/internal/security"
	"pkm-prototype/backend/internal/user/domain"
	userrepo "pkm-prototype/backend/internal/user/repository"
	"pkm-prototype/backend/internal/user/service"
)

func main() {
	resetAdmin := flag.Bool("reset-admin", false, "Create or reset the admin account")
	username := flag.String("username", "admin", "Account name used with -reset-admin")
	password := flag.String("password", "admin", "Password used with -reset-admin")
	rehash := flag.Bool("rehash-plaintext", false, "Hash stored passwords that are not bcrypt hashes")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall deadline")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger := logging.Setup(cfg.LogLevel, cfg.Env)
	if !*resetAdmin && !*rehash {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx)

	if err := migrate.Run(ctx, cfg.DatabaseURL, "up"); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer conn.Close()

	repo := userrepo.NewPostgresRepository(conn)
	hasher := security.NewHasher(cfg.BcryptCost, cfg.HashConcurrency)
	users := service.NewUserService(repo, hasher, audit.NewLogger(auditrepo.NewPostgresRepository(conn), nil, nil))

	if *resetAdmin {
		u, created, err := users.EnsureUser(ctx, *username, *password, domain.RoleAdmin)
		if err != nil {
			log.Fatal().Err(err).Str("username", *username).Msg("reset admin")
		}
		log.Info().Int64("user_id", u.ID).Str("username", u.Username).Bool("created", created).Msg("admin account ready")
	}
	if *rehash {
		n, err := users.RehashPlaintext(ctx, repo)
		if err != nil {
			log.Fatal().Err(err).Int("rehashed", n).Msg("rehash plaintext passwords")
		}
		log.Info().Int("rehashed", n).Msg("plaintext passwords rehashed")
	}
}
