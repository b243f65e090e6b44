package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"pkm-prototype/backend/internal/audit"
	auditrepo "pkm-prototype/backend/internal/audit/repository"
	"pkm-prototype/backend/internal/config"
	"pkm-prototype/backend/internal/db"
	"pkm-prototype/backend/internal/db/migrate"
	healthhandler "pkm-prototype/backend/internal/health/handler"
	identityservice "pkm-prototype/backend/internal/identity/service"
	"pkm-prototype/backend/internal/logging"
	"pkm-prototype/backend/internal/policy/engine"
	"pkm-prototype/backend/internal/security"
	"pkm-prototype/backend/internal/server"
	"pkm-prototype/backend/internal/server/middleware"
	telemetry "pkm-prototype/backend/internal/telemetry/otel"
	"pkm-prototype/backend/internal/user/domain"
	userrepo "pkm-prototype/backend/internal/user/repository"
	userservice "pkm-prototype/backend/internal/user/service"
)

const (
	healthWatchInterval = 10 * time.Second
	defaultAdmin        = "admin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logging.Setup(cfg.LogLevel, cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.NewProviders(ctx, telemetry.Settings{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("telemetry")
	}
	providers.SetGlobal()

	hasher := security.NewHasher(cfg.BcryptCost, cfg.HashConcurrency)
	st := openStore(ctx, cfg, hasher)
	users, audits, pinger := st.users, st.audits, st.pinger
	tokens, err := security.NewTokenProvider([]byte(cfg.JWTSecret), cfg.JWTIssuer, security.DefaultTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("token provider")
	}
	auditLogger := audit.NewLogger(audits, middleware.ClientIP, telemetry.NewAuditEmitter(providers.LoggerProvider))

	policySrc, err := engine.LoadPolicyFile(cfg.MenuPolicyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("menu policy")
	}
	policy, err := engine.NewOPAEvaluator(ctx, policySrc)
	if err != nil {
		log.Fatal().Err(err).Msg("menu policy")
	}
	checker := healthhandler.NewChecker(cfg.StoreEnabled, pinger, policy)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := middleware.NewMetrics(reg)
	if err != nil {
		log.Fatal().Err(err).Msg("metrics")
	}

	handler := server.NewRouter(server.Deps{
		Auth:               identityservice.NewAuthService(users, hasher, tokens, auditLogger),
		Users:              userservice.NewUserService(users, hasher, auditLogger),
		Audits:             audits,
		Tokens:             tokens,
		Policy:             policy,
		Health:             checker,
		Metrics:            metrics,
		Gatherer:           reg,
		ShowErrorDetails:   !cfg.IsProduction(),
		SecureCookies:      cfg.IsProduction(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins(),
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("store", st.kind).Msg("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("serve http")
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("listen grpc health")
		}
		grpcSrv = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
		hs := healthhandler.NewGRPCServer(ctx, checker)
		healthpb.RegisterHealthServer(grpcSrv, hs)
		go healthhandler.Watch(ctx, hs, checker, healthWatchInterval)
		go func() {
			log.Info().Str("addr", cfg.GRPCHealthAddr).Msg("gRPC health listening")
			if err := grpcSrv.Serve(lis); err != nil {
				log.Error().Err(err).Msg("serve grpc health")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("telemetry shutdown")
	}
	if st.conn != nil {
		_ = st.conn.Close()
	}
	log.Info().Msg("server stopped")
}

type store struct {
	kind   string
	users  userrepo.Repository
	audits auditrepo.Repository
	pinger healthhandler.Pinger
	conn   *sql.DB
}

// openStore connects to Postgres and applies migrations within STORE_INIT_TIMEOUT.
// Without DATABASE_URL outside production it falls back to an in-memory store seeded
// with admin/admin. When the store is disabled or unreachable the server still starts
// and store-backed routes answer 503.
func openStore(ctx context.Context, cfg *config.Config, hasher *security.Hasher) store {
	if !cfg.StoreEnabled {
		log.Warn().Msg("credential store disabled (STORE_ENABLED=false)")
		return store{kind: "disabled", users: userrepo.UnavailableRepository{Reason: "STORE_ENABLED=false"}}
	}
	unavailable := store{kind: "unavailable", users: userrepo.UnavailableRepository{Reason: "credential store not initialised"}}

	initCtx, cancel := context.WithTimeout(ctx, cfg.StoreInitTimeoutDuration())
	defer cancel()

	if cfg.DatabaseURL == "" && !cfg.IsProduction() {
		mem := userrepo.NewMemoryRepository()
		if _, _, err := userservice.NewUserService(mem, hasher, nil).EnsureUser(initCtx, defaultAdmin, defaultAdmin, domain.RoleAdmin); err != nil {
			log.Error().Err(err).Msg("seed in-memory store")
			return unavailable
		}
		log.Warn().Msg("DATABASE_URL not set; using in-memory credential store with admin/admin")
		return store{kind: "memory", users: mem, audits: auditrepo.NewMemoryRepository(), pinger: mem}
	}

	conn, err := db.Open(initCtx, cfg.DatabaseURL)
	if err != nil {
		log.Error().Err(err).Msg("credential store unavailable")
		return unavailable
	}
	if !cfg.SkipSchemaInit {
		if err := migrate.Run(initCtx, cfg.DatabaseURL, "up"); err != nil {
			log.Error().Err(err).Msg("schema init failed")
			_ = conn.Close()
			return unavailable
		}
	}
	return store{
		kind:   "postgres",
		users:  userrepo.NewPostgresRepository(conn),
		audits: auditrepo.NewPostgresRepository(conn),
		pinger: conn,
		conn:   conn,
	}
}
