// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DevJWTSecret signs tokens outside production when JWT_SECRET is unset.
const DevJWTSecret = "dev-jwt-secret"

// EnvProduction is the APP_ENV value that enables Secure cookies and hides error details.
const EnvProduction = "production"

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :3000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCHealthAddr is the address of the gRPC health listener; empty disables it.
	GRPCHealthAddr string `mapstructure:"GRPC_HEALTH_ADDR"`
	// DatabaseURL is the Postgres DSN of the credential store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// StoreEnabled when false starts the server without a credential store; store routes return 503.
	StoreEnabled bool `mapstructure:"STORE_ENABLED"`
	// StoreInitTimeout bounds open, ping and migrations at startup (e.g. "6s").
	StoreInitTimeout string `mapstructure:"STORE_INIT_TIMEOUT"`
	// SkipSchemaInit disables running embedded migrations at startup.
	SkipSchemaInit bool `mapstructure:"SKIP_SCHEMA_INIT"`
	// JWTSecret is the HS256 signing secret. Required when Env is production.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the iss claim (e.g. "pkm-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// BcryptCost is the bcrypt cost factor (4-31); default 10.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// HashConcurrency bounds concurrent bcrypt operations; 0 means GOMAXPROCS.
	HashConcurrency int `mapstructure:"HASH_CONCURRENCY"`
	// Env is the application environment ("development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// MenuPolicyFile is an optional Rego file replacing the built-in menu policy.
	MenuPolicyFile string `mapstructure:"MENU_POLICY_FILE"`
	// CORSAllowedOriginsRaw is a comma-separated origin list; empty disables CORS headers.
	CORSAllowedOriginsRaw string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// OTLPEndpoint is the OTLP gRPC collector address; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure disables TLS to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"SERVICE_NAME"`

	// ShutdownTimeoutRaw bounds graceful shutdown (e.g. "10s").
	ShutdownTimeoutRaw string `mapstructure:"SHUTDOWN_TIMEOUT"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("GRPC_HEALTH_ADDR", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("STORE_ENABLED", true)
	v.SetDefault("STORE_INIT_TIMEOUT", "6s")
	v.SetDefault("SKIP_SCHEMA_INIT", false)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "pkm-auth")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("HASH_CONCURRENCY", 0)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MENU_POLICY_FILE", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("SERVICE_NAME", "pkm-auth")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			return nil, errors.New("config: JWT_SECRET must be set when APP_ENV=production")
		}
		cfg.JWTSecret = DevJWTSecret
	}

	if cfg.StoreEnabled && cfg.DatabaseURL == "" && cfg.IsProduction() {
		return nil, errors.New("config: DATABASE_URL must be set when the store is enabled in production")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 10
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.HashConcurrency < 0 {
		return nil, errors.New("config: HASH_CONCURRENCY must not be negative")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == EnvProduction
}

// StoreInitTimeoutDuration parses StoreInitTimeout. Returns 6s if unset or invalid.
func (c *Config) StoreInitTimeoutDuration() time.Duration {
	return parseDuration(c.StoreInitTimeout, 6*time.Second)
}

// ShutdownTimeout parses ShutdownTimeoutRaw. Returns 10s if unset or invalid.
func (c *Config) ShutdownTimeout() time.Duration {
	return parseDuration(c.ShutdownTimeoutRaw, 10*time.Second)
}

// CORSAllowedOrigins splits CORSAllowedOriginsRaw on commas, dropping blanks.
func (c *Config) CORSAllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOriginsRaw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
