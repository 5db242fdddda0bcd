package main

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/caarlos0/env/v11"
)

type serviceConfig struct {
	HTTPAddr        string        `env:"AUTHD_HTTP_ADDR"         envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"AUTHD_SHUTDOWN_TIMEOUT"  envDefault:"10s"`
	Environment     string        `env:"AUTHD_ENV"               envDefault:"development"`

	RedisAddr     string `env:"AUTHD_REDIS_ADDR"`
	RedisPassword string `env:"AUTHD_REDIS_PASSWORD"`
	RedisDB       int    `env:"AUTHD_REDIS_DB"          envDefault:"0"`
	DatabaseURL   string `env:"AUTHD_DATABASE_URL"`
	Migrate       bool   `env:"AUTHD_MIGRATE"           envDefault:"false"`

	// DevAccount seeds the in-memory directory as "identifier:password".
	DevAccount string `env:"AUTHD_DEV_ACCOUNT"`

	JWTSigningMethod string        `env:"AUTHD_JWT_SIGNING_METHOD" envDefault:"ed25519"`
	JWTPrivateKey    string        `env:"AUTHD_JWT_PRIVATE_KEY"`
	JWTKeyID         string        `env:"AUTHD_JWT_KEY_ID"         envDefault:"v1"`
	JWTIssuer        string        `env:"AUTHD_JWT_ISSUER"`
	JWTAudience      string        `env:"AUTHD_JWT_AUDIENCE"`
	AccessTTL        time.Duration `env:"AUTHD_ACCESS_TTL"         envDefault:"15m"`
	RefreshTTL       time.Duration `env:"AUTHD_REFRESH_TTL"        envDefault:"168h"`

	RedisPrefix      string        `env:"AUTHD_REDIS_PREFIX"       envDefault:"ac"`
	MaxAttempts      int           `env:"AUTHD_LOCKOUT_MAX"        envDefault:"5"`
	LockDuration     time.Duration `env:"AUTHD_LOCKOUT_DURATION"   envDefault:"30m"`
	RevokeAllOnReuse bool          `env:"AUTHD_REVOKE_ALL_ON_REUSE" envDefault:"false"`
	OperationTimeout time.Duration `env:"AUTHD_STORE_TIMEOUT"      envDefault:"2s"`

	AuditEnabled bool   `env:"AUTHD_AUDIT_ENABLED" envDefault:"true"`
	SentryDSN    string `env:"AUTHD_SENTRY_DSN"`

	LogLevel string `env:"AUTHD_LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"AUTHD_LOG_DEV"   envDefault:"false"`
	LogFile  string `env:"AUTHD_LOG_FILE"`

	MetricsEnabled bool `env:"AUTHD_METRICS_ENABLED" envDefault:"true"`
}

func loadServiceConfig() (serviceConfig, error) {
	var cfg serviceConfig
	if err := env.Parse(&cfg); err != nil {
		return serviceConfig{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// engineConfig maps the environment onto authcore.Config. The signing key is
// base64 (standard encoding) of raw key bytes or a PEM block.
func (c serviceConfig) engineConfig() (authcore.Config, error) {
	cfg := authcore.DefaultConfig()

	key, err := base64.StdEncoding.DecodeString(c.JWTPrivateKey)
	if err != nil {
		return authcore.Config{}, fmt.Errorf("decode AUTHD_JWT_PRIVATE_KEY: %w", err)
	}

	cfg.JWT.SigningMethod = c.JWTSigningMethod
	cfg.JWT.PrivateKey = key
	cfg.JWT.KeyID = c.JWTKeyID
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.Audience = c.JWTAudience
	cfg.JWT.AccessTTL = c.AccessTTL
	cfg.JWT.RefreshTTL = c.RefreshTTL
	cfg.Session.RedisPrefix = c.RedisPrefix
	cfg.Lockout.MaxAttempts = c.MaxAttempts
	cfg.Lockout.LockDuration = c.LockDuration
	cfg.Security.RevokeAllOnReuse = c.RevokeAllOnReuse
	cfg.Store.OperationTimeout = c.OperationTimeout
	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Metrics.Enabled = c.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.MetricsEnabled

	if err := cfg.Validate(); err != nil {
		return authcore.Config{}, err
	}
	return cfg, nil
}
