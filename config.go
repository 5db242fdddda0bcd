package authcore

import (
	"strings"
	"time"
)

// Config is the full configuration of an Engine. Start from DefaultConfig
// and override fields; Builder.Build validates the result.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Lockout  LockoutConfig
	Password PasswordConfig
	Store    StoreConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds token lifetimes and signing material.
//
// KeyID is stamped into issued tokens; VerifyKeys keeps older key versions
// verifiable after a rotation.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	KeyID         string
	VerifyKeys    map[string][]byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the Redis key namespace shared by the session
// registry and the lockout policy.
type SessionConfig struct {
	RedisPrefix string
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig sets the failed-login threshold and lock duration.
type LockoutConfig struct {
	MaxAttempts  int
	LockDuration time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id cost parameters. Memory is in KiB.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig bounds every call to the directory and Redis.
//
// OperationTimeout applies per call. Idempotent calls are retried once after
// RetryDelay when RetryTransient is set; rotations, session creation and
// failure recording never are.
type StoreConfig struct {
	OperationTimeout time.Duration
	RetryDelay       time.Duration
	RetryTransient   bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig toggles optional hardening.
type SecurityConfig struct {
	// RevokeAllOnReuse revokes every session of an account when one of its
	// rotated refresh tokens is presented again.
	RevokeAllOnReuse bool
	// MirrorFailuresToDirectory writes failed-attempt counters and lock
	// expiry back to the directory after each failed login.
	MirrorFailuresToDirectory bool
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. Signing keys are left empty
// and must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			KeyID:         "v1",
		},
		Session: SessionConfig{
			RedisPrefix: "ac",
		},
		Lockout: LockoutConfig{
			MaxAttempts:  5,
			LockDuration: 30 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Store: StoreConfig{
			OperationTimeout: 2 * time.Second,
			RetryDelay:       50 * time.Millisecond,
			RetryTransient:   true,
		},
		Security: SecurityConfig{
			RevokeAllOnReuse:          false,
			MirrorFailuresToDirectory: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks c for values the Engine cannot run with. Failures are
// *ConfigError and match ErrConfiguration.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return configErr("JWT.AccessTTL", "must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return configErr("JWT.RefreshTTL", "must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "ed25519", "hs256":
	default:
		return configErr("JWT.SigningMethod", "must be 'ed25519' or 'hs256'")
	}
	if len(c.JWT.PrivateKey) == 0 {
		return configErr("JWT.PrivateKey", "signing key is required")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
		return configErr("JWT.PrivateKey", "hs256 key must be at least 32 bytes")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return configErr("JWT.Leeway", "must be within [0, 2m]")
	}
	for kid := range c.JWT.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return configErr("JWT.VerifyKeys", "contains an empty key id")
		}
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return configErr("Session.RedisPrefix", "must not be empty")
	}

	// Lockout
	if c.Lockout.MaxAttempts <= 0 {
		return configErr("Lockout.MaxAttempts", "must be > 0")
	}
	if c.Lockout.LockDuration <= 0 {
		return configErr("Lockout.LockDuration", "must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return configErr("Password.Memory", "must be >= 8192 KiB")
	}
	if c.Password.Time < 1 {
		return configErr("Password.Time", "must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return configErr("Password.Parallelism", "must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return configErr("Password.SaltLength", "must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return configErr("Password.KeyLength", "must be >= 16")
	}

	// Store
	if c.Store.OperationTimeout <= 0 {
		return configErr("Store.OperationTimeout", "must be > 0")
	}
	if c.Store.RetryDelay < 0 {
		return configErr("Store.RetryDelay", "must be >= 0")
	}
	if c.Store.RetryDelay >= c.Store.OperationTimeout {
		return configErr("Store.RetryDelay", "must be shorter than Store.OperationTimeout")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configErr("Audit.BufferSize", "must be > 0 when audit is enabled")
	}

	return nil
}
