package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level configuration. FromEnv keeps main lean; every
// field has a development default so the server boots with no environment.
type Config struct {
	Addr          string
	JWTSigningKey string

	PostgresURL string
	Redis       RedisConfig

	SMTP SMTPConfig

	DigestInterval   time.Duration
	DigestBatchLimit int

	// PreferenceCacheTTL bounds staleness of the tenant-preferences cache.
	// There is no active invalidation on preference writes.
	PreferenceCacheTTL time.Duration
}

// RedisConfig configures the optional Redis-backed preference cache. Empty
// URL means the in-process cache is used.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SMTPConfig configures digest delivery. Empty Addr disables sending; the
// sweeper then logs composed digests instead.
type SMTPConfig struct {
	Addr     string
	From     string
	Username string
	Password string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default; must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Config{
		Addr:          envOr("LINVENTAIRE_ADDR", ":8080"),
		JWTSigningKey: jwtSigningKey,
		PostgresURL:   os.Getenv("POSTGRES_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envIntOr("REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDurationOr("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		SMTP: SMTPConfig{
			Addr:     os.Getenv("SMTP_ADDR"),
			From:     envOr("SMTP_FROM", "no-reply@linventaire.app"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
		},
		DigestInterval:     envDurationOr("DIGEST_INTERVAL", 5*time.Minute),
		DigestBatchLimit:   envIntOr("DIGEST_BATCH_LIMIT", 100),
		PreferenceCacheTTL: envDurationOr("PREFERENCE_CACHE_TTL", 60*time.Second),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
