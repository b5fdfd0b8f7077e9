// Package config reads gateway settings from the environment. Defaults
// mirror the documented deployment values; only the upstream host is
// mandatory.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	ThingsBoard ThingsBoardConfig
	RateLimit   RateLimitConfig
	Bulk        BulkConfig
	Auth        AuthConfig
	Database    DatabaseConfig
	Redis       RedisConfig
}

type ServerConfig struct {
	Port        string
	Environment string
	Debug       bool
	CORSOrigins []string
}

type ThingsBoardConfig struct {
	Host      string
	Username  string
	Password  string
	Timeout   time.Duration
	UploadRPS int // 0 disables the client-side throttle
}

type RateLimitConfig struct {
	Requests   int
	Window     time.Duration
	Backend    string // "memory" or "redis"
	MaxClients int
}

type BulkConfig struct {
	Workers       int
	TargetTimeout time.Duration
}

type AuthConfig struct {
	APIKey         string // static key; empty means DB-backed keys only
	JWTSecret      string
	JWTExpiryHours int
}

type DatabaseConfig struct {
	URL string // empty disables persistence (keys, users, request logs)
}

type RedisConfig struct {
	Addr     string // empty disables redis (key cache, redis limiter)
	Password string
	DB       int
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getenv("PORT", "8000"),
			Environment: getenv("ENVIRONMENT", "development"),
			Debug:       getenvBool("DEBUG", false),
			CORSOrigins: getenvList("BACKEND_CORS_ORIGINS"),
		},
		ThingsBoard: ThingsBoardConfig{
			Host:      os.Getenv("TB_HOST"),
			Username:  os.Getenv("TB_USERNAME"),
			Password:  os.Getenv("TB_PASSWORD"),
			Timeout:   getenvDuration("TB_TIMEOUT", 10*time.Second),
			UploadRPS: getenvInt("UPSTREAM_RPS", 0),
		},
		RateLimit: RateLimitConfig{
			Requests:   getenvInt("RATE_LIMIT_REQUESTS", 100),
			Window:     time.Duration(getenvInt("RATE_LIMIT_WINDOW", 60)) * time.Second,
			Backend:    getenv("RATE_LIMIT_BACKEND", "memory"),
			MaxClients: getenvInt("RATE_LIMIT_MAX_CLIENTS", 10000),
		},
		Bulk: BulkConfig{
			Workers:       getenvInt("BULK_WORKERS", 8),
			TargetTimeout: getenvDuration("BULK_TARGET_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			APIKey:         os.Getenv("API_KEY"),
			JWTSecret:      os.Getenv("JWT_SECRET"),
			JWTExpiryHours: getenvInt("JWT_EXPIRY_HOURS", 24),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getenvInt("REDIS_DB", 0),
		},
	}

	if cfg.ThingsBoard.Host == "" {
		return nil, errors.New("TB_HOST is required")
	}
	if cfg.RateLimit.Requests <= 0 {
		return nil, errors.New("RATE_LIMIT_REQUESTS must be positive")
	}
	if cfg.RateLimit.Window <= 0 {
		return nil, errors.New("RATE_LIMIT_WINDOW must be positive")
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getenvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
