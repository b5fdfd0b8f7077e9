package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TB_HOST", "https://tb.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "8000" {
		t.Errorf("port = %q, want 8000", cfg.Server.Port)
	}
	if cfg.RateLimit.Requests != 100 {
		t.Errorf("rate limit requests = %d, want 100", cfg.RateLimit.Requests)
	}
	if cfg.RateLimit.Window != time.Minute {
		t.Errorf("rate limit window = %v, want 1m", cfg.RateLimit.Window)
	}
	if cfg.RateLimit.Backend != "memory" {
		t.Errorf("rate limit backend = %q, want memory", cfg.RateLimit.Backend)
	}
	if cfg.Bulk.Workers != 8 {
		t.Errorf("bulk workers = %d, want 8", cfg.Bulk.Workers)
	}
	if cfg.IsProduction() {
		t.Error("default environment should not be production")
	}
}

func TestLoadRequiresUpstreamHost(t *testing.T) {
	t.Setenv("TB_HOST", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load should fail without TB_HOST")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TB_HOST", "https://tb.example.com")
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("RATE_LIMIT_REQUESTS", "25")
	t.Setenv("RATE_LIMIT_WINDOW", "30")
	t.Setenv("RATE_LIMIT_BACKEND", "redis")
	t.Setenv("BACKEND_CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if !cfg.IsProduction() {
		t.Error("production environment not detected")
	}
	if cfg.RateLimit.Requests != 25 || cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("rate limit = %d/%v", cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}
	if cfg.RateLimit.Backend != "redis" {
		t.Errorf("backend = %q", cfg.RateLimit.Backend)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example.com" {
		t.Errorf("cors origins = %v", cfg.Server.CORSOrigins)
	}
}

func TestLoadRejectsNonPositiveLimits(t *testing.T) {
	t.Setenv("TB_HOST", "https://tb.example.com")
	t.Setenv("RATE_LIMIT_REQUESTS", "0")

	if _, err := Load(); err == nil {
		t.Fatal("Load should reject RATE_LIMIT_REQUESTS=0")
	}
}
