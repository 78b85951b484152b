package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"HELPMARQ_API_URL", "HELPMARQ_HTTP_TIMEOUT_SECONDS", "HELPMARQ_ROLE_TIMEOUT_SECONDS",
		"HELPMARQ_STATE_FILE", "HELPMARQ_STATE_PASSPHRASE", "HELPMARQ_CACHE_TTL_SECONDS",
		"HELPMARQ_CACHE_MAX_ENTRIES", "HELPMARQ_REDIS_URL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.APIBaseURL != "https://api.helpmarq.app" {
		t.Errorf("unexpected default API URL: %s", cfg.APIBaseURL)
	}
	if cfg.HTTPTimeout != 15*time.Second {
		t.Errorf("unexpected default HTTP timeout: %v", cfg.HTTPTimeout)
	}
	if cfg.RoleTimeout != 4*time.Second {
		t.Errorf("unexpected default role timeout: %v", cfg.RoleTimeout)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("unexpected default cache TTL: %v", cfg.CacheTTL)
	}
	if cfg.CacheMaxEntries != 256 {
		t.Errorf("unexpected default cache bound: %d", cfg.CacheMaxEntries)
	}
	if cfg.StateFile == "" {
		t.Error("expected a default state file path")
	}
	if cfg.RedisURL != "" {
		t.Errorf("expected empty default redis url, got %s", cfg.RedisURL)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("HELPMARQ_API_URL", "http://localhost:8787")
	t.Setenv("HELPMARQ_CACHE_TTL_SECONDS", "60")
	t.Setenv("HELPMARQ_REDIS_URL", "redis://localhost:6379/0")

	cfg := Load()
	if cfg.APIBaseURL != "http://localhost:8787" {
		t.Errorf("unexpected API URL: %s", cfg.APIBaseURL)
	}
	if cfg.CacheTTL != time.Minute {
		t.Errorf("unexpected cache TTL: %v", cfg.CacheTTL)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("unexpected redis url: %s", cfg.RedisURL)
	}
}

func TestLoadIgnoresMalformedInts(t *testing.T) {
	t.Setenv("HELPMARQ_HTTP_TIMEOUT_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.HTTPTimeout != 15*time.Second {
		t.Errorf("expected fallback timeout, got %v", cfg.HTTPTimeout)
	}
}
