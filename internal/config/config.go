package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	APIBaseURL      string
	HTTPTimeout     time.Duration
	RoleTimeout     time.Duration
	StateFile       string
	StatePassphrase string
	CacheTTL        time.Duration
	CacheMaxEntries int
	// Redis - optional shared durable store for headless deployments
	RedisURL string
}

func Load() Config {
	return Config{
		APIBaseURL:      getenv("HELPMARQ_API_URL", "https://api.helpmarq.app"),
		HTTPTimeout:     time.Duration(getenvInt("HELPMARQ_HTTP_TIMEOUT_SECONDS", 15)) * time.Second,
		RoleTimeout:     time.Duration(getenvInt("HELPMARQ_ROLE_TIMEOUT_SECONDS", 4)) * time.Second,
		StateFile:       getenv("HELPMARQ_STATE_FILE", defaultStateFile()),
		StatePassphrase: getenv("HELPMARQ_STATE_PASSPHRASE", ""),
		CacheTTL:        time.Duration(getenvInt("HELPMARQ_CACHE_TTL_SECONDS", 300)) * time.Second,
		CacheMaxEntries: getenvInt("HELPMARQ_CACHE_MAX_ENTRIES", 256),
		// Redis - empty by default, the state file is used if not configured
		RedisURL: getenv("HELPMARQ_REDIS_URL", ""),
	}
}

func defaultStateFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".helpmarq", "state.json")
	}
	return filepath.Join(home, ".helpmarq", "state.json")
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
