package cache

import (
	"os"
	"strconv"
	"time"
)

// Config sizes the document type cache.
type Config struct {
	// MaxSize is the maximum number of cached document types.
	MaxSize int

	// TTL bounds how long a type stays cached. Zero keeps entries until they
	// are invalidated or evicted.
	TTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxSize: 1000,
		TTL:     0,
	}
}

// ConfigFromEnv reads cache configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - DOCREGISTRY_TYPE_CACHE_MAX_SIZE: max cached types (default: 1000)
//   - DOCREGISTRY_TYPE_CACHE_TTL: seconds, 0 disables expiry (default: 0)
func ConfigFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("DOCREGISTRY_TYPE_CACHE_MAX_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSize = n
		}
	}
	if v := os.Getenv("DOCREGISTRY_TYPE_CACHE_TTL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			cfg.TTL = time.Duration(secs) * time.Second
		}
	}

	return cfg
}
