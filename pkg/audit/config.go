package audit

import (
	"errors"
	"time"
)

// Config is the "audit" section of the server configuration.
type Config struct {
	Enabled bool `mapstructure:"enabled"`
	// LogDenied also records requests refused with 401 or 403.
	LogDenied bool `mapstructure:"log_denied"`
	// Retention is how long events are kept. Zero keeps them forever.
	Retention     time.Duration `mapstructure:"retention"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

// DefaultConfig keeps 90 days of events, denied requests included.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		LogDenied:     true,
		Retention:     90 * 24 * time.Hour,
		PruneInterval: 24 * time.Hour,
	}
}

// Validate rejects negative durations and a retention without a prune interval.
func (c Config) Validate() error {
	switch {
	case c.Retention < 0:
		return errors.New("audit.retention must not be negative")
	case c.PruneInterval < 0:
		return errors.New("audit.prune_interval must not be negative")
	case c.Retention > 0 && c.PruneInterval == 0:
		return errors.New("audit.prune_interval is required when audit.retention is set")
	}
	return nil
}
