// Package ha provides primitives for running several docregistry replicas
// against one database, chiefly serializing schema migrations.
package ha

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// HAConfig holds configuration for high-availability features.
type HAConfig struct {
	// MigrationLockEnabled controls whether database migration locking
	// is used to prevent concurrent schema changes.
	MigrationLockEnabled bool

	// LockName identifies the migration lock. Replicas sharing a database
	// must use the same name.
	LockName string

	// LockRetries and LockRetryInterval bound how long the table-based lock
	// waits for another holder.
	LockRetries       int
	LockRetryInterval time.Duration

	// StaleLockAge is how old a table lock row must be before it is
	// treated as abandoned by a crashed replica.
	StaleLockAge time.Duration

	// Identity is recorded as the lock holder. Defaults to the pod name
	// (from POD_NAME env var or hostname).
	Identity string
}

// DefaultHAConfig returns an HAConfig with sensible defaults.
func DefaultHAConfig() *HAConfig {
	return &HAConfig{
		MigrationLockEnabled: true,
		LockName:             "docregistry-migration",
		LockRetries:          30,
		LockRetryInterval:    time.Second,
		StaleLockAge:         5 * time.Minute,
		Identity:             defaultIdentity(),
	}
}

// HAConfigFromEnv reads HA configuration from environment variables,
// falling back to defaults for any unset variable.
//
// Environment variables:
//   - DOCREGISTRY_MIGRATION_LOCK_ENABLED: "true" or "false" (default: "true")
//   - DOCREGISTRY_MIGRATION_LOCK_NAME: lock name (default: "docregistry-migration")
//   - DOCREGISTRY_MIGRATION_LOCK_RETRIES: attempts (default: 30)
//   - DOCREGISTRY_MIGRATION_LOCK_RETRY_INTERVAL: seconds (default: 1)
//   - POD_NAME: lock holder identity
func HAConfigFromEnv() *HAConfig {
	cfg := DefaultHAConfig()

	if v := os.Getenv("DOCREGISTRY_MIGRATION_LOCK_ENABLED"); v != "" {
		cfg.MigrationLockEnabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("DOCREGISTRY_MIGRATION_LOCK_NAME"); v != "" {
		cfg.LockName = v
	}
	if v := os.Getenv("DOCREGISTRY_MIGRATION_LOCK_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LockRetries = n
		}
	}
	if v := os.Getenv("DOCREGISTRY_MIGRATION_LOCK_RETRY_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.LockRetryInterval = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("POD_NAME"); v != "" {
		cfg.Identity = v
	}

	return cfg
}

func defaultIdentity() string {
	if v := os.Getenv("POD_NAME"); v != "" {
		return v
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "unknown"
	}
	return hostname
}
