package jobs

import (
	"os"
	"strconv"
	"time"
)

// JobConfig controls job queue and worker behavior.
type JobConfig struct {
	Concurrency   int           // Max concurrent workers. Default 2.
	MaxRetries    int           // Max attempts per job. Default 3.
	PollInterval  time.Duration // How often workers poll for new jobs. Default 5s.
	ClaimTimeout  time.Duration // Max time a job can be running before it is considered stuck. Default 10m.
	RetentionDays int           // How long to keep finished jobs. Default 7.
	SampleSize    int           // Violation lines kept per job. Default 10.
	Enabled       bool          // Whether workers run. Default true.
}

// DefaultJobConfig returns the default job configuration.
func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		Concurrency:   2,
		MaxRetries:    3,
		PollInterval:  5 * time.Second,
		ClaimTimeout:  10 * time.Minute,
		RetentionDays: 7,
		SampleSize:    10,
		Enabled:       true,
	}
}

// JobConfigFromEnv loads config from environment variables.
// DOCREGISTRY_JOB_CONCURRENCY, DOCREGISTRY_JOB_MAX_RETRIES, DOCREGISTRY_JOB_POLL_INTERVAL_SECONDS,
// DOCREGISTRY_JOB_CLAIM_TIMEOUT_MINUTES, DOCREGISTRY_JOB_RETENTION_DAYS, DOCREGISTRY_JOB_SAMPLE_SIZE,
// DOCREGISTRY_JOB_ENABLED
func JobConfigFromEnv() *JobConfig {
	cfg := DefaultJobConfig()

	if n, ok := envInt("DOCREGISTRY_JOB_CONCURRENCY", 1); ok {
		cfg.Concurrency = n
	}
	if n, ok := envInt("DOCREGISTRY_JOB_MAX_RETRIES", 0); ok {
		cfg.MaxRetries = n
	}
	if n, ok := envInt("DOCREGISTRY_JOB_POLL_INTERVAL_SECONDS", 1); ok {
		cfg.PollInterval = time.Duration(n) * time.Second
	}
	if n, ok := envInt("DOCREGISTRY_JOB_CLAIM_TIMEOUT_MINUTES", 1); ok {
		cfg.ClaimTimeout = time.Duration(n) * time.Minute
	}
	if n, ok := envInt("DOCREGISTRY_JOB_RETENTION_DAYS", 1); ok {
		cfg.RetentionDays = n
	}
	if n, ok := envInt("DOCREGISTRY_JOB_SAMPLE_SIZE", 0); ok {
		cfg.SampleSize = n
	}
	if v := os.Getenv("DOCREGISTRY_JOB_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}

	return cfg
}

// envInt reads an integer of at least minimum from key.
func envInt(key string, minimum int) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < minimum {
		return 0, false
	}
	return n, true
}
