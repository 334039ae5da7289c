// Package config loads the runner's tunable options from the
// environment: retry policy, per-call timeout, pool sizing, and the
// fail-fast switch.
package config

import (
	"os"
	"strconv"
)

// Config holds the runtime-tunable options recognized by the core.
type Config struct {
	MaxRetries         int
	RetryBackoffMS     int
	CallTimeoutS       int
	PoolSizePerBackend int
	FailFast           bool
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		MaxRetries:         3,
		RetryBackoffMS:     100,
		CallTimeoutS:       600,
		PoolSizePerBackend: 1,
		FailFast:           true,
	}
}

// Load starts from Default() and overrides any field whose environment
// variable is set and parses cleanly; a malformed value is ignored and
// the default is kept, rather than failing startup over a typo.
func Load() *Config {
	c := Default()

	if v := os.Getenv("PLANRUNNER_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv("PLANRUNNER_RETRY_BACKOFF_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RetryBackoffMS = n
		}
	}
	if v := os.Getenv("PLANRUNNER_CALL_TIMEOUT_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CallTimeoutS = n
		}
	}
	if v := os.Getenv("PLANRUNNER_POOL_SIZE_PER_BACKEND"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.PoolSizePerBackend = n
		}
	}
	if v := os.Getenv("PLANRUNNER_FAIL_FAST"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.FailFast = b
		}
	}

	return c
}
