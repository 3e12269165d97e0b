// Package config loads engine-wide tunables from the environment, mirroring
// the teacher's internal/infrastructure/config.Config: a flat struct
// populated by Load() via getEnv-style fallbacks, no config file parser.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the engine's process-wide tunables.
type Config struct {
	// LogLevel is a zerolog level name ("debug", "info", "warn", "error").
	LogLevel string

	// DatabaseDSN is the Postgres DSN for internal/storage/pgstore. Empty
	// means the host should fall back to memstore.
	DatabaseDSN string

	// MaxParallelExecutions is a bound on concurrently driven executions.
	// This module has no worker pool and nothing in it reads this field.
	MaxParallelExecutions int

	// DefaultForEachConcurrency is a default concurrency bound for ForEach
	// nodes. The engine does not read it: its own fallback is
	// engine.Policies.ForEachConcurrency, then the node's bound, then 1.
	DefaultForEachConcurrency int

	// DefaultLeaseTTL is how long a scheduler's lease on an execution lasts
	// before it must be renewed.
	DefaultLeaseTTL time.Duration
}

// Load reads Config from the environment, falling back to sensible
// defaults for anything unset — exactly the teacher's config.Load() shape.
func Load() Config {
	return Config{
		LogLevel:                  getEnv("DURABLEFLOW_LOG_LEVEL", "info"),
		DatabaseDSN:               getEnv("DURABLEFLOW_DATABASE_DSN", ""),
		MaxParallelExecutions:     getEnvInt("DURABLEFLOW_MAX_PARALLEL_EXECUTIONS", 16),
		DefaultForEachConcurrency: getEnvInt("DURABLEFLOW_DEFAULT_FOREACH_CONCURRENCY", 1),
		DefaultLeaseTTL:           getEnvDuration("DURABLEFLOW_DEFAULT_LEASE_TTL", 30*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
