// Package config loads process configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config holds the data-layer configuration for a process.
type Config struct {
	// Backend selects the storage backend: "sqlite" or "memory".
	Backend string `env:"DAL_BACKEND" envDefault:"sqlite"`

	// SQLitePath is the path to the relational store file.
	SQLitePath string `env:"DAL_SQLITE_PATH" envDefault:"data/dal.db"`

	// BlobPath is the path to the blob store file.
	BlobPath string `env:"DAL_BLOB_PATH" envDefault:"data/blobs.db"`

	// SessionTTL is the lifetime of newly created sessions.
	SessionTTL time.Duration `env:"DAL_SESSION_TTL" envDefault:"720h"`

	// TransferTTL is the lifetime of pending power transfer requests.
	TransferTTL time.Duration `env:"DAL_TRANSFER_TTL" envDefault:"24h"`

	// LockoutMaxAttempts is the failed-login count that triggers a lockout.
	LockoutMaxAttempts int `env:"DAL_LOCKOUT_MAX_ATTEMPTS" envDefault:"5"`

	// LockoutWindow is the rolling window failed attempts are counted in.
	LockoutWindow time.Duration `env:"DAL_LOCKOUT_WINDOW" envDefault:"15m"`

	// LockoutDuration is how long a locked username stays locked.
	LockoutDuration time.Duration `env:"DAL_LOCKOUT_DURATION" envDefault:"15m"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the data-layer configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Backend != BackendMemory && cfg.Backend != BackendSQLite {
		return Config{}, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	return cfg, nil
}
