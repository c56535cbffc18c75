// Package config loads slp-api settings from an optional YAML file with
// environment variable overrides. The database connection string is only
// ever taken from the environment (DATABASE_URL) and is required: the
// process refuses to start without it.
package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// Config holds all settings for the slp-api process.
type Config struct {
	// Addr is the listen address for the HTTP server.
	Addr string `yaml:"addr"`

	// DatabaseURL is the Postgres connection string. Env-only, never
	// read from the file so credentials stay out of config files.
	DatabaseURL string `yaml:"-"`

	Log  LogConfig  `yaml:"log"`
	Pool PoolConfig `yaml:"pool"`
}

// LogConfig mirrors logger.Config for the YAML file.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PoolConfig tunes the pgx connection pool.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns"`
	MinConns int32 `yaml:"min_conns"`
}

// Default returns the settings used when no file and no env overrides exist.
func Default() *Config {
	return &Config{
		Addr: ":8000",
		Log:  LogConfig{Level: "info", Format: "json"},
		Pool: PoolConfig{MaxConns: 10, MinConns: 2},
	}
}

// Load builds the Config: defaults, then the YAML file at path (if path is
// non-empty), then environment overrides. It fails if DATABASE_URL is unset.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
