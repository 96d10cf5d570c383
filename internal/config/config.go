// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-signet.
//
// go-signet is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package config loads the signet configuration: YAML file, SIGNET_*
// environment overrides, then validation. Load("") yields the
// defaults, so a config file is never required.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the complete signet configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	TLS       TLSConfig       `yaml:"tls"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Storage   StorageConfig   `yaml:"storage"`
	Keys      KeysConfig      `yaml:"keys"`
	Signing   SigningConfig   `yaml:"signing"`
	Batch     BatchConfig     `yaml:"batch"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	MultiSig  MultiSigConfig  `yaml:"multisig"`
}

// ServerConfig contains REST server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ShutdownTimeoutSeconds bounds graceful shutdown.
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// TLSConfig controls the server certificate.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// RateLimitConfig controls per-client request throttling.
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	Burst          int  `yaml:"burst"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// StorageConfig selects where key records and trust entries live.
type StorageConfig struct {
	// Backend is "file" or "memory".
	Backend string `yaml:"backend"`

	// Path is the data directory for the file backend.
	Path string `yaml:"path"`
}

// KeysConfig contains key store policy.
type KeysConfig struct {
	// PassphraseMinLength is the minimum accepted passphrase length.
	// Zero selects the key store default.
	PassphraseMinLength int `yaml:"passphrase_min_length"`
}

// SigningConfig contains signer limits.
type SigningConfig struct {
	// MaxPayloadBytes caps a single payload. Zero selects the signer
	// default.
	MaxPayloadBytes int64 `yaml:"max_payload_bytes"`
}

// BatchConfig contains batch engine defaults.
type BatchConfig struct {
	MaxConcurrency     int `yaml:"max_concurrency"`
	DefaultConcurrency int `yaml:"default_concurrency"`
	Retries            int `yaml:"retries"`
	ItemTimeoutSeconds int `yaml:"item_timeout_seconds"`
}

// WatcherConfig contains filesystem watcher defaults.
type WatcherConfig struct {
	QueueSize       int `yaml:"queue_size"`
	MaxConcurrent   int `yaml:"max_concurrent"`
	EventsPerSecond int `yaml:"events_per_second"`
	ActivityLogSize int `yaml:"activity_log_size"`
}

// MultiSigConfig contains signing session defaults.
type MultiSigConfig struct {
	SessionTTLMinutes    int `yaml:"session_ttl_minutes"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

// DefaultConfig returns the configuration used when no file and no
// environment overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                   "localhost",
			Port:                   8420,
			ShutdownTimeoutSeconds: 30,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RequestsPerMin: 600,
			Burst:          60,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Storage: StorageConfig{
			Backend: "file",
			Path:    defaultDataDir(),
		},
		Batch: BatchConfig{
			MaxConcurrency:     32,
			DefaultConcurrency: 4,
			Retries:            2,
			ItemTimeoutSeconds: 60,
		},
		Watcher: WatcherConfig{
			QueueSize:       64,
			MaxConcurrent:   2,
			EventsPerSecond: 0,
			ActivityLogSize: 256,
		},
		MultiSig: MultiSigConfig{
			SessionTTLMinutes:    24 * 60,
			SweepIntervalSeconds: 60,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".signet"
	}
	return filepath.Join(home, ".signet")
}

// Load builds the configuration: defaults, then the YAML file when a
// path is given, then SIGNET_* environment overrides, then
// validation.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		// #nosec G304 - the config path comes from the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies SIGNET_* environment variables on top of
// the loaded configuration.
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("SIGNET_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SIGNET_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil || p < 1 || p > 65535 {
			log.Printf("Warning: invalid SIGNET_PORT value %q, using %d", port, cfg.Server.Port)
		} else {
			cfg.Server.Port = p
		}
	}
	if debug := os.Getenv("SIGNET_DEBUG"); debug != "" {
		parsed, err := strconv.ParseBool(debug)
		if err != nil {
			log.Printf("Warning: invalid SIGNET_DEBUG value %q, keeping %t", debug, cfg.Logging.Debug)
		} else {
			cfg.Logging.Debug = parsed
		}
	}
	if backend := os.Getenv("SIGNET_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if dataDir := os.Getenv("SIGNET_DATA_DIR"); dataDir != "" {
		cfg.Storage.Path = dataDir
	}
}

// Validate checks the configuration for values no component would
// accept.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeoutSeconds < 0 {
		return fmt.Errorf("shutdown timeout cannot be negative")
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("tls cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("tls key_file is required when TLS is enabled")
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMin < 1 {
			return fmt.Errorf("ratelimit requests_per_min must be at least 1")
		}
		if c.RateLimit.Burst < 0 {
			return fmt.Errorf("ratelimit burst cannot be negative")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Path == "" {
		return fmt.Errorf("metrics path is required when metrics are enabled")
	}

	switch c.Storage.Backend {
	case "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the file backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage backend: %s (must be file or memory)", c.Storage.Backend)
	}

	if c.Keys.PassphraseMinLength < 0 {
		return fmt.Errorf("passphrase_min_length cannot be negative")
	}
	if c.Signing.MaxPayloadBytes < 0 {
		return fmt.Errorf("max_payload_bytes cannot be negative")
	}

	if c.Batch.MaxConcurrency < 1 {
		return fmt.Errorf("batch max_concurrency must be at least 1")
	}
	if c.Batch.DefaultConcurrency < 1 || c.Batch.DefaultConcurrency > c.Batch.MaxConcurrency {
		return fmt.Errorf("batch default_concurrency must be between 1 and max_concurrency (%d)",
			c.Batch.MaxConcurrency)
	}
	if c.Batch.Retries < 0 {
		return fmt.Errorf("batch retries cannot be negative")
	}
	if c.Batch.ItemTimeoutSeconds < 0 {
		return fmt.Errorf("batch item_timeout_seconds cannot be negative")
	}

	if c.Watcher.QueueSize < 1 {
		return fmt.Errorf("watcher queue_size must be at least 1")
	}
	if c.Watcher.MaxConcurrent < 1 {
		return fmt.Errorf("watcher max_concurrent must be at least 1")
	}
	if c.Watcher.EventsPerSecond < 0 {
		return fmt.Errorf("watcher events_per_second cannot be negative")
	}
	if c.Watcher.ActivityLogSize < 1 {
		return fmt.Errorf("watcher activity_log_size must be at least 1")
	}

	if c.MultiSig.SessionTTLMinutes < 0 {
		return fmt.Errorf("multisig session_ttl_minutes cannot be negative")
	}
	if c.MultiSig.SweepIntervalSeconds < 0 {
		return fmt.Errorf("multisig sweep_interval_seconds cannot be negative")
	}

	return nil
}
