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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8420, cfg.Server.Port)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.NotEmpty(t, cfg.Storage.Path)
	assert.False(t, cfg.Logging.Debug)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Port, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfigFile(t, "server: [not a mapping\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
server:
  host: 0.0.0.0
  port: 9001
logging:
  debug: true
storage:
  backend: memory
batch:
  max_concurrency: 8
  default_concurrency: 2
multisig:
  session_ttl_minutes: 30
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.True(t, cfg.Logging.Debug)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 8, cfg.Batch.MaxConcurrency)
	assert.Equal(t, 2, cfg.Batch.DefaultConcurrency)
	assert.Equal(t, 30, cfg.MultiSig.SessionTTLMinutes)

	// Untouched sections keep their defaults.
	assert.Equal(t, DefaultConfig().Watcher.QueueSize, cfg.Watcher.QueueSize)
	assert.Equal(t, DefaultConfig().RateLimit.RequestsPerMin, cfg.RateLimit.RequestsPerMin)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SIGNET_HOST", "10.0.0.5")
	t.Setenv("SIGNET_PORT", "9400")
	t.Setenv("SIGNET_DEBUG", "true")
	t.Setenv("SIGNET_STORAGE_BACKEND", "memory")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.Server.Host)
	assert.Equal(t, 9400, cfg.Server.Port)
	assert.True(t, cfg.Logging.Debug)
	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := writeConfigFile(t, "server:\n  port: 9001\n")
	t.Setenv("SIGNET_PORT", "9002")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9002, cfg.Server.Port)
}

func TestInvalidEnvValuesKeepDefaults(t *testing.T) {
	t.Setenv("SIGNET_PORT", "not-a-port")
	t.Setenv("SIGNET_DEBUG", "sometimes")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Port, cfg.Server.Port)
	assert.False(t, cfg.Logging.Debug)
}

func TestEnvPortRangeChecked(t *testing.T) {
	t.Setenv("SIGNET_PORT", "70000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Port, cfg.Server.Port)
}

func TestDataDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SIGNET_DATA_DIR", dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Storage.Path)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "port too low",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid server port",
		},
		{
			name:    "negative shutdown timeout",
			mutate:  func(c *Config) { c.Server.ShutdownTimeoutSeconds = -1 },
			wantErr: "shutdown timeout",
		},
		{
			name:    "tls without cert",
			mutate:  func(c *Config) { c.TLS.Enabled = true; c.TLS.KeyFile = "key.pem" },
			wantErr: "cert_file is required",
		},
		{
			name:    "tls without key",
			mutate:  func(c *Config) { c.TLS.Enabled = true; c.TLS.CertFile = "cert.pem" },
			wantErr: "key_file is required",
		},
		{
			name:    "ratelimit zero rate",
			mutate:  func(c *Config) { c.RateLimit.RequestsPerMin = 0 },
			wantErr: "requests_per_min",
		},
		{
			name:    "metrics without path",
			mutate:  func(c *Config) { c.Metrics.Path = "" },
			wantErr: "metrics path",
		},
		{
			name:    "unknown storage backend",
			mutate:  func(c *Config) { c.Storage.Backend = "s3" },
			wantErr: "unknown storage backend",
		},
		{
			name:    "file backend without path",
			mutate:  func(c *Config) { c.Storage.Path = "" },
			wantErr: "storage path is required",
		},
		{
			name:    "negative passphrase length",
			mutate:  func(c *Config) { c.Keys.PassphraseMinLength = -1 },
			wantErr: "passphrase_min_length",
		},
		{
			name:    "negative payload cap",
			mutate:  func(c *Config) { c.Signing.MaxPayloadBytes = -1 },
			wantErr: "max_payload_bytes",
		},
		{
			name:    "batch zero max concurrency",
			mutate:  func(c *Config) { c.Batch.MaxConcurrency = 0 },
			wantErr: "max_concurrency",
		},
		{
			name:    "batch default above max",
			mutate:  func(c *Config) { c.Batch.DefaultConcurrency = 64 },
			wantErr: "default_concurrency",
		},
		{
			name:    "batch negative retries",
			mutate:  func(c *Config) { c.Batch.Retries = -1 },
			wantErr: "retries",
		},
		{
			name:    "watcher zero queue",
			mutate:  func(c *Config) { c.Watcher.QueueSize = 0 },
			wantErr: "queue_size",
		},
		{
			name:    "watcher zero workers",
			mutate:  func(c *Config) { c.Watcher.MaxConcurrent = 0 },
			wantErr: "max_concurrent",
		},
		{
			name:    "watcher negative rate",
			mutate:  func(c *Config) { c.Watcher.EventsPerSecond = -1 },
			wantErr: "events_per_second",
		},
		{
			name:    "multisig negative ttl",
			mutate:  func(c *Config) { c.MultiSig.SessionTTLMinutes = -1 },
			wantErr: "session_ttl_minutes",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestMemoryBackendNeedsNoPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Backend = "memory"
	cfg.Storage.Path = ""
	assert.NoError(t, cfg.Validate())
}
