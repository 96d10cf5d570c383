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

package cli

import (
	"fmt"

	"github.com/jeremyhahn/go-signet/internal/config"
	"github.com/jeremyhahn/go-signet/pkg/audit"
	"github.com/jeremyhahn/go-signet/pkg/keystore"
	"github.com/jeremyhahn/go-signet/pkg/logging"
	"github.com/jeremyhahn/go-signet/pkg/signing"
	"github.com/jeremyhahn/go-signet/pkg/storage"
	"github.com/jeremyhahn/go-signet/pkg/storage/file"
	"github.com/jeremyhahn/go-signet/pkg/storage/memory"
	"github.com/jeremyhahn/go-signet/pkg/trust"
	"github.com/jeremyhahn/go-signet/pkg/verification"
)

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the configuration file
	ConfigFile string

	// OutputFormat controls output formatting (json, text, table)
	OutputFormat string

	// Debug enables debug logging
	Debug bool

	// PassphraseEnv names an environment variable holding the key
	// passphrase. When set, commands read it instead of prompting.
	PassphraseEnv string
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: "text",
	}
}

// Load resolves the effective configuration for this invocation:
// defaults, then the config file when one is given, then SIGNET_*
// environment overrides, with --debug forcing debug logging.
func (c *Config) Load() (*config.Config, error) {
	cfg, err := config.Load(c.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if c.Debug {
		cfg.Logging.Debug = true
	}
	return cfg, nil
}

// Runtime bundles the engines a command operates on, composed from the
// effective configuration for the duration of one invocation.
type Runtime struct {
	Config   *config.Config
	Logger   *logging.Logger
	Audit    audit.Emitter
	Backend  storage.Backend
	KeyStore *keystore.KeyStore
	Trust    *trust.Registry
	Signer   *signing.Signer
	Verifier *verification.Verifier
}

// openRuntime builds the engine stack: storage backend, key store,
// trust registry, signer, and verifier. Callers must Close it.
func openRuntime(c *Config) (*Runtime, error) {
	cfg, err := c.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.Logging.Debug)

	backend, err := openBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage backend: %w", err)
	}

	emitter := audit.NewLogEmitter(logger)

	store, err := keystore.New(&keystore.Config{
		Backend: backend,
		Logger:  logger,
		Audit:   emitter,
		Policy:  keystore.PassphrasePolicy{MinLength: cfg.Keys.PassphraseMinLength},
	})
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to open key store: %w", err)
	}

	registry, err := trust.New(&trust.Config{
		Backend: backend,
		Logger:  logger,
		Audit:   emitter,
	})
	if err != nil {
		_ = store.Close()
		_ = backend.Close()
		return nil, fmt.Errorf("failed to open trust registry: %w", err)
	}

	signer, err := signing.New(&signing.Config{
		KeyStore:        store,
		Logger:          logger,
		MaxPayloadBytes: cfg.Signing.MaxPayloadBytes,
	})
	if err != nil {
		_ = registry.Close()
		_ = store.Close()
		_ = backend.Close()
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	verifier := verification.New(&verification.Config{
		KeyStore: store,
		Trust:    registry,
		Logger:   logger,
		Audit:    emitter,
	})

	return &Runtime{
		Config:   cfg,
		Logger:   logger,
		Audit:    emitter,
		Backend:  backend,
		KeyStore: store,
		Trust:    registry,
		Signer:   signer,
		Verifier: verifier,
	}, nil
}

// openBackend creates the storage backend named by the configuration.
func openBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "", "file":
		return file.New(cfg.Storage.Path)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

// Close releases the engines in dependency order.
func (r *Runtime) Close() {
	if r.Trust != nil {
		_ = r.Trust.Close()
	}
	if r.KeyStore != nil {
		_ = r.KeyStore.Close()
	}
	if r.Backend != nil {
		_ = r.Backend.Close()
	}
}
