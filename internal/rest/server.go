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

package rest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jeremyhahn/go-signet/pkg/keystore"
	"github.com/jeremyhahn/go-signet/pkg/logging"
	"github.com/jeremyhahn/go-signet/pkg/multisig"
	"github.com/jeremyhahn/go-signet/pkg/ratelimit"
	"github.com/jeremyhahn/go-signet/pkg/signing"
	"github.com/jeremyhahn/go-signet/pkg/trust"
	"github.com/jeremyhahn/go-signet/pkg/verification"
	"github.com/jeremyhahn/go-signet/pkg/watcher"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the REST API server.
type Server struct {
	server   *http.Server
	handlers *HandlerContext
	limiter  *ratelimit.Limiter
	logger   *logging.Logger

	port        int
	tlsCertFile string
	tlsKeyFile  string
	metricsPath string
}

// Config holds the REST server configuration.
type Config struct {
	// Host is the listen address (default: all interfaces).
	Host string

	// Port is the HTTP port to listen on (default: 8420).
	Port int

	// Version is the API version string.
	Version string

	// KeyStore is required; every other component is optional and its
	// routes are mounted only when present.
	KeyStore *keystore.KeyStore
	Trust    *trust.Registry
	Signer   *signing.Signer
	Verifier *verification.Verifier
	Watchers *watcher.Registry
	MultiSig *multisig.Coordinator

	// HealthChecker backs the Kubernetes probes (optional).
	HealthChecker HealthChecker

	// Logger defaults to the process logger.
	Logger *logging.Logger

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string

	// RateLimit throttles clients by IP when non-nil and enabled.
	RateLimit *ratelimit.Config

	// MetricsPath mounts the Prometheus handler when non-empty.
	MetricsPath string

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.KeyStore == nil {
		return nil, fmt.Errorf("key store is required")
	}

	// Set defaults
	if cfg.Port == 0 {
		cfg.Port = 8420
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	logger = logger.With("component", "rest")

	handlers := &HandlerContext{
		Version:       cfg.Version,
		KeyStore:      cfg.KeyStore,
		Trust:         cfg.Trust,
		Signer:        cfg.Signer,
		Verifier:      cfg.Verifier,
		Watchers:      cfg.Watchers,
		MultiSig:      cfg.MultiSig,
		HealthChecker: cfg.HealthChecker,
	}

	server := &Server{
		handlers:    handlers,
		limiter:     ratelimit.New(cfg.RateLimit),
		logger:      logger,
		port:        cfg.Port,
		tlsCertFile: cfg.TLSCertFile,
		tlsKeyFile:  cfg.TLSKeyFile,
		metricsPath: cfg.MetricsPath,
	}

	router := server.setupRouter()

	server.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(s.RecoveryMiddleware())
	r.Use(CorrelationMiddleware) // Add correlation ID before logging
	r.Use(s.LoggingMiddleware())
	r.Use(MetricsMiddleware)
	r.Use(ratelimit.Middleware(s.limiter))
	r.Use(CORSMiddleware)

	// Basic health endpoint
	r.Get("/health", s.handlers.HealthHandler)
	r.Head("/health", s.handlers.HealthHandler)

	// Kubernetes-style health probes
	r.Get("/health/live", s.handlers.LivenessHandler)
	r.Get("/health/ready", s.handlers.ReadinessHandler)
	r.Get("/health/startup", s.handlers.StartupHandler)

	if s.metricsPath != "" {
		r.Method(http.MethodGet, s.metricsPath, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Key endpoints
		r.Post("/keys", s.handlers.GenerateKeyHandler)
		r.Get("/keys", s.handlers.ListKeysHandler)
		r.Get("/keys/{name}", s.handlers.GetKeyHandler)
		r.Delete("/keys/{name}", s.handlers.DeleteKeyHandler)
		r.Post("/keys/{name}/rotate", s.handlers.RotateKeyHandler)
		r.Post("/keys/{name}/revoke", s.handlers.RevokeKeyHandler)
		r.Get("/keys/{name}/export", s.handlers.ExportKeyHandler)

		// Trust endpoints
		if s.handlers.Trust != nil {
			r.Post("/trust", s.handlers.TrustHandler)
			r.Get("/trust", s.handlers.ListTrustHandler)
			r.Get("/trust/{fingerprint}", s.handlers.GetTrustHandler)
			r.Get("/trust/{fingerprint}/evaluate", s.handlers.EvaluateTrustHandler)
			r.Post("/trust/{fingerprint}/revoke", s.handlers.RevokeTrustHandler)
			r.Post("/trust/{fingerprint}/reinstate", s.handlers.ReinstateTrustHandler)
		}

		// Crypto operation endpoints
		if s.handlers.Signer != nil {
			r.Post("/sign", s.handlers.SignHandler)
		}
		if s.handlers.Verifier != nil {
			r.Post("/verify", s.handlers.VerifyHandler)
		}

		// Multi-party session endpoints
		if s.handlers.MultiSig != nil {
			r.Post("/multisig/sessions", s.handlers.CreateSessionHandler)
			r.Get("/multisig/sessions", s.handlers.ListSessionsHandler)
			r.Get("/multisig/sessions/{id}", s.handlers.GetSessionHandler)
			r.Post("/multisig/sessions/{id}/signatures", s.handlers.CollectSignatureHandler)
			r.Post("/multisig/sessions/{id}/verify", s.handlers.VerifySessionHandler)
			r.Post("/multisig/sessions/{id}/complete", s.handlers.CompleteSessionHandler)
			r.Post("/multisig/sessions/{id}/cancel", s.handlers.CancelSessionHandler)
			r.Post("/multisig/sessions/{id}/reset", s.handlers.ResetSessionHandler)
		}

		// Watcher endpoints
		if s.handlers.Watchers != nil {
			r.Post("/watchers", s.handlers.StartWatcherHandler)
			r.Get("/watchers", s.handlers.ListWatchersHandler)
			r.Get("/watchers/{id}", s.handlers.GetWatcherHandler)
			r.Get("/watchers/{id}/activity", s.handlers.WatcherActivityHandler)
			r.Delete("/watchers/{id}", s.handlers.StopWatcherHandler)
		}
	})

	return r
}

// Start starts the REST API server. It blocks until the server stops.
func (s *Server) Start() error {
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		s.logger.Info("starting HTTPS server", "addr", s.server.Addr)

		if err := s.server.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
		return nil
	}

	s.logger.Info("starting HTTP server", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down server")
	s.limiter.Stop()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error(fmt.Errorf("failed to shutdown server: %w", err))
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Handler returns the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// SetHealthChecker sets the health checker for the server.
func (s *Server) SetHealthChecker(checker HealthChecker) {
	s.handlers.SetHealthChecker(checker)
}
