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
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeremyhahn/go-signet/internal/rest"
	"github.com/jeremyhahn/go-signet/pkg/health"
	"github.com/jeremyhahn/go-signet/pkg/multisig"
	"github.com/jeremyhahn/go-signet/pkg/ratelimit"
	"github.com/spf13/cobra"
)

// serveCmd runs the REST API server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signet REST API server",
	Long: `Run the REST API server: key and trust management, signing and
verification, filesystem watchers, and multi-party signing sessions,
with health probes and Prometheus metrics. The server shuts down
gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")

		rt, err := openRuntime(getConfig())
		if err != nil {
			handleError(err)
			return
		}
		defer rt.Close()
		cfg := rt.Config
		logger := rt.Logger

		if host != "" {
			cfg.Server.Host = host
		}
		if port != 0 {
			cfg.Server.Port = port
		}

		watchers, err := newWatcherRegistry(rt)
		if err != nil {
			handleError(err)
			return
		}

		coordinator := multisig.New(&multisig.Config{
			Verifier:      rt.Verifier,
			Logger:        logger,
			Audit:         rt.Audit,
			SessionTTL:    time.Duration(cfg.MultiSig.SessionTTLMinutes) * time.Minute,
			SweepInterval: time.Duration(cfg.MultiSig.SweepIntervalSeconds) * time.Second,
		})

		checker := health.NewChecker()
		checker.RegisterCheck("storage", health.BackendCheck(cfg.Storage.Backend, rt.Backend))
		checker.RegisterCheck("keystore", health.KeyStoreCheck(rt.KeyStore))
		checker.RegisterCheck("watchers", health.WatcherCheck(watchers))

		serverCfg := &rest.Config{
			Host:          cfg.Server.Host,
			Port:          cfg.Server.Port,
			Version:       Version,
			KeyStore:      rt.KeyStore,
			Trust:         rt.Trust,
			Signer:        rt.Signer,
			Verifier:      rt.Verifier,
			Watchers:      watchers,
			MultiSig:      coordinator,
			HealthChecker: checker,
			Logger:        logger,
		}
		if cfg.TLS.Enabled {
			serverCfg.TLSCertFile = cfg.TLS.CertFile
			serverCfg.TLSKeyFile = cfg.TLS.KeyFile
		}
		if cfg.RateLimit.Enabled {
			serverCfg.RateLimit = &ratelimit.Config{
				Enabled:           true,
				RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
				Burst:             cfg.RateLimit.Burst,
			}
		}
		if cfg.Metrics.Enabled {
			serverCfg.MetricsPath = cfg.Metrics.Path
		}

		server, err := rest.NewServer(serverCfg)
		if err != nil {
			handleError(err)
			return
		}

		shutdownCtx := setupSignalHandler()

		errChan := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil {
				errChan <- err
			}
		}()
		checker.MarkStarted()

		logger.Info("signet server started",
			"host", cfg.Server.Host,
			"port", cfg.Server.Port,
			"storage", cfg.Storage.Backend,
			"version", Version)

		select {
		case <-shutdownCtx.Done():
			logger.Info("shutdown signal received")
		case err := <-errChan:
			logger.Error(err)
		}

		timeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
		stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		watchers.StopAll(stopCtx)
		if err := coordinator.Close(); err != nil {
			logger.Error(err)
		}
		if err := server.Stop(stopCtx); err != nil {
			logger.Error(err)
			os.Exit(1)
		}
	},
}

// setupSignalHandler cancels the returned context on SIGINT or
// SIGTERM.
func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		cancel()
	}()

	return ctx
}

func init() {
	serveCmd.Flags().String("host", "", "listen address (overrides the configured host)")
	serveCmd.Flags().Int("port", 0, "listen port (overrides the configured port)")
}
