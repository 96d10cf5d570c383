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
	"fmt"
	"net"
	"time"

	"github.com/jeremyhahn/go-signet/pkg/client"
	"github.com/spf13/cobra"
)

const dialTimeout = 30 * time.Second

// addRemoteFlags registers the flags shared by commands that talk to a
// running `signet serve` instance.
func addRemoteFlags(cmd *cobra.Command) {
	cmd.Flags().String("server", "", "server address (defaults to the configured host:port)")
	cmd.Flags().String("tls-ca", "", "CA certificate for verifying the server")
	cmd.Flags().Bool("tls-skip-verify", false, "skip TLS certificate verification")
}

// dialServer connects to the server named by --server, falling back to
// the configured listen address. The caller must Close the client.
func dialServer(cmd *cobra.Command, c *Config) (*client.Client, error) {
	addr, _ := cmd.Flags().GetString("server")
	caFile, _ := cmd.Flags().GetString("tls-ca")
	skipVerify, _ := cmd.Flags().GetBool("tls-skip-verify")

	cfg, err := c.Load()
	if err != nil {
		return nil, err
	}

	tlsEnabled := cfg.TLS.Enabled
	if addr == "" {
		host := cfg.Server.Host
		if host == "" {
			host = "localhost"
		}
		addr = net.JoinHostPort(host, fmt.Sprintf("%d", cfg.Server.Port))
	}

	cl, err := client.New(&client.Config{
		Address:               addr,
		Timeout:               dialTimeout,
		TLSEnabled:            tlsEnabled,
		TLSCAFile:             caFile,
		TLSInsecureSkipVerify: skipVerify,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := cl.Connect(ctx); err != nil {
		return nil, fmt.Errorf("cannot reach signet server at %s: %w", addr, err)
	}
	return cl, nil
}
