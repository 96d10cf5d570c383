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

// Package rest provides the signet REST API server.
//
// The REST API exposes the signing engine over HTTP: key lifecycle,
// trust registration, envelope signing and verification, multi-party
// signing sessions, and filesystem watcher control.
//
// # Server Setup
//
// Create a REST server by wiring the engine components into a Config:
//
//	import (
//	    "github.com/jeremyhahn/go-signet/internal/rest"
//	    "github.com/jeremyhahn/go-signet/pkg/keystore"
//	    "github.com/jeremyhahn/go-signet/pkg/signing"
//	    "github.com/jeremyhahn/go-signet/pkg/storage/file"
//	    "github.com/jeremyhahn/go-signet/pkg/trust"
//	    "github.com/jeremyhahn/go-signet/pkg/verification"
//	)
//
//	backend, _ := file.New("/var/lib/signet")
//	store, _ := keystore.New(&keystore.Config{Backend: backend})
//	registry, _ := trust.New(&trust.Config{Backend: backend})
//	signer, _ := signing.New(&signing.Config{KeyStore: store})
//	verifier := verification.New(&verification.Config{KeyStore: store, Trust: registry})
//
//	server, _ := rest.NewServer(&rest.Config{
//	    Port:     8420,
//	    KeyStore: store,
//	    Trust:    registry,
//	    Signer:   signer,
//	    Verifier: verifier,
//	    Version:  "1.0.0",
//	})
//
//	go server.Start()
//
//	// Graceful shutdown
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//	server.Stop(ctx)
//
// # API Endpoints
//
// Health and metrics:
//   - GET /health - Basic health status
//   - GET /health/live - Kubernetes liveness probe
//   - GET /health/ready - Kubernetes readiness probe
//   - GET /health/startup - Kubernetes startup probe
//   - GET /metrics - Prometheus metrics (when enabled)
//
// Key management:
//   - POST /api/v1/keys - Generate a new key
//   - GET /api/v1/keys - List keys
//   - GET /api/v1/keys/{name} - Get key details
//   - DELETE /api/v1/keys/{name} - Delete a key
//   - POST /api/v1/keys/{name}/rotate - Rotate a key
//   - POST /api/v1/keys/{name}/revoke - Revoke a key
//   - GET /api/v1/keys/{name}/export - Export the public key PEM
//
// Trust registry:
//   - POST /api/v1/trust - Trust a fingerprint
//   - GET /api/v1/trust - List trust entries
//   - GET /api/v1/trust/{fingerprint} - Get a trust entry
//   - GET /api/v1/trust/{fingerprint}/evaluate - Evaluate trust state
//   - POST /api/v1/trust/{fingerprint}/revoke - Revoke trust
//   - POST /api/v1/trust/{fingerprint}/reinstate - Reinstate trust
//
// Signing and verification:
//   - POST /api/v1/sign - Sign a payload, returns an envelope
//   - POST /api/v1/verify - Verify an envelope against a payload
//
// Multi-party signing sessions:
//   - POST /api/v1/multisig/sessions - Create a session
//   - GET /api/v1/multisig/sessions - List sessions
//   - GET /api/v1/multisig/sessions/{id} - Get a session
//   - POST /api/v1/multisig/sessions/{id}/signatures - Submit a signature
//   - POST /api/v1/multisig/sessions/{id}/verify - Verify collected signatures
//   - POST /api/v1/multisig/sessions/{id}/complete - Force completion
//   - POST /api/v1/multisig/sessions/{id}/cancel - Cancel the session
//   - POST /api/v1/multisig/sessions/{id}/reset - Discard collected signatures
//
// Filesystem watchers:
//   - POST /api/v1/watchers - Start a watcher
//   - GET /api/v1/watchers - List watchers
//   - GET /api/v1/watchers/{id} - Get watcher details
//   - GET /api/v1/watchers/{id}/activity - Recent watcher activity
//   - DELETE /api/v1/watchers/{id} - Stop and remove a watcher
//
// # Request/Response Format
//
// All requests and responses use JSON with Content-Type: application/json.
// Binary payloads (data, signatures) are base64 in the JSON encoding.
//
// Example signing request:
//
//	POST /api/v1/sign
//	{
//	  "key_name": "release",
//	  "passphrase": "correct horse battery staple",
//	  "data": "aGVsbG8gd29ybGQ=",
//	  "detached": true,
//	  "ttl_seconds": 3600
//	}
//
// # Error Handling
//
// Errors map to HTTP status codes by failure class:
//   - 400 Bad Request - Validation failures, malformed requests
//   - 403 Forbidden - Authorization failures, wrong passphrases
//   - 404 Not Found - Unknown keys, sessions, watchers, fingerprints
//   - 409 Conflict - Duplicate names, terminal sessions, state conflicts
//   - 422 Unprocessable Entity - Integrity failures, corrupt envelopes
//   - 429 Too Many Requests - Rate limit exceeded
//   - 500 Internal Server Error - Everything else
//
// Error responses include a JSON body with details:
//
//	{
//	  "error": "key \"release\" not found",
//	  "code": 404
//	}
//
// # Middleware
//
// The server includes the following middleware:
//   - Recovery - Recovers from panics and returns 500 errors
//   - Correlation - Propagates X-Correlation-ID for request tracing
//   - Logging - Logs all HTTP requests with timing
//   - Metrics - Records request counts and latencies
//   - Rate limiting - Token bucket per client IP
//   - CORS - Adds CORS headers for cross-origin requests
//
// # Security Considerations
//
// The API transports passphrases in request bodies, so production
// deployments must terminate TLS (either via Config.TLSCertFile and
// Config.TLSKeyFile or behind a reverse proxy) and restrict network
// access to trusted clients.
package rest
