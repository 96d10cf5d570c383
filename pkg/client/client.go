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

// Package client provides a client library for the signet REST API.
// It is used by the CLI to drive a running `signet serve` instance and
// is usable as a standalone library.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jeremyhahn/go-signet/pkg/multisig"
	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/jeremyhahn/go-signet/pkg/watcher"
)

const apiPrefix = "/api/v1"

var (
	// ErrConnectionFailed is returned when the server cannot be reached.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrNotConnected is returned when a client is used before Connect.
	ErrNotConnected = errors.New("client not connected")
)

// Config configures the signet client.
type Config struct {
	// Address is the server address: host:port, http://host:port or
	// https://host:port.
	Address string

	// Timeout bounds each request. Zero means no client-side timeout
	// beyond the request context.
	Timeout time.Duration

	// TLSEnabled selects https when Address carries no scheme.
	TLSEnabled bool

	// TLSInsecureSkipVerify skips TLS certificate verification (not
	// recommended).
	TLSInsecureSkipVerify bool

	// TLSCAFile is the path to the CA certificate file.
	TLSCAFile string

	// TLSCertFile and TLSKeyFile enable mTLS when both are set.
	TLSCertFile string
	TLSKeyFile  string

	// Headers are additional HTTP headers to include in requests.
	Headers map[string]string
}

// Client talks to a running signet server over its REST API. Create
// one with New, call Connect before use, and Close when done.
type Client struct {
	config     *Config
	httpClient *http.Client
	baseURL    string
	connected  bool
}

// New creates a client for the server at cfg.Address.
func New(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, types.NewValidationError("address", "server address is required", nil)
	}

	baseURL := cfg.Address
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		if cfg.TLSEnabled {
			baseURL = "https://" + baseURL
		} else {
			baseURL = "http://" + baseURL
		}
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &Client{
		config:  cfg,
		baseURL: baseURL,
	}, nil
}

// Connect builds the HTTP transport and probes the server's health
// endpoint.
func (c *Client) Connect(ctx context.Context) error {
	var tlsConfig *tls.Config
	if strings.HasPrefix(c.baseURL, "https://") {
		tlsConfig = &tls.Config{
			InsecureSkipVerify: c.config.TLSInsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		}

		if c.config.TLSCAFile != "" {
			caCert, err := os.ReadFile(c.config.TLSCAFile)
			if err != nil {
				return fmt.Errorf("failed to read CA certificate: %w", err)
			}
			caCertPool := x509.NewCertPool()
			if !caCertPool.AppendCertsFromPEM(caCert) {
				return fmt.Errorf("failed to parse CA certificate")
			}
			tlsConfig.RootCAs = caCertPool
		}

		if c.config.TLSCertFile != "" && c.config.TLSKeyFile != "" {
			cert, err := tls.LoadX509KeyPair(c.config.TLSCertFile, c.config.TLSKeyFile)
			if err != nil {
				return fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	c.httpClient = &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
		Timeout:   c.config.Timeout,
	}

	if _, err := c.Health(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	c.connected = true
	return nil
}

// Close releases the client's idle connections.
func (c *Client) Close() error {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	c.connected = false
	return nil
}

// doRequest performs one HTTP round trip. Error responses come back as
// taxonomy errors reconstructed from the HTTP status code, so callers
// can branch on the same predicates they use against the engine.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	if c.httpClient == nil {
		return ErrNotConnected
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return errorFromResponse(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// errorFromResponse rebuilds a taxonomy error from the server's error
// payload. The mapping inverts the server's status-code mapping.
func errorFromResponse(status int, body []byte) error {
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := fmt.Sprintf("server returned status %d", status)
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Error != "" {
			msg = errResp.Error
		} else if errResp.Message != "" {
			msg = errResp.Message
		}
	}

	switch status {
	case http.StatusBadRequest:
		return types.NewValidationError("request", msg, nil)
	case http.StatusNotFound:
		return types.NewNotFoundError("resource", msg, nil)
	case http.StatusForbidden:
		return types.NewAuthorizationError("request", msg, nil)
	case http.StatusUnprocessableEntity:
		return types.NewIntegrityError(types.ReasonInvalidSignature, msg, nil)
	case http.StatusConflict:
		return types.NewConcurrencyError("request", msg, nil)
	default:
		return fmt.Errorf("server error: %s", msg)
	}
}

// Health reports the server's basic health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateKey creates a signing key on the server.
func (c *Client) GenerateKey(ctx context.Context, req *GenerateKeyRequest) (*types.KeyInfo, error) {
	var info types.KeyInfo
	if err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/keys", req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListKeys returns metadata for every key on the server.
func (c *Client) ListKeys(ctx context.Context) ([]types.KeyInfo, error) {
	var resp struct {
		Keys []types.KeyInfo `json:"keys"`
	}
	if err := c.doRequest(ctx, http.MethodGet, apiPrefix+"/keys", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

// GetKey returns metadata for one key.
func (c *Client) GetKey(ctx context.Context, name string) (*types.KeyInfo, error) {
	var info types.KeyInfo
	if err := c.doRequest(ctx, http.MethodGet, apiPrefix+"/keys/"+name, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// DeleteKey removes a key from the server.
func (c *Client) DeleteKey(ctx context.Context, name string) error {
	return c.doRequest(ctx, http.MethodDelete, apiPrefix+"/keys/"+name, nil, nil)
}

// RotateKey replaces the key material under the same name.
func (c *Client) RotateKey(ctx context.Context, name, passphrase string) (*types.KeyInfo, error) {
	req := passphraseRequest{Passphrase: passphrase}
	var info types.KeyInfo
	if err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/keys/"+name+"/rotate", req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// RevokeKey marks a key revoked.
func (c *Client) RevokeKey(ctx context.Context, name string) (*types.KeyInfo, error) {
	var info types.KeyInfo
	if err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/keys/"+name+"/revoke", struct{}{}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ExportKey returns the key's public half as PEM.
func (c *Client) ExportKey(ctx context.Context, name string) (*ExportKeyResponse, error) {
	var resp ExportKeyResponse
	if err := c.doRequest(ctx, http.MethodGet, apiPrefix+"/keys/"+name+"/export", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddTrust records a fingerprint as trusted.
func (c *Client) AddTrust(ctx context.Context, req *TrustRequest) (*types.TrustEntry, error) {
	var entry types.TrustEntry
	if err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/trust", req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListTrust returns every trust entry.
func (c *Client) ListTrust(ctx context.Context) ([]types.TrustEntry, error) {
	var resp struct {
		Entries []types.TrustEntry `json:"entries"`
	}
	if err := c.doRequest(ctx, http.MethodGet, apiPrefix+"/trust", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// GetTrust returns the trust entry for a fingerprint.
func (c *Client) GetTrust(ctx context.Context, fingerprint string) (*types.TrustEntry, error) {
	var entry types.TrustEntry
	if err := c.doRequest(ctx, http.MethodGet, apiPrefix+"/trust/"+fingerprint, nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// EvaluateTrust returns the trust verdict for a fingerprint.
func (c *Client) EvaluateTrust(ctx context.Context, fingerprint string) (*EvaluateTrustResponse, error) {
	var resp EvaluateTrustResponse
	if err := c.doRequest(ctx, http.MethodGet, apiPrefix+"/trust/"+fingerprint+"/evaluate", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RevokeTrust withdraws trust from a fingerprint.
func (c *Client) RevokeTrust(ctx context.Context, fingerprint, reason string) (*types.TrustEntry, error) {
	req := struct {
		Reason string `json:"reason,omitempty"`
	}{Reason: reason}
	var entry types.TrustEntry
	if err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/trust/"+fingerprint+"/revoke", req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ReinstateTrust restores a revoked fingerprint to trusted.
func (c *Client) ReinstateTrust(ctx context.Context, fingerprint string, force bool, description string) (*types.TrustEntry, error) {
	req := struct {
		Force       bool   `json:"force,omitempty"`
		Description string `json:"description,omitempty"`
	}{Force: force, Description: description}
	var entry types.TrustEntry
	if err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/trust/"+fingerprint+"/reinstate", req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Sign signs data on the server and returns the encoded envelope.
func (c *Client) Sign(ctx context.Context, req *SignRequest) (*SignResponse, error) {
	var resp SignResponse
	if err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/sign", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Verify checks a signature on the server.
func (c *Client) Verify(ctx context.Context, req *VerifyRequest) (*VerifyResponse, error) {
	var resp VerifyResponse
	if err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/verify", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateSession opens a multi-party signing session.
func (c *Client) CreateSession(ctx context.Context, req *CreateSessionRequest) (*multisig.Session, error) {
	var session multisig.Session
	if err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/multisig/sessions", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions returns every live session snapshot.
func (c *Client) ListSessions(ctx context.Context) ([]*multisig.Session, error) {
	var sessions []*multisig.Session
	if err := c.doRequest(ctx, http.MethodGet, apiPrefix+"/multisig/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession returns one session snapshot.
func (c *Client) GetSession(ctx context.Context, id string) (*multisig.Session, error) {
	var session multisig.Session
	if err := c.doRequest(ctx, http.MethodGet, apiPrefix+"/multisig/sessions/"+id, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CollectSignature submits a participant's signature envelope to a
// session.
func (c *Client) CollectSignature(ctx context.Context, id, keyName string, signature []byte) (*multisig.Session, error) {
	req := struct {
		KeyName   string `json:"key_name"`
		Signature []byte `json:"signature"`
	}{KeyName: keyName, Signature: signature}
	var session multisig.Session
	if err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/multisig/sessions/"+id+"/signatures", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// VerifySession verifies every collected signature in a session.
func (c *Client) VerifySession(ctx context.Context, id string) (*multisig.VerifyResult, error) {
	var result multisig.VerifyResult
	if err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/multisig/sessions/"+id+"/verify", struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CompleteSession finalizes a session whose threshold is met.
func (c *Client) CompleteSession(ctx context.Context, id string) (*multisig.Session, error) {
	var session multisig.Session
	if err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/multisig/sessions/"+id+"/complete", struct{}{}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CancelSession aborts a session.
func (c *Client) CancelSession(ctx context.Context, id string) (*multisig.Session, error) {
	var session multisig.Session
	if err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/multisig/sessions/"+id+"/cancel", struct{}{}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ResetSession discards a session's submissions and reopens it.
func (c *Client) ResetSession(ctx context.Context, id string) (*multisig.Session, error) {
	var session multisig.Session
	if err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/multisig/sessions/"+id+"/reset", struct{}{}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// StartWatcher starts a filesystem watcher on the server.
func (c *Client) StartWatcher(ctx context.Context, req *StartWatcherRequest) (*watcher.Info, error) {
	var info watcher.Info
	if err := c.doRequest(ctx, http.MethodPost, apiPrefix+"/watchers", req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListWatchers returns a snapshot of every watcher on the server.
func (c *Client) ListWatchers(ctx context.Context) ([]watcher.Info, error) {
	var resp struct {
		Watchers []watcher.Info `json:"watchers"`
	}
	if err := c.doRequest(ctx, http.MethodGet, apiPrefix+"/watchers", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Watchers, nil
}

// GetWatcher returns one watcher snapshot.
func (c *Client) GetWatcher(ctx context.Context, id string) (*watcher.Info, error) {
	var info watcher.Info
	if err := c.doRequest(ctx, http.MethodGet, apiPrefix+"/watchers/"+id, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// WatcherActivity returns a watcher's recent activity log.
func (c *Client) WatcherActivity(ctx context.Context, id string) ([]watcher.ActivityEntry, error) {
	var resp struct {
		ID       string                  `json:"id"`
		Activity []watcher.ActivityEntry `json:"activity"`
	}
	if err := c.doRequest(ctx, http.MethodGet, apiPrefix+"/watchers/"+id+"/activity", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Activity, nil
}

// StopWatcher stops a watcher on the server.
func (c *Client) StopWatcher(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodDelete, apiPrefix+"/watchers/"+id, nil, nil)
}
