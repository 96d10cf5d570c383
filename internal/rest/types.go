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
	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/jeremyhahn/go-signet/pkg/watcher"
)

// HealthResponse represents the basic health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// GenerateKeyRequest represents a key generation request.
type GenerateKeyRequest struct {
	Name       string `json:"name"`
	Algorithm  string `json:"algorithm"` // "ed25519", "ecdsa-p256", "rsa-2048", ...
	Passphrase string `json:"passphrase"`
}

// PassphraseRequest carries the passphrase for operations that unlock
// a private key.
type PassphraseRequest struct {
	Passphrase string `json:"passphrase"`
}

// ListKeysResponse represents the response for listing keys.
type ListKeysResponse struct {
	Keys []types.KeyInfo `json:"keys"`
}

// ExportKeyResponse represents the response for exporting a public key.
type ExportKeyResponse struct {
	Name         string `json:"name"`
	Fingerprint  string `json:"fingerprint"`
	PublicKeyPEM string `json:"public_key_pem"`
}

// TrustRequest represents a request to trust a fingerprint.
type TrustRequest struct {
	Fingerprint string `json:"fingerprint"`
	KeyName     string `json:"key_name"`
	Description string `json:"description,omitempty"`
}

// RevokeTrustRequest represents a trust revocation request.
type RevokeTrustRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ReinstateTrustRequest represents a trust reinstatement request.
type ReinstateTrustRequest struct {
	Force       bool   `json:"force,omitempty"`
	Description string `json:"description,omitempty"`
}

// ListTrustResponse represents the response for listing trust entries.
type ListTrustResponse struct {
	Entries []types.TrustEntry `json:"entries"`
}

// EvaluateTrustResponse represents a trust evaluation verdict.
type EvaluateTrustResponse struct {
	Fingerprint string `json:"fingerprint"`
	State       string `json:"state"`
	Trusted     bool   `json:"trusted"`
}

// SignRequest represents a signing request. Data is base64 in the
// JSON encoding.
type SignRequest struct {
	KeyName    string `json:"key_name"`
	Passphrase string `json:"passphrase"`
	Data       []byte `json:"data"`

	// Format selects the envelope serialization: "structured" (default),
	// "jws", or "raw".
	Format   string `json:"format,omitempty"`
	Encoding string `json:"encoding,omitempty"`
	Scheme   string `json:"scheme,omitempty"`

	Detached         bool              `json:"detached,omitempty"`
	TTLSeconds       int64             `json:"ttl_seconds,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	IncludePublicKey bool              `json:"include_public_key,omitempty"`
}

// SignResponse represents the response for a signing operation.
type SignResponse struct {
	KeyName     string `json:"key_name"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Format      string `json:"format"`
	Envelope    []byte `json:"envelope"`
}

// VerifyRequest represents a verification request. The envelope is the
// encoded artifact produced by signing.
type VerifyRequest struct {
	Data     []byte `json:"data"`
	Envelope []byte `json:"envelope"`

	// Format selects how the envelope is interpreted: "structured"
	// (default) or "jws".
	Format string `json:"format,omitempty"`

	CheckTrust     bool `json:"check_trust,omitempty"`
	RequireTrusted bool `json:"require_trusted,omitempty"`
}

// VerifyResponse represents a verification verdict.
type VerifyResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`

	TrustChecked bool   `json:"trust_checked,omitempty"`
	Trusted      bool   `json:"trusted,omitempty"`
	TrustReason  string `json:"trust_reason,omitempty"`

	KeyName     string `json:"key_name,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// CreateSessionRequest represents a multi-party session creation
// request. Data is base64 in the JSON encoding.
type CreateSessionRequest struct {
	Data         []byte   `json:"data"`
	Description  string   `json:"description,omitempty"`
	Threshold    int      `json:"threshold"`
	Participants []string `json:"participants"`
	TTLSeconds   int64    `json:"ttl_seconds,omitempty"`
}

// CollectSignatureRequest represents a signature submission to a
// multi-party session.
type CollectSignatureRequest struct {
	KeyName   string `json:"key_name"`
	Signature []byte `json:"signature"`
}

// StartWatcherRequest represents a request to start a filesystem
// watcher.
type StartWatcherRequest struct {
	Directory  string `json:"directory"`
	KeyName    string `json:"key_name"`
	Passphrase string `json:"passphrase"`

	Patterns           []string `json:"patterns,omitempty"`
	ExcludePatterns    []string `json:"exclude_patterns,omitempty"`
	Recursive          bool     `json:"recursive,omitempty"`
	WatchModifications bool     `json:"watch_modifications,omitempty"`
	IgnoreHidden       bool     `json:"ignore_hidden,omitempty"`
	MaxFileSize        int64    `json:"max_file_size,omitempty"`
	MaxConcurrent      int      `json:"max_concurrent,omitempty"`
	QueueSize          int      `json:"queue_size,omitempty"`
	EventsPerSecond    float64  `json:"events_per_second,omitempty"`
	BackupSignedFiles  bool     `json:"backup_signed_files,omitempty"`
	BackupDirectory    string   `json:"backup_directory,omitempty"`
}

// ListWatchersResponse represents the response for listing watchers.
type ListWatchersResponse struct {
	Watchers []watcher.Info `json:"watchers"`
}

// WatcherActivityResponse represents a watcher's recent activity log.
type WatcherActivityResponse struct {
	ID       string                  `json:"id"`
	Activity []watcher.ActivityEntry `json:"activity"`
}

// SuccessResponse represents a generic success response.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
