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

package client

// HealthResponse is the server's basic health report.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// GenerateKeyRequest asks the server to create a key.
type GenerateKeyRequest struct {
	Name       string `json:"name"`
	Algorithm  string `json:"algorithm"`
	Passphrase string `json:"passphrase"`
}

type passphraseRequest struct {
	Passphrase string `json:"passphrase"`
}

// ExportKeyResponse carries a key's public half.
type ExportKeyResponse struct {
	Name         string `json:"name"`
	Fingerprint  string `json:"fingerprint"`
	PublicKeyPEM string `json:"public_key_pem"`
}

// TrustRequest records a fingerprint as trusted.
type TrustRequest struct {
	Fingerprint string `json:"fingerprint"`
	KeyName     string `json:"key_name"`
	Description string `json:"description,omitempty"`
}

// EvaluateTrustResponse is the server's trust verdict for a
// fingerprint.
type EvaluateTrustResponse struct {
	Fingerprint string `json:"fingerprint"`
	State       string `json:"state"`
	Trusted     bool   `json:"trusted"`
}

// SignRequest asks the server to sign data. Data rides base64 in the
// JSON encoding.
type SignRequest struct {
	KeyName    string `json:"key_name"`
	Passphrase string `json:"passphrase"`
	Data       []byte `json:"data"`

	Format   string `json:"format,omitempty"`
	Encoding string `json:"encoding,omitempty"`
	Scheme   string `json:"scheme,omitempty"`

	Detached         bool              `json:"detached,omitempty"`
	TTLSeconds       int64             `json:"ttl_seconds,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	IncludePublicKey bool              `json:"include_public_key,omitempty"`
}

// SignResponse carries the encoded signature envelope.
type SignResponse struct {
	KeyName     string `json:"key_name"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Format      string `json:"format"`
	Envelope    []byte `json:"envelope"`
}

// VerifyRequest asks the server to verify an envelope against data.
type VerifyRequest struct {
	Data     []byte `json:"data"`
	Envelope []byte `json:"envelope"`

	Format string `json:"format,omitempty"`

	CheckTrust     bool `json:"check_trust,omitempty"`
	RequireTrusted bool `json:"require_trusted,omitempty"`
}

// VerifyResponse is the server's verification verdict.
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

// CreateSessionRequest opens a multi-party signing session.
type CreateSessionRequest struct {
	Data         []byte   `json:"data"`
	Description  string   `json:"description,omitempty"`
	Threshold    int      `json:"threshold"`
	Participants []string `json:"participants"`
	TTLSeconds   int64    `json:"ttl_seconds,omitempty"`
}

// StartWatcherRequest starts a filesystem watcher on the server.
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
