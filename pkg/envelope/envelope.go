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

// Package envelope defines the signature envelope formats and their
// codecs. Raw envelopes are the signature bytes alone in a text
// encoding; structured envelopes are JSON documents carrying the
// signature together with the scheme, the signing key identity,
// timestamps, and caller metadata. Decoding is strict: anything that
// does not round-trip cleanly is malformed.
package envelope

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jeremyhahn/go-signet/pkg/types"
)

// Version is the structured envelope format version. Decoders reject
// envelopes from a newer format.
const Version = 1

// Envelope is the structured signature document. The signature is
// carried in the text encoding named by Encoding.
type Envelope struct {
	Version      int                   `json:"version"`
	Signature    string                `json:"signature"`
	Encoding     types.Encoding        `json:"encoding"`
	Scheme       types.SignatureScheme `json:"scheme"`
	Algorithm    types.Algorithm       `json:"algorithm"`
	KeyName      string                `json:"key_name,omitempty"`
	KeyVersion   int                   `json:"key_version,omitempty"`
	Fingerprint  string                `json:"fingerprint"`
	CreatedAt    time.Time             `json:"created_at,omitzero"`
	ExpiresAt    *time.Time            `json:"expires_at,omitempty"`
	Detached     bool                  `json:"detached,omitempty"`
	DataHash     string                `json:"data_hash,omitempty"`
	Metadata     map[string]string     `json:"metadata,omitempty"`
	PublicKeyPEM string                `json:"public_key_pem,omitempty"`
}

// SignatureBytes decodes the carried signature.
func (e *Envelope) SignatureBytes() ([]byte, error) {
	return DecodeRaw(e.Signature, e.Encoding)
}

// Expired reports whether the envelope's validity window has passed.
// Envelopes without ExpiresAt never expire.
func (e *Envelope) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// MatchesPayload reports whether a detached envelope's recorded data
// hash matches the given payload.
func (e *Envelope) MatchesPayload(data []byte) bool {
	return e.DataHash == HashPayload(data)
}

// HashPayload returns the lowercase hex SHA-256 of a payload, the form
// recorded in detached envelopes.
func HashPayload(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// EncodeRaw renders signature bytes in the named text encoding.
func EncodeRaw(signature []byte, encoding types.Encoding) (string, error) {
	switch encoding {
	case types.EncodingBase64:
		return base64.StdEncoding.EncodeToString(signature), nil
	case types.EncodingHex:
		return hex.EncodeToString(signature), nil
	}
	return "", types.NewValidationError("encoding",
		fmt.Sprintf("unsupported encoding %q", encoding), types.ErrUnsupportedFormat)
}

// DecodeRaw parses a raw text signature. Surrounding whitespace is
// tolerated; anything else is malformed.
func DecodeRaw(text string, encoding types.Encoding) ([]byte, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, types.NewIntegrityError(types.ReasonMalformed,
			"signature text is empty", types.ErrMalformedEnvelope)
	}

	switch encoding {
	case types.EncodingBase64:
		sig, err := base64.StdEncoding.DecodeString(trimmed)
		if err != nil {
			return nil, types.NewIntegrityError(types.ReasonMalformed,
				"signature is not valid base64",
				fmt.Errorf("%w: %v", types.ErrMalformedEnvelope, err))
		}
		return sig, nil
	case types.EncodingHex:
		sig, err := hex.DecodeString(trimmed)
		if err != nil {
			return nil, types.NewIntegrityError(types.ReasonMalformed,
				"signature is not valid hex",
				fmt.Errorf("%w: %v", types.ErrMalformedEnvelope, err))
		}
		return sig, nil
	}
	return nil, types.NewValidationError("encoding",
		fmt.Sprintf("unsupported encoding %q", encoding), types.ErrUnsupportedFormat)
}

// Encode serializes a structured envelope as JSON.
func Encode(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, types.NewValidationError("envelope", "envelope is nil", nil)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("envelope: encoding: %w", err)
	}
	return data, nil
}

// Decode parses and validates a structured envelope. Every malformed
// condition maps to an IntegrityError so callers can report a stable
// reason.
func Decode(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, types.NewIntegrityError(types.ReasonMalformed,
			"envelope is empty", types.ErrMalformedEnvelope)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, types.NewIntegrityError(types.ReasonMalformed,
			"envelope is not valid JSON",
			fmt.Errorf("%w: %v", types.ErrMalformedEnvelope, err))
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Validate checks the structural invariants of an envelope. Decode
// calls it on every parse; verifiers call it again on envelopes built
// in memory.
func (e *Envelope) Validate() error {
	malformed := func(detail string) error {
		return types.NewIntegrityError(types.ReasonMalformed, detail, types.ErrMalformedEnvelope)
	}

	if e.Version != Version {
		return malformed(fmt.Sprintf("unsupported envelope version %d", e.Version))
	}
	if !e.Encoding.IsValid() {
		return malformed(fmt.Sprintf("unknown encoding %q", e.Encoding))
	}
	if !e.Scheme.IsValid() {
		return malformed(fmt.Sprintf("unknown scheme %q", e.Scheme))
	}
	if !e.Algorithm.IsValid() {
		return malformed(fmt.Sprintf("unknown algorithm %q", e.Algorithm))
	}
	if !e.Scheme.MatchesFamily(e.Algorithm.Family()) {
		return malformed(fmt.Sprintf("scheme %s does not apply to %s keys", e.Scheme, e.Algorithm))
	}
	if e.Fingerprint == "" {
		return malformed("missing fingerprint")
	}
	// The timestamp is optional; when both are present the window must
	// be ordered.
	if e.ExpiresAt != nil && !e.CreatedAt.IsZero() && !e.ExpiresAt.After(e.CreatedAt) {
		return malformed("expires_at precedes created_at")
	}
	if e.Detached && e.DataHash == "" {
		return malformed("detached envelope without data hash")
	}
	if _, err := e.SignatureBytes(); err != nil {
		return err
	}
	return nil
}
