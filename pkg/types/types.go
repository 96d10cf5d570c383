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

// Package types defines the shared data model for the signing engine:
// key algorithms and signature schemes, key records and their lifecycle
// states, signature envelope formats, passphrase handling, and the
// error taxonomy used across all components.
package types

import (
	"crypto"
	"fmt"
	"strings"
	"time"
)

// Algorithm identifies an asymmetric key algorithm and its parameters.
type Algorithm string

const (
	AlgorithmRSA2048   Algorithm = "rsa-2048"
	AlgorithmRSA3072   Algorithm = "rsa-3072"
	AlgorithmRSA4096   Algorithm = "rsa-4096"
	AlgorithmECDSAP256 Algorithm = "ecdsa-p256"
	AlgorithmECDSAP384 Algorithm = "ecdsa-p384"
	AlgorithmECDSAP521 Algorithm = "ecdsa-p521"
	AlgorithmEd25519   Algorithm = "ed25519"
)

// KeyFamily groups algorithms by their underlying primitive.
type KeyFamily string

const (
	FamilyRSA     KeyFamily = "rsa"
	FamilyECDSA   KeyFamily = "ecdsa"
	FamilyEd25519 KeyFamily = "ed25519"
)

// String returns the string representation of the algorithm.
func (a Algorithm) String() string {
	return string(a)
}

// IsValid returns true if the algorithm is supported.
func (a Algorithm) IsValid() bool {
	switch a {
	case AlgorithmRSA2048, AlgorithmRSA3072, AlgorithmRSA4096,
		AlgorithmECDSAP256, AlgorithmECDSAP384, AlgorithmECDSAP521,
		AlgorithmEd25519:
		return true
	}
	return false
}

// Family returns the key family for the algorithm.
func (a Algorithm) Family() KeyFamily {
	switch a {
	case AlgorithmRSA2048, AlgorithmRSA3072, AlgorithmRSA4096:
		return FamilyRSA
	case AlgorithmECDSAP256, AlgorithmECDSAP384, AlgorithmECDSAP521:
		return FamilyECDSA
	case AlgorithmEd25519:
		return FamilyEd25519
	}
	return ""
}

// Bits returns the RSA modulus size for RSA algorithms, 0 otherwise.
func (a Algorithm) Bits() int {
	switch a {
	case AlgorithmRSA2048:
		return 2048
	case AlgorithmRSA3072:
		return 3072
	case AlgorithmRSA4096:
		return 4096
	}
	return 0
}

// ParseAlgorithm parses a string into an Algorithm. Accepts the
// canonical names plus a few common aliases (case-insensitive).
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rsa", "rsa-2048", "rsa2048":
		return AlgorithmRSA2048, nil
	case "rsa-3072", "rsa3072":
		return AlgorithmRSA3072, nil
	case "rsa-4096", "rsa4096":
		return AlgorithmRSA4096, nil
	case "ec", "ecdsa", "ecdsa-p256", "p256", "p-256":
		return AlgorithmECDSAP256, nil
	case "ecdsa-p384", "p384", "p-384":
		return AlgorithmECDSAP384, nil
	case "ecdsa-p521", "p521", "p-521":
		return AlgorithmECDSAP521, nil
	case "ed25519", "eddsa":
		return AlgorithmEd25519, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s)
}

// SignatureScheme identifies how a digest is produced and signed.
type SignatureScheme string

const (
	SchemeRSAPKCS1SHA256 SignatureScheme = "rsa-pkcs1v15-sha256"
	SchemeRSAPSSSHA256   SignatureScheme = "rsa-pss-sha256"
	SchemeECDSASHA256    SignatureScheme = "ecdsa-sha256"
	SchemeECDSASHA384    SignatureScheme = "ecdsa-sha384"
	SchemeECDSASHA512    SignatureScheme = "ecdsa-sha512"
	SchemeEd25519        SignatureScheme = "ed25519"
)

// String returns the string representation of the scheme.
func (s SignatureScheme) String() string {
	return string(s)
}

// IsValid returns true if the scheme is supported.
func (s SignatureScheme) IsValid() bool {
	switch s {
	case SchemeRSAPKCS1SHA256, SchemeRSAPSSSHA256,
		SchemeECDSASHA256, SchemeECDSASHA384, SchemeECDSASHA512,
		SchemeEd25519:
		return true
	}
	return false
}

// Hash returns the digest function the scheme signs over. Ed25519
// signs the message directly and returns 0.
func (s SignatureScheme) Hash() crypto.Hash {
	switch s {
	case SchemeRSAPKCS1SHA256, SchemeRSAPSSSHA256, SchemeECDSASHA256:
		return crypto.SHA256
	case SchemeECDSASHA384:
		return crypto.SHA384
	case SchemeECDSASHA512:
		return crypto.SHA512
	}
	return 0
}

// ParseSignatureScheme parses a string into a SignatureScheme.
func ParseSignatureScheme(s string) (SignatureScheme, error) {
	scheme := SignatureScheme(strings.ToLower(strings.TrimSpace(s)))
	if !scheme.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s)
	}
	return scheme, nil
}

// DefaultScheme returns the safe default signature scheme for an
// algorithm: PKCS#1 v1.5 with SHA-256 for RSA, the curve-matched SHA-2
// digest for ECDSA, and pure Ed25519.
func DefaultScheme(a Algorithm) (SignatureScheme, error) {
	switch a {
	case AlgorithmRSA2048, AlgorithmRSA3072, AlgorithmRSA4096:
		return SchemeRSAPKCS1SHA256, nil
	case AlgorithmECDSAP256:
		return SchemeECDSASHA256, nil
	case AlgorithmECDSAP384:
		return SchemeECDSASHA384, nil
	case AlgorithmECDSAP521:
		return SchemeECDSASHA512, nil
	case AlgorithmEd25519:
		return SchemeEd25519, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, a)
}

// MatchesFamily reports whether the scheme can be used with keys of
// the given family.
func (s SignatureScheme) MatchesFamily(f KeyFamily) bool {
	switch s {
	case SchemeRSAPKCS1SHA256, SchemeRSAPSSSHA256:
		return f == FamilyRSA
	case SchemeECDSASHA256, SchemeECDSASHA384, SchemeECDSASHA512:
		return f == FamilyECDSA
	case SchemeEd25519:
		return f == FamilyEd25519
	}
	return false
}

// KeyStatus is the lifecycle state of a key record.
type KeyStatus string

const (
	// KeyStatusActive keys may sign and verify.
	KeyStatusActive KeyStatus = "active"

	// KeyStatusRevoked keys may not start new sign operations, but
	// signatures they produced earlier remain checkable.
	KeyStatusRevoked KeyStatus = "revoked"

	// KeyStatusDeleted keys may never sign again. Terminal.
	KeyStatusDeleted KeyStatus = "deleted"
)

// String returns the string representation of the status.
func (s KeyStatus) String() string {
	return string(s)
}

// CanSign returns true if a key in this state may produce signatures.
func (s KeyStatus) CanSign() bool {
	return s == KeyStatusActive
}

// EnvelopeFormat selects the serialization of a signature envelope.
type EnvelopeFormat string

const (
	// FormatRaw is the compact form: the signature bytes alone,
	// rendered in a text encoding (base64 or hex).
	FormatRaw EnvelopeFormat = "raw"

	// FormatStructured is a JSON envelope carrying the signature plus
	// algorithm, key identity, timestamps, and metadata.
	FormatStructured EnvelopeFormat = "structured"
)

// IsValid returns true if the format is supported.
func (f EnvelopeFormat) IsValid() bool {
	return f == FormatRaw || f == FormatStructured
}

// String returns the string representation of the format.
func (f EnvelopeFormat) String() string {
	return string(f)
}

// Encoding selects the text encoding used for FormatRaw output and for
// binary fields inside structured envelopes.
type Encoding string

const (
	EncodingBase64 Encoding = "base64"
	EncodingHex    Encoding = "hex"
)

// IsValid returns true if the encoding is supported.
func (e Encoding) IsValid() bool {
	return e == EncodingBase64 || e == EncodingHex
}

// PreviousKey is the retained public material of a superseded key
// version, kept so signatures made before a rotation stay verifiable.
type PreviousKey struct {
	Version      int       `json:"version"`
	Fingerprint  string    `json:"fingerprint"`
	PublicKeyPEM string    `json:"public_key_pem"`
	RetiredAt    time.Time `json:"retired_at"`
}

// KeyRecord is the stored form of a managed key. The private key is
// held only in its passphrase-sealed PKCS#8 form; plaintext private
// material never appears in a KeyRecord.
type KeyRecord struct {
	Name                string        `json:"name"`
	Algorithm           Algorithm     `json:"algorithm"`
	PublicKeyPEM        string        `json:"public_key_pem"`
	EncryptedPrivateKey []byte        `json:"encrypted_private_key"`
	Fingerprint         string        `json:"fingerprint"`
	Status              KeyStatus     `json:"status"`
	Version             int           `json:"version"`
	CreatedAt           time.Time     `json:"created_at"`
	RotatedAt           *time.Time    `json:"rotated_at,omitempty"`
	PreviousKeys        []PreviousKey `json:"previous_keys,omitempty"`
}

// Info returns the public view of the record.
func (r *KeyRecord) Info() KeyInfo {
	return KeyInfo{
		Name:        r.Name,
		Algorithm:   r.Algorithm,
		Fingerprint: r.Fingerprint,
		Status:      r.Status,
		Version:     r.Version,
		CreatedAt:   r.CreatedAt,
		RotatedAt:   r.RotatedAt,
	}
}

// KeyInfo is the externally visible description of a key. It never
// carries private material.
type KeyInfo struct {
	Name        string     `json:"name"`
	Algorithm   Algorithm  `json:"algorithm"`
	Fingerprint string     `json:"fingerprint"`
	Status      KeyStatus  `json:"status"`
	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	RotatedAt   *time.Time `json:"rotated_at,omitempty"`
}

// TrustState is the outcome of a trust evaluation.
type TrustState string

const (
	// TrustStateTrusted means the fingerprint has an active trust entry.
	TrustStateTrusted TrustState = "trusted"

	// TrustStateUntrusted means the fingerprint was never registered.
	TrustStateUntrusted TrustState = "untrusted"

	// TrustStateRevoked means the fingerprint was trusted and later
	// explicitly revoked.
	TrustStateRevoked TrustState = "revoked"
)

// String returns the string representation of the trust state.
func (s TrustState) String() string {
	return string(s)
}

// TrustEntry records a trust or revocation decision for a key
// fingerprint. A nil RevokedAt means the entry is in good standing.
type TrustEntry struct {
	Fingerprint      string     `json:"fingerprint"`
	KeyName          string     `json:"key_name"`
	Description      string     `json:"description,omitempty"`
	TrustedAt        time.Time  `json:"trusted_at"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	RevocationReason string     `json:"revocation_reason,omitempty"`
}

// Revoked returns true if the entry carries a revocation.
func (e *TrustEntry) Revoked() bool {
	return e.RevokedAt != nil
}

// SealedData is the output of sealing a secret under a stored key:
// AES-256-GCM ciphertext with the nonce and the sealing key identity.
type SealedData struct {
	KeyID      string            `json:"key_id"`
	Nonce      []byte            `json:"nonce"`
	Ciphertext []byte            `json:"ciphertext"`
	Metadata   map[string][]byte `json:"metadata,omitempty"`
}

// Password holds passphrase material that can be explicitly wiped.
// Callers should defer Clear() as soon as the passphrase is bound.
type Password struct {
	data []byte
}

// NewPassword wraps the given bytes. The slice is owned by the
// Password afterward and wiped on Clear.
func NewPassword(data []byte) *Password {
	return &Password{data: data}
}

// PasswordFromString wraps a copy of the string's bytes.
func PasswordFromString(s string) *Password {
	return &Password{data: []byte(s)}
}

// Bytes returns the raw passphrase bytes. The returned slice aliases
// the internal buffer; do not retain it past Clear.
func (p *Password) Bytes() []byte {
	if p == nil {
		return nil
	}
	return p.data
}

// String returns the passphrase as a string.
func (p *Password) String() string {
	if p == nil {
		return ""
	}
	return string(p.data)
}

// Len returns the passphrase length in bytes.
func (p *Password) Len() int {
	if p == nil {
		return 0
	}
	return len(p.data)
}

// Clear zeroes the passphrase bytes. Safe to call multiple times.
func (p *Password) Clear() {
	if p == nil {
		return
	}
	for i := range p.data {
		p.data[i] = 0
	}
	p.data = nil
}
