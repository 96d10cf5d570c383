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

package keystore

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/youmark/pkcs8"

	"github.com/jeremyhahn/go-signet/pkg/types"
)

// PEM block types used for stored key material.
const (
	pemTypePublicKey = "PUBLIC KEY"
)

// keyMaterial is the generated output for a new key version.
type keyMaterial struct {
	publicPEM     string
	sealedPrivate []byte
	fingerprint   string
}

// generateMaterial creates a fresh key pair for the algorithm and
// seals the private key under the passphrase as encrypted PKCS#8 DER.
func generateMaterial(algorithm types.Algorithm, passphrase *types.Password) (*keyMaterial, error) {
	signer, err := generateKeyPair(algorithm)
	if err != nil {
		return nil, err
	}
	defer wipePrivateKey(signer)

	sealed, err := pkcs8.MarshalPrivateKey(signer, passphrase.Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("keystore: sealing private key: %w", err)
	}

	publicPEM, err := encodePublicKeyPEM(signer.Public())
	if err != nil {
		return nil, err
	}

	fingerprint, err := fingerprintPublicKey(signer.Public())
	if err != nil {
		return nil, err
	}

	return &keyMaterial{
		publicPEM:     publicPEM,
		sealedPrivate: sealed,
		fingerprint:   fingerprint,
	}, nil
}

// generateKeyPair produces a private key for the algorithm.
func generateKeyPair(algorithm types.Algorithm) (crypto.Signer, error) {
	switch algorithm.Family() {
	case types.FamilyRSA:
		key, err := rsa.GenerateKey(rand.Reader, algorithm.Bits())
		if err != nil {
			return nil, fmt.Errorf("keystore: generating RSA key: %w", err)
		}
		return key, nil
	case types.FamilyECDSA:
		curve, err := curveFor(algorithm)
		if err != nil {
			return nil, err
		}
		key, err := ecdsa.GenerateKey(curve, rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("keystore: generating ECDSA key: %w", err)
		}
		return key, nil
	case types.FamilyEd25519:
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("keystore: generating Ed25519 key: %w", err)
		}
		return key, nil
	}
	return nil, fmt.Errorf("%w: %q", types.ErrUnsupportedAlgorithm, algorithm)
}

func curveFor(algorithm types.Algorithm) (elliptic.Curve, error) {
	switch algorithm {
	case types.AlgorithmECDSAP256:
		return elliptic.P256(), nil
	case types.AlgorithmECDSAP384:
		return elliptic.P384(), nil
	case types.AlgorithmECDSAP521:
		return elliptic.P521(), nil
	}
	return nil, fmt.Errorf("%w: %q", types.ErrUnsupportedAlgorithm, algorithm)
}

// unsealPrivateKey decrypts a record's sealed PKCS#8 private key. A
// wrong passphrase surfaces as an AuthorizationError wrapping
// types.ErrWrongPassphrase.
func unsealPrivateKey(record *types.KeyRecord, passphrase *types.Password) (crypto.Signer, error) {
	if len(record.EncryptedPrivateKey) == 0 {
		return nil, types.NewIntegrityError(types.ReasonMalformed,
			fmt.Sprintf("key %q has no sealed private material", record.Name),
			types.ErrCorruptKeyData)
	}

	key, err := pkcs8.ParsePKCS8PrivateKey(record.EncryptedPrivateKey, passphrase.Bytes())
	if err != nil {
		if isPassphraseError(err) {
			return nil, types.NewAuthorizationError("unseal",
				fmt.Sprintf("key %q", record.Name), types.ErrWrongPassphrase)
		}
		return nil, types.NewIntegrityError(types.ReasonMalformed,
			fmt.Sprintf("key %q sealed material does not parse", record.Name),
			fmt.Errorf("%w: %v", types.ErrCorruptKeyData, err))
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, types.NewIntegrityError(types.ReasonMalformed,
			fmt.Sprintf("key %q is not a signing key (%T)", record.Name, key),
			types.ErrCorruptKeyData)
	}
	return signer, nil
}

// isPassphraseError reports whether a PKCS#8 parse failure looks like
// a wrong passphrase rather than corrupt data. The pkcs8 package does
// not expose a sentinel, so this matches the messages it produces for
// decryption failures.
func isPassphraseError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{
		"incorrect password",
		"asn1: structure error",
		"tags don't match",
		"message authentication failed",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// encodePublicKeyPEM renders a public key as a PKIX PEM block.
func encodePublicKeyPEM(publicKey crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("keystore: encoding public key: %w", err)
	}

	var buf bytes.Buffer
	if err := pem.Encode(&buf, &pem.Block{Type: pemTypePublicKey, Bytes: der}); err != nil {
		return "", fmt.Errorf("keystore: encoding public key PEM: %w", err)
	}
	return buf.String(), nil
}

// ParsePublicKeyPEM decodes a PKIX PEM block back to a public key.
func ParsePublicKeyPEM(pemData string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, types.NewIntegrityError(types.ReasonMalformed,
			"public key is not PEM", types.ErrCorruptKeyData)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, types.NewIntegrityError(types.ReasonMalformed,
			"public key does not parse",
			fmt.Errorf("%w: %v", types.ErrCorruptKeyData, err))
	}
	return pub, nil
}

// fingerprintPublicKey returns the lowercase hex SHA-256 digest of the
// public key's PKIX DER encoding. Fingerprints identify key versions
// in trust entries and signature envelopes.
func fingerprintPublicKey(publicKey crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("keystore: fingerprinting public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:]), nil
}

// Fingerprint returns the fingerprint of an arbitrary public key in
// the same form the store records for its own keys.
func Fingerprint(publicKey crypto.PublicKey) (string, error) {
	return fingerprintPublicKey(publicKey)
}

// wipePrivateKey makes a best-effort pass at zeroing private scalar
// material before the key is garbage collected. math/big internals
// cannot be fully scrubbed, but the primary buffers are cleared.
func wipePrivateKey(key crypto.PrivateKey) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		if k.D != nil {
			k.D.SetInt64(0)
		}
		for _, p := range k.Primes {
			if p != nil {
				p.SetInt64(0)
			}
		}
		k.Precomputed = rsa.PrecomputedValues{}
	case *ecdsa.PrivateKey:
		if k.D != nil {
			k.D.SetInt64(0)
		}
	case ed25519.PrivateKey:
		clearBytes(k)
	}
}

// clearBytes zeros out a byte slice.
func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
