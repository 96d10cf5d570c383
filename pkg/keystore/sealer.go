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
	"context"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/jeremyhahn/go-signet/pkg/audit"
	"github.com/jeremyhahn/go-signet/pkg/metrics"
	"github.com/jeremyhahn/go-signet/pkg/types"
)

// sealingKeyInfo is the HKDF info string for deriving sealing keys.
const sealingKeyInfo = "signet-sealing-key-v1"

// aadHashKey is the metadata key carrying the SHA-256 of the AAD used
// at seal time, recorded so a mismatched AAD at unseal is explainable.
const aadHashKey = "aad_hash"

// Seal encrypts a secret under a stored key. A 256-bit AES key is
// derived from the private key material with HKDF-SHA256 and the
// plaintext is sealed with AES-GCM. The secret can only be recovered
// through Unseal with the same key and passphrase.
//
// This is software sealing: the private key passes through memory
// while the sealing key is derived.
func (s *KeyStore) Seal(ctx context.Context, name string, passphrase *types.Password, plaintext []byte, aad []byte) (*types.SealedData, error) {
	start := time.Now()
	sealed, err := s.seal(ctx, name, passphrase, plaintext, aad)
	s.observe(metrics.OpSeal, start, err)
	s.emit(ctx, audit.EventSeal, name, err)
	return sealed, err
}

func (s *KeyStore) seal(ctx context.Context, name string, passphrase *types.Password, plaintext []byte, aad []byte) (*types.SealedData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(plaintext) == 0 {
		return nil, types.NewValidationError("plaintext", "nothing to seal", types.ErrEmptyInput)
	}

	record, err := s.loadRecord(name)
	if err != nil {
		return nil, err
	}
	if !record.Status.CanSign() {
		return nil, types.NewAuthorizationError("seal",
			fmt.Sprintf("key %q is %s", name, record.Status), statusSentinel(record.Status))
	}

	var sealed *types.SealedData
	err = s.withPrivateKey(record, passphrase, func(signer crypto.Signer) error {
		sealingKey, err := deriveSealingKey(signer, record.Fingerprint)
		if err != nil {
			return err
		}
		defer clearBytes(sealingKey)

		gcm, err := newGCM(sealingKey)
		if err != nil {
			return err
		}

		nonce := make([]byte, gcm.NonceSize())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return fmt.Errorf("keystore: generating nonce: %w", err)
		}

		sealed = &types.SealedData{
			KeyID:      record.Fingerprint,
			Nonce:      nonce,
			Ciphertext: gcm.Seal(nil, nonce, plaintext, aad),
		}
		if aad != nil {
			sum := sha256.Sum256(aad)
			sealed.Metadata = map[string][]byte{aadHashKey: sum[:]}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sealed, nil
}

// Unseal recovers a secret sealed by Seal. The same key, passphrase,
// and AAD are required; a rotated key no longer unseals blobs made by
// its previous version.
func (s *KeyStore) Unseal(ctx context.Context, name string, passphrase *types.Password, sealed *types.SealedData, aad []byte) ([]byte, error) {
	start := time.Now()
	plaintext, err := s.unseal(ctx, name, passphrase, sealed, aad)
	s.observe(metrics.OpUnseal, start, err)
	s.emit(ctx, audit.EventUnseal, name, err)
	return plaintext, err
}

func (s *KeyStore) unseal(ctx context.Context, name string, passphrase *types.Password, sealed *types.SealedData, aad []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sealed == nil || len(sealed.Ciphertext) == 0 {
		return nil, types.NewValidationError("sealed", "sealed data is required", types.ErrEmptyInput)
	}

	record, err := s.loadRecord(name)
	if err != nil {
		return nil, err
	}

	// Revoked keys may still recover secrets they sealed earlier, but
	// deletion drops the private material for good.
	if record.Status == types.KeyStatusDeleted {
		return nil, types.NewAuthorizationError("unseal",
			fmt.Sprintf("key %q is deleted", name), types.ErrKeyDeleted)
	}

	if sealed.KeyID != "" && sealed.KeyID != record.Fingerprint {
		return nil, types.NewIntegrityError(types.ReasonUnknownKey,
			fmt.Sprintf("sealed under key %.16s, key %q is now %.16s", sealed.KeyID, name, record.Fingerprint),
			types.ErrCorruptKeyData)
	}

	var plaintext []byte
	err = s.withPrivateKey(record, passphrase, func(signer crypto.Signer) error {
		sealingKey, err := deriveSealingKey(signer, record.Fingerprint)
		if err != nil {
			return err
		}
		defer clearBytes(sealingKey)

		gcm, err := newGCM(sealingKey)
		if err != nil {
			return err
		}
		if len(sealed.Nonce) != gcm.NonceSize() {
			return types.NewIntegrityError(types.ReasonMalformed,
				fmt.Sprintf("nonce is %d bytes, want %d", len(sealed.Nonce), gcm.NonceSize()),
				types.ErrCorruptKeyData)
		}

		out, err := gcm.Open(nil, sealed.Nonce, sealed.Ciphertext, aad)
		if err != nil {
			return types.NewIntegrityError(types.ReasonDataMismatch,
				"sealed data does not decrypt (check key and AAD)",
				fmt.Errorf("%w: %v", types.ErrCorruptKeyData, err))
		}
		plaintext = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// deriveSealingKey derives a 256-bit AES key from the private key's
// scalar material with HKDF-SHA256, salted by the key fingerprint.
func deriveSealingKey(privateKey crypto.PrivateKey, fingerprint string) ([]byte, error) {
	var keyMaterial []byte
	switch k := privateKey.(type) {
	case *rsa.PrivateKey:
		keyMaterial = k.D.Bytes()
	case *ecdsa.PrivateKey:
		keyMaterial = k.D.Bytes()
	case ed25519.PrivateKey:
		keyMaterial = k.Seed()
	default:
		return nil, fmt.Errorf("keystore: unsupported key type for sealing: %T", privateKey)
	}

	reader := hkdf.New(sha256.New, keyMaterial, []byte(fingerprint), []byte(sealingKeyInfo))
	derived := make([]byte, 32)
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, fmt.Errorf("keystore: deriving sealing key: %w", err)
	}
	return derived, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keystore: creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keystore: creating GCM: %w", err)
	}
	return gcm, nil
}
