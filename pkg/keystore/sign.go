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
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-signet/pkg/audit"
	"github.com/jeremyhahn/go-signet/pkg/metrics"
	"github.com/jeremyhahn/go-signet/pkg/storage"
	"github.com/jeremyhahn/go-signet/pkg/types"
)

// SignResult carries a produced signature together with the identity
// of the key version that made it.
type SignResult struct {
	Signature   []byte
	Scheme      types.SignatureScheme
	Algorithm   types.Algorithm
	KeyName     string
	KeyVersion  int
	Fingerprint string
}

// SignMessage signs a message with the named key. The passphrase must
// unseal the key's private material. A scheme of "" selects the
// algorithm's default. For digest-based schemes the message is hashed
// here; Ed25519 signs the message directly.
func (s *KeyStore) SignMessage(ctx context.Context, name string, passphrase *types.Password, message []byte, scheme types.SignatureScheme) (*SignResult, error) {
	start := time.Now()
	result, err := s.sign(ctx, name, passphrase, message, scheme, false)
	s.observe(metrics.OpSign, start, err)
	s.emit(ctx, audit.EventSign, name, err)
	return result, err
}

// SignDigest signs a precomputed digest with the named key. The digest
// length must match the scheme's hash size. Ed25519 has no prehashed
// mode and is rejected with ErrDigestSigning.
func (s *KeyStore) SignDigest(ctx context.Context, name string, passphrase *types.Password, digest []byte, scheme types.SignatureScheme) (*SignResult, error) {
	start := time.Now()
	result, err := s.sign(ctx, name, passphrase, digest, scheme, true)
	s.observe(metrics.OpSign, start, err)
	s.emit(ctx, audit.EventSign, name, err)
	return result, err
}

func (s *KeyStore) sign(ctx context.Context, name string, passphrase *types.Password, input []byte, scheme types.SignatureScheme, prehashed bool) (*SignResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(input) == 0 {
		return nil, types.NewValidationError("input", "nothing to sign", types.ErrEmptyInput)
	}

	record, err := s.loadRecord(name)
	if err != nil {
		return nil, err
	}
	if !record.Status.CanSign() {
		return nil, types.NewAuthorizationError("sign",
			fmt.Sprintf("key %q is %s", name, record.Status), statusSentinel(record.Status))
	}

	resolved, err := resolveScheme(record.Algorithm, scheme)
	if err != nil {
		return nil, err
	}

	signInput, opts, err := prepareSignInput(resolved, input, prehashed)
	if err != nil {
		return nil, err
	}

	var signature []byte
	err = s.withPrivateKey(record, passphrase, func(signer crypto.Signer) error {
		sig, err := signer.Sign(rand.Reader, signInput, opts)
		if err != nil {
			return fmt.Errorf("keystore: signing with key %q: %w", name, err)
		}
		signature = sig
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &SignResult{
		Signature:   signature,
		Scheme:      resolved,
		Algorithm:   record.Algorithm,
		KeyName:     record.Name,
		KeyVersion:  record.Version,
		Fingerprint: record.Fingerprint,
	}, nil
}

// resolveScheme picks the effective signature scheme for a key,
// defaulting from the algorithm and rejecting family mismatches.
func resolveScheme(algorithm types.Algorithm, scheme types.SignatureScheme) (types.SignatureScheme, error) {
	if scheme == "" {
		return types.DefaultScheme(algorithm)
	}
	if !scheme.IsValid() {
		return "", types.NewValidationError("scheme",
			fmt.Sprintf("unsupported scheme %q", scheme), types.ErrUnsupportedAlgorithm)
	}
	if !scheme.MatchesFamily(algorithm.Family()) {
		return "", types.NewValidationError("scheme",
			fmt.Sprintf("scheme %s does not apply to %s keys", scheme, algorithm),
			types.ErrUnsupportedAlgorithm)
	}
	return scheme, nil
}

// prepareSignInput converts the caller's input into the digest and
// signer options crypto.Signer.Sign expects for the scheme.
func prepareSignInput(scheme types.SignatureScheme, input []byte, prehashed bool) ([]byte, crypto.SignerOpts, error) {
	if scheme == types.SchemeEd25519 {
		if prehashed {
			return nil, nil, types.NewValidationError("scheme",
				"ed25519 signs full messages only", ErrDigestSigning)
		}
		// crypto.Hash(0) tells Ed25519 to sign the message itself.
		return input, crypto.Hash(0), nil
	}

	hash := scheme.Hash()
	var digest []byte
	if prehashed {
		if len(input) != hash.Size() {
			return nil, nil, types.NewValidationError("digest",
				fmt.Sprintf("digest must be %d bytes for %s, got %d", hash.Size(), scheme, len(input)),
				nil)
		}
		digest = input
	} else {
		h := hash.New()
		h.Write(input)
		digest = h.Sum(nil)
	}

	var opts crypto.SignerOpts = hash
	if scheme == types.SchemeRSAPSSSHA256 {
		opts = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: hash}
	}
	return digest, opts, nil
}

// withPrivateKey unseals the record's private key, runs fn, and wipes
// the key afterward. Concurrent unseals of the same key version under
// the same passphrase are coalesced; a shared key is left to the
// garbage collector rather than wiped under a sibling's feet.
func (s *KeyStore) withPrivateKey(record *types.KeyRecord, passphrase *types.Password, fn func(crypto.Signer) error) error {
	flightKey := unsealFlightKey(record.Name, record.Version, passphrase)

	v, err, shared := s.unseals.Do(flightKey, func() (any, error) {
		return unsealPrivateKey(record, passphrase)
	})
	if err != nil {
		return err
	}

	signer := v.(crypto.Signer)
	if !shared {
		defer wipePrivateKey(signer)
	}
	return fn(signer)
}

// unsealFlightKey derives the coalescing key for an unseal. The
// passphrase is folded through SHA-256 so it never sits in the flight
// map, and the key version is included so rotations never share.
func unsealFlightKey(name string, version int, passphrase *types.Password) string {
	h := sha256.New()
	h.Write([]byte(name))
	h.Write([]byte{0})
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], uint64(version))
	h.Write(v[:])
	h.Write([]byte{0})
	h.Write(passphrase.Bytes())
	return hex.EncodeToString(h.Sum(nil))
}

// WithSigner unseals the private key of an active key and runs fn
// with it. The key is wiped (or left to the garbage collector when a
// concurrent caller shares it) once fn returns; fn must not retain it.
func (s *KeyStore) WithSigner(ctx context.Context, name string, passphrase *types.Password, fn func(crypto.Signer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	record, err := s.loadRecord(name)
	if err != nil {
		return err
	}
	if !record.Status.CanSign() {
		return types.NewAuthorizationError("sign",
			fmt.Sprintf("key %q is %s", name, record.Status), statusSentinel(record.Status))
	}
	return s.withPrivateKey(record, passphrase, fn)
}

// PublicKey returns the current public key of a stored key.
func (s *KeyStore) PublicKey(ctx context.Context, name string) (crypto.PublicKey, error) {
	record, err := s.loadRecord(name)
	if err != nil {
		return nil, err
	}
	return ParsePublicKeyPEM(record.PublicKeyPEM)
}

// ResolveVerificationKey finds the public key matching a fingerprint,
// searching current and superseded versions of every stored key.
// Revoked and deleted keys still resolve; whether their signatures are
// accepted is a trust decision, not a lookup decision.
func (s *KeyStore) ResolveVerificationKey(ctx context.Context, fingerprint string) (crypto.PublicKey, types.Algorithm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, "", ErrClosed
	}

	keys, err := s.backend.List(storage.PrefixKeys)
	if err != nil {
		return nil, "", fmt.Errorf("keystore: listing keys: %w", err)
	}

	for _, k := range keys {
		data, err := s.backend.Get(k)
		if err != nil {
			continue
		}
		var record types.KeyRecord
		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}
		if record.Fingerprint == fingerprint {
			pub, err := ParsePublicKeyPEM(record.PublicKeyPEM)
			if err != nil {
				return nil, "", err
			}
			return pub, record.Algorithm, nil
		}
		for _, prev := range record.PreviousKeys {
			if prev.Fingerprint == fingerprint {
				pub, err := ParsePublicKeyPEM(prev.PublicKeyPEM)
				if err != nil {
					return nil, "", err
				}
				return pub, record.Algorithm, nil
			}
		}
	}
	return nil, "", types.NewNotFoundError("key fingerprint", fingerprint, types.ErrKeyNotFound)
}
