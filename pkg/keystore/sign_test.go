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
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"sync"
	"testing"

	"github.com/jeremyhahn/go-signet/pkg/types"
)

// verifyWithPublicKey checks a signature directly against the scheme,
// independent of the verification package.
func verifyWithPublicKey(t *testing.T, store *KeyStore, name string, message []byte, result *SignResult) {
	t.Helper()

	pub, err := store.PublicKey(context.Background(), name)
	if err != nil {
		t.Fatalf("PublicKey failed: %v", err)
	}

	switch result.Scheme {
	case types.SchemeEd25519:
		if !ed25519.Verify(pub.(ed25519.PublicKey), message, result.Signature) {
			t.Error("Ed25519 signature did not verify")
		}
	case types.SchemeRSAPKCS1SHA256:
		digest := sha256.Sum256(message)
		if err := rsa.VerifyPKCS1v15(pub.(*rsa.PublicKey), result.Scheme.Hash(), digest[:], result.Signature); err != nil {
			t.Errorf("RSA PKCS#1 v1.5 signature did not verify: %v", err)
		}
	case types.SchemeRSAPSSSHA256:
		digest := sha256.Sum256(message)
		if err := rsa.VerifyPSS(pub.(*rsa.PublicKey), result.Scheme.Hash(), digest[:], result.Signature, nil); err != nil {
			t.Errorf("RSA-PSS signature did not verify: %v", err)
		}
	case types.SchemeECDSASHA256:
		digest := sha256.Sum256(message)
		if !ecdsa.VerifyASN1(pub.(*ecdsa.PublicKey), digest[:], result.Signature) {
			t.Error("ECDSA signature did not verify")
		}
	default:
		t.Fatalf("Unhandled scheme %s", result.Scheme)
	}
}

// TestSignMessageRoundTrip verifies sign and verify across algorithms
// and schemes.
func TestSignMessageRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	message := []byte("the quick brown fox jumps over the lazy dog")

	testCases := []struct {
		name      string
		algorithm types.Algorithm
		scheme    types.SignatureScheme
		want      types.SignatureScheme
	}{
		{"ed25519 default", types.AlgorithmEd25519, "", types.SchemeEd25519},
		{"ecdsa-p256 default", types.AlgorithmECDSAP256, "", types.SchemeECDSASHA256},
		{"rsa-2048 default", types.AlgorithmRSA2048, "", types.SchemeRSAPKCS1SHA256},
		{"rsa-2048 pss", types.AlgorithmRSA2048, types.SchemeRSAPSSSHA256, types.SchemeRSAPSSSHA256},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			keyName := "sign-" + tc.name
			info, err := store.Generate(ctx, keyName, tc.algorithm, testPassphrase())
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}

			result, err := store.SignMessage(ctx, keyName, testPassphrase(), message, tc.scheme)
			if err != nil {
				t.Fatalf("SignMessage failed: %v", err)
			}

			if result.Scheme != tc.want {
				t.Errorf("Expected scheme %s, got %s", tc.want, result.Scheme)
			}
			if result.Fingerprint != info.Fingerprint {
				t.Errorf("Result fingerprint %s does not match key %s", result.Fingerprint, info.Fingerprint)
			}
			if result.KeyVersion != 1 {
				t.Errorf("Expected key version 1, got %d", result.KeyVersion)
			}
			if len(result.Signature) == 0 {
				t.Fatal("Empty signature")
			}

			verifyWithPublicKey(t, store, keyName, message, result)
		})
	}
}

// TestSignDigest verifies prehashed signing.
func TestSignDigest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Generate(ctx, "digester", types.AlgorithmECDSAP256, testPassphrase()); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	message := []byte("payload hashed by the caller")
	digest := sha256.Sum256(message)

	result, err := store.SignDigest(ctx, "digester", testPassphrase(), digest[:], types.SchemeECDSASHA256)
	if err != nil {
		t.Fatalf("SignDigest failed: %v", err)
	}
	verifyWithPublicKey(t, store, "digester", message, result)

	// Wrong digest length for the scheme.
	_, err = store.SignDigest(ctx, "digester", testPassphrase(), digest[:16], types.SchemeECDSASHA256)
	if !types.IsValidation(err) {
		t.Errorf("Expected validation error for short digest, got %v", err)
	}
}

// TestSignDigestEd25519Rejected verifies Ed25519 has no prehashed mode.
func TestSignDigestEd25519Rejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Generate(ctx, "pure-only", types.AlgorithmEd25519, testPassphrase()); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	digest := sha256.Sum256([]byte("data"))
	_, err := store.SignDigest(ctx, "pure-only", testPassphrase(), digest[:], types.SchemeEd25519)
	if !errors.Is(err, ErrDigestSigning) {
		t.Errorf("Expected ErrDigestSigning, got %v", err)
	}
}

// TestSignWrongPassphrase verifies unsealing gates signing.
func TestSignWrongPassphrase(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Generate(ctx, "locked", types.AlgorithmEd25519, testPassphrase()); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	_, err := store.SignMessage(ctx, "locked", types.PasswordFromString("not the passphrase"), []byte("data"), "")
	if !errors.Is(err, types.ErrWrongPassphrase) {
		t.Errorf("Expected ErrWrongPassphrase, got %v", err)
	}
	if !types.IsAuthorization(err) {
		t.Errorf("Wrong passphrase should classify as authorization error, got %v", err)
	}
}

// TestSignRevokedAndDeleted verifies lifecycle gates on signing.
func TestSignRevokedAndDeleted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"sign-revoked", "sign-deleted"} {
		if _, err := store.Generate(ctx, name, types.AlgorithmEd25519, testPassphrase()); err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
	}
	if err := store.Revoke(ctx, "sign-revoked"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if err := store.Delete(ctx, "sign-deleted"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, err := store.SignMessage(ctx, "sign-revoked", testPassphrase(), []byte("data"), "")
	if !errors.Is(err, types.ErrKeyRevoked) {
		t.Errorf("Expected ErrKeyRevoked, got %v", err)
	}

	_, err = store.SignMessage(ctx, "sign-deleted", testPassphrase(), []byte("data"), "")
	if !errors.Is(err, types.ErrKeyDeleted) {
		t.Errorf("Expected ErrKeyDeleted, got %v", err)
	}
}

// TestSignSchemeFamilyMismatch verifies schemes are bound to families.
func TestSignSchemeFamilyMismatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Generate(ctx, "family", types.AlgorithmEd25519, testPassphrase()); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	_, err := store.SignMessage(ctx, "family", testPassphrase(), []byte("data"), types.SchemeRSAPSSSHA256)
	if !errors.Is(err, types.ErrUnsupportedAlgorithm) {
		t.Errorf("Expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

// TestSignEmptyMessage verifies empty input is rejected.
func TestSignEmptyMessage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Generate(ctx, "empty-in", types.AlgorithmEd25519, testPassphrase()); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	_, err := store.SignMessage(ctx, "empty-in", testPassphrase(), nil, "")
	if !errors.Is(err, types.ErrEmptyInput) {
		t.Errorf("Expected ErrEmptyInput, got %v", err)
	}
}

// TestSignAfterRotate verifies signatures carry the new key version and
// old signatures verify against the archived public key.
func TestSignAfterRotate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	message := []byte("signed before rotation")

	if _, err := store.Generate(ctx, "versioned", types.AlgorithmEd25519, testPassphrase()); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	before, err := store.SignMessage(ctx, "versioned", testPassphrase(), message, "")
	if err != nil {
		t.Fatalf("SignMessage before rotation failed: %v", err)
	}

	if _, err := store.Rotate(ctx, "versioned", testPassphrase()); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	after, err := store.SignMessage(ctx, "versioned", testPassphrase(), message, "")
	if err != nil {
		t.Fatalf("SignMessage after rotation failed: %v", err)
	}
	if after.KeyVersion != 2 {
		t.Errorf("Expected key version 2, got %d", after.KeyVersion)
	}
	if after.Fingerprint == before.Fingerprint {
		t.Error("Rotation should change the signing fingerprint")
	}

	// The pre-rotation signature still verifies via the archived key.
	pub, _, err := store.ResolveVerificationKey(ctx, before.Fingerprint)
	if err != nil {
		t.Fatalf("ResolveVerificationKey failed: %v", err)
	}
	if !ed25519.Verify(pub.(ed25519.PublicKey), message, before.Signature) {
		t.Error("Pre-rotation signature did not verify against archived key")
	}
}

// TestResolveVerificationKeyUnknown verifies unknown fingerprints are
// reported as not found.
func TestResolveVerificationKeyUnknown(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.ResolveVerificationKey(context.Background(), "deadbeef")
	if !errors.Is(err, types.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
}

// TestConcurrentSigning verifies parallel signing with a shared key is
// race-free and produces valid signatures.
func TestConcurrentSigning(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Generate(ctx, "parallel", types.AlgorithmEd25519, testPassphrase()); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	results := make([]*SignResult, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n], errs[n] = store.SignMessage(ctx, "parallel", testPassphrase(), []byte("concurrent message"), "")
		}(i)
	}
	wg.Wait()

	pub, err := store.PublicKey(ctx, "parallel")
	if err != nil {
		t.Fatalf("PublicKey failed: %v", err)
	}
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("Worker %d failed: %v", i, errs[i])
		}
		if !ed25519.Verify(pub.(ed25519.PublicKey), []byte("concurrent message"), results[i].Signature) {
			t.Errorf("Worker %d produced an invalid signature", i)
		}
	}
}
