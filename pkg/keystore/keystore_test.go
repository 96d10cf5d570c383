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
	"errors"
	"strings"
	"testing"

	"github.com/jeremyhahn/go-signet/pkg/storage/memory"
	"github.com/jeremyhahn/go-signet/pkg/types"
)

// newTestStore creates a KeyStore backed by in-memory storage.
func newTestStore(t *testing.T) *KeyStore {
	t.Helper()

	store, err := New(&Config{Backend: memory.New()})
	if err != nil {
		t.Fatalf("Failed to create keystore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testPassphrase() *types.Password {
	return types.PasswordFromString("correct horse battery staple")
}

// TestGenerate verifies key generation for each algorithm family.
func TestGenerate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	testCases := []struct {
		name      string
		algorithm types.Algorithm
	}{
		{"rsa-2048", types.AlgorithmRSA2048},
		{"ecdsa-p256", types.AlgorithmECDSAP256},
		{"ecdsa-p384", types.AlgorithmECDSAP384},
		{"ed25519", types.AlgorithmEd25519},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			info, err := store.Generate(ctx, "gen-"+tc.name, tc.algorithm, testPassphrase())
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}

			if info.Name != "gen-"+tc.name {
				t.Errorf("Expected name %q, got %q", "gen-"+tc.name, info.Name)
			}
			if info.Algorithm != tc.algorithm {
				t.Errorf("Expected algorithm %s, got %s", tc.algorithm, info.Algorithm)
			}
			if info.Status != types.KeyStatusActive {
				t.Errorf("Expected status active, got %s", info.Status)
			}
			if info.Version != 1 {
				t.Errorf("Expected version 1, got %d", info.Version)
			}
			if len(info.Fingerprint) != 64 {
				t.Errorf("Expected 64 hex char fingerprint, got %d chars", len(info.Fingerprint))
			}
		})
	}
}

// TestGenerateDuplicateName verifies that a name can never be reused.
func TestGenerateDuplicateName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Generate(ctx, "dup", types.AlgorithmEd25519, testPassphrase())
	if err != nil {
		t.Fatalf("First Generate failed: %v", err)
	}

	_, err = store.Generate(ctx, "dup", types.AlgorithmEd25519, testPassphrase())
	if !errors.Is(err, types.ErrDuplicateName) {
		t.Errorf("Expected ErrDuplicateName, got %v", err)
	}
	if !types.IsValidation(err) {
		t.Errorf("Duplicate name should classify as validation error, got %v", err)
	}
}

// TestGenerateNameNotRecycledAfterDelete verifies deleted key names
// stay reserved.
func TestGenerateNameNotRecycledAfterDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Generate(ctx, "reserved", types.AlgorithmEd25519, testPassphrase())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if err := store.Delete(ctx, "reserved"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, err = store.Generate(ctx, "reserved", types.AlgorithmEd25519, testPassphrase())
	if !errors.Is(err, types.ErrDuplicateName) {
		t.Errorf("Expected ErrDuplicateName for deleted key name, got %v", err)
	}
}

// TestGenerateInvalidInput verifies validation of names, algorithms,
// and passphrases.
func TestGenerateInvalidInput(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	testCases := []struct {
		name       string
		keyName    string
		algorithm  types.Algorithm
		passphrase *types.Password
	}{
		{"empty name", "", types.AlgorithmEd25519, testPassphrase()},
		{"traversal name", "../escape", types.AlgorithmEd25519, testPassphrase()},
		{"name with slash", "a/b", types.AlgorithmEd25519, testPassphrase()},
		{"unknown algorithm", "k1", types.Algorithm("dsa"), testPassphrase()},
		{"empty passphrase", "k2", types.AlgorithmEd25519, types.PasswordFromString("")},
		{"short passphrase", "k3", types.AlgorithmEd25519, types.PasswordFromString("short")},
		{"uniform passphrase", "k4", types.AlgorithmEd25519, types.PasswordFromString("aaaaaaaaaa")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.Generate(ctx, tc.keyName, tc.algorithm, tc.passphrase)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !types.IsValidation(err) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

// TestGetAndList verifies record retrieval and listing.
func TestGetAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	names := []string{"alpha", "beta", "gamma"}
	for _, name := range names {
		if _, err := store.Generate(ctx, name, types.AlgorithmEd25519, testPassphrase()); err != nil {
			t.Fatalf("Generate %s failed: %v", name, err)
		}
	}

	info, err := store.Get(ctx, "beta")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if info.Name != "beta" {
		t.Errorf("Expected beta, got %s", info.Name)
	}

	_, err = store.Get(ctx, "missing")
	if !errors.Is(err, types.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
	if !types.IsNotFound(err) {
		t.Errorf("Missing key should classify as not found, got %v", err)
	}

	infos, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(infos) != len(names) {
		t.Fatalf("Expected %d keys, got %d", len(names), len(infos))
	}
}

// TestRevoke verifies revocation blocks signing but keeps the record.
func TestRevoke(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Generate(ctx, "revokee", types.AlgorithmEd25519, testPassphrase()); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if err := store.Revoke(ctx, "revokee"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	info, err := store.Get(ctx, "revokee")
	if err != nil {
		t.Fatalf("Get after revoke failed: %v", err)
	}
	if info.Status != types.KeyStatusRevoked {
		t.Errorf("Expected revoked status, got %s", info.Status)
	}

	// Revoking twice is a state conflict.
	err = store.Revoke(ctx, "revokee")
	if !types.IsConcurrency(err) {
		t.Errorf("Expected concurrency error on double revoke, got %v", err)
	}
}

// TestDelete verifies deletion drops private material and is terminal.
func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Generate(ctx, "doomed", types.AlgorithmEd25519, testPassphrase()); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if err := store.Delete(ctx, "doomed"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	info, err := store.Get(ctx, "doomed")
	if err != nil {
		t.Fatalf("Get after delete failed: %v", err)
	}
	if info.Status != types.KeyStatusDeleted {
		t.Errorf("Expected deleted status, got %s", info.Status)
	}

	// Deletion is terminal.
	err = store.Revoke(ctx, "doomed")
	if !errors.Is(err, types.ErrKeyDeleted) {
		t.Errorf("Expected ErrKeyDeleted on revoke after delete, got %v", err)
	}
	err = store.Delete(ctx, "doomed")
	if err == nil {
		t.Error("Expected error on double delete")
	}

	// Public material survives so old signatures stay checkable.
	pemData, err := store.ExportPublicPEM(ctx, "doomed")
	if err != nil {
		t.Fatalf("ExportPublicPEM after delete failed: %v", err)
	}
	if !strings.Contains(pemData, "PUBLIC KEY") {
		t.Error("Expected public key PEM after delete")
	}
}

// TestRotate verifies rotation bumps the version and archives the
// superseded public material.
func TestRotate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	passphrase := testPassphrase()

	first, err := store.Generate(ctx, "rotator", types.AlgorithmECDSAP256, passphrase)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	second, err := store.Rotate(ctx, "rotator", passphrase)
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	if second.Version != 2 {
		t.Errorf("Expected version 2, got %d", second.Version)
	}
	if second.Fingerprint == first.Fingerprint {
		t.Error("Rotation should change the fingerprint")
	}
	if second.RotatedAt == nil {
		t.Error("Expected RotatedAt to be set")
	}

	// The superseded version must still resolve by fingerprint.
	pub, algorithm, err := store.ResolveVerificationKey(ctx, first.Fingerprint)
	if err != nil {
		t.Fatalf("ResolveVerificationKey for old fingerprint failed: %v", err)
	}
	if pub == nil {
		t.Fatal("Expected public key for old fingerprint")
	}
	if algorithm != types.AlgorithmECDSAP256 {
		t.Errorf("Expected ecdsa-p256, got %s", algorithm)
	}
}

// TestRotateWrongPassphrase verifies the current passphrase gates
// rotation.
func TestRotateWrongPassphrase(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Generate(ctx, "guarded", types.AlgorithmEd25519, testPassphrase()); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	_, err := store.Rotate(ctx, "guarded", types.PasswordFromString("wrong but long enough"))
	if !errors.Is(err, types.ErrWrongPassphrase) {
		t.Errorf("Expected ErrWrongPassphrase, got %v", err)
	}
	if !types.IsAuthorization(err) {
		t.Errorf("Wrong passphrase should classify as authorization error, got %v", err)
	}
}

// TestRotateRevokedKey verifies revoked keys cannot rotate.
func TestRotateRevokedKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Generate(ctx, "frozen", types.AlgorithmEd25519, testPassphrase()); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if err := store.Revoke(ctx, "frozen"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	_, err := store.Rotate(ctx, "frozen", testPassphrase())
	if !errors.Is(err, types.ErrKeyRevoked) {
		t.Errorf("Expected ErrKeyRevoked, got %v", err)
	}
}

// TestFingerprintAndExport verifies fingerprint stability and PEM
// export round-trip.
func TestFingerprintAndExport(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	info, err := store.Generate(ctx, "printed", types.AlgorithmEd25519, testPassphrase())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	fp, err := store.Fingerprint(ctx, "printed")
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if fp != info.Fingerprint {
		t.Errorf("Fingerprint mismatch: %s vs %s", fp, info.Fingerprint)
	}

	pemData, err := store.ExportPublicPEM(ctx, "printed")
	if err != nil {
		t.Fatalf("ExportPublicPEM failed: %v", err)
	}

	pub, err := ParsePublicKeyPEM(pemData)
	if err != nil {
		t.Fatalf("Exported PEM does not parse: %v", err)
	}

	derived, err := Fingerprint(pub)
	if err != nil {
		t.Fatalf("Fingerprint of parsed key failed: %v", err)
	}
	if derived != fp {
		t.Errorf("Fingerprint of exported key differs: %s vs %s", derived, fp)
	}
}

// TestClose verifies operations fail after Close.
func TestClose(t *testing.T) {
	store, err := New(&Config{Backend: memory.New()})
	if err != nil {
		t.Fatalf("Failed to create keystore: %v", err)
	}

	ctx := context.Background()
	if _, err := store.Generate(ctx, "pre-close", types.AlgorithmEd25519, testPassphrase()); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := store.Generate(ctx, "post-close", types.AlgorithmEd25519, testPassphrase()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Generate, got %v", err)
	}
	if _, err := store.Get(ctx, "pre-close"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from Get, got %v", err)
	}
	if _, err := store.List(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from List, got %v", err)
	}
}

// TestNewRequiresBackend verifies construction fails without storage.
func TestNewRequiresBackend(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrBackendRequired) {
		t.Errorf("Expected ErrBackendRequired for nil config, got %v", err)
	}
	if _, err := New(&Config{}); !errors.Is(err, ErrBackendRequired) {
		t.Errorf("Expected ErrBackendRequired for nil backend, got %v", err)
	}
}

// TestPassphrasePolicyMinLength verifies the configurable minimum.
func TestPassphrasePolicyMinLength(t *testing.T) {
	store, err := New(&Config{
		Backend: memory.New(),
		Policy:  PassphrasePolicy{MinLength: 16},
	})
	if err != nil {
		t.Fatalf("Failed to create keystore: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	_, err = store.Generate(ctx, "strict", types.AlgorithmEd25519, types.PasswordFromString("only twelve c"))
	if !errors.Is(err, types.ErrWeakPassphrase) {
		t.Errorf("Expected ErrWeakPassphrase under 16 char policy, got %v", err)
	}

	_, err = store.Generate(ctx, "strict", types.AlgorithmEd25519, types.PasswordFromString("sixteen chars ok"))
	if err != nil {
		t.Errorf("Expected 16 char passphrase to pass, got %v", err)
	}
}
