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

package trust

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-signet/pkg/storage/memory"
	"github.com/jeremyhahn/go-signet/pkg/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	registry, err := New(&Config{Backend: memory.New()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })
	return registry
}

// testFingerprint derives a deterministic fingerprint-shaped value.
func testFingerprint(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

func TestTrustAndEvaluate(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()
	fp := testFingerprint("release-key")

	entry, err := registry.Trust(ctx, fp, "release-key", "CI release signing key")
	require.NoError(t, err)
	assert.Equal(t, fp, entry.Fingerprint)
	assert.Equal(t, "release-key", entry.KeyName)
	assert.False(t, entry.Revoked())
	assert.False(t, entry.TrustedAt.IsZero())

	state, err := registry.Evaluate(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, types.TrustStateTrusted, state)
}

func TestEvaluateUnknownFingerprint(t *testing.T) {
	registry := newTestRegistry(t)

	state, err := registry.Evaluate(context.Background(), testFingerprint("never-registered"))
	require.NoError(t, err, "unknown fingerprints are a state, not an error")
	assert.Equal(t, types.TrustStateUntrusted, state)
}

func TestTrustDuplicate(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()
	fp := testFingerprint("dup")

	_, err := registry.Trust(ctx, fp, "dup", "")
	require.NoError(t, err)

	_, err = registry.Trust(ctx, fp, "dup", "")
	require.ErrorIs(t, err, types.ErrAlreadyTrusted)
	assert.True(t, types.IsConcurrency(err))
}

func TestRevoke(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()
	fp := testFingerprint("compromised")

	_, err := registry.Trust(ctx, fp, "compromised", "")
	require.NoError(t, err)

	entry, err := registry.Revoke(ctx, fp, "private key leaked")
	require.NoError(t, err)
	assert.True(t, entry.Revoked())
	assert.Equal(t, "private key leaked", entry.RevocationReason)

	state, err := registry.Evaluate(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, types.TrustStateRevoked, state)
}

func TestRevokeUnknown(t *testing.T) {
	registry := newTestRegistry(t)

	_, err := registry.Revoke(context.Background(), testFingerprint("ghost"), "reason")
	require.ErrorIs(t, err, types.ErrFingerprintUnknown)
	assert.True(t, types.IsNotFound(err))
}

func TestRevokeTwice(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()
	fp := testFingerprint("twice")

	_, err := registry.Trust(ctx, fp, "twice", "")
	require.NoError(t, err)
	_, err = registry.Revoke(ctx, fp, "first")
	require.NoError(t, err)

	_, err = registry.Revoke(ctx, fp, "second")
	require.ErrorIs(t, err, types.ErrFingerprintRevoked)
	assert.True(t, types.IsConcurrency(err))
}

// TestRevocationSticky verifies a revoked fingerprint cannot be
// re-trusted through the normal path.
func TestRevocationSticky(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()
	fp := testFingerprint("sticky")

	_, err := registry.Trust(ctx, fp, "sticky", "")
	require.NoError(t, err)
	_, err = registry.Revoke(ctx, fp, "rotation policy")
	require.NoError(t, err)

	_, err = registry.Trust(ctx, fp, "sticky", "")
	require.ErrorIs(t, err, types.ErrFingerprintRevoked)
	assert.True(t, types.IsAuthorization(err))

	state, err := registry.Evaluate(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, types.TrustStateRevoked, state, "failed re-trust must not change state")
}

func TestReinstate(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()
	fp := testFingerprint("reinstated")

	_, err := registry.Trust(ctx, fp, "reinstated", "original description")
	require.NoError(t, err)
	_, err = registry.Revoke(ctx, fp, "false alarm")
	require.NoError(t, err)

	// Without force the call is refused.
	_, err = registry.Reinstate(ctx, fp, nil)
	assert.True(t, types.IsValidation(err))
	_, err = registry.Reinstate(ctx, fp, &ReinstateOptions{})
	assert.True(t, types.IsValidation(err))

	entry, err := registry.Reinstate(ctx, fp, &ReinstateOptions{Force: true})
	require.NoError(t, err)
	assert.False(t, entry.Revoked())
	assert.Equal(t, "original description", entry.Description)

	state, err := registry.Evaluate(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, types.TrustStateTrusted, state)
}

func TestReinstateNotRevoked(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()
	fp := testFingerprint("healthy")

	_, err := registry.Trust(ctx, fp, "healthy", "")
	require.NoError(t, err)

	_, err = registry.Reinstate(ctx, fp, &ReinstateOptions{Force: true})
	require.ErrorIs(t, err, types.ErrNotRevoked)
}

// TestRevocationIndependence verifies revoking one fingerprint leaves
// every other entry untouched.
func TestRevocationIndependence(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	var fps []string
	for i := 0; i < 5; i++ {
		fp := testFingerprint(fmt.Sprintf("key-%d", i))
		fps = append(fps, fp)
		_, err := registry.Trust(ctx, fp, fmt.Sprintf("key-%d", i), "")
		require.NoError(t, err)
	}

	_, err := registry.Revoke(ctx, fps[2], "targeted revocation")
	require.NoError(t, err)

	for i, fp := range fps {
		state, err := registry.Evaluate(ctx, fp)
		require.NoError(t, err)
		if i == 2 {
			assert.Equal(t, types.TrustStateRevoked, state)
		} else {
			assert.Equal(t, types.TrustStateTrusted, state, "fingerprint %d should be unaffected", i)
		}
	}
}

func TestInvalidFingerprint(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	for _, fp := range []string{"", "not-hex", "ABCDEF", testFingerprint("x")[:32]} {
		_, err := registry.Trust(ctx, fp, "k", "")
		assert.True(t, types.IsValidation(err), "fingerprint %q should fail validation", fp)

		_, err = registry.Evaluate(ctx, fp)
		assert.Error(t, err)
	}
}

func TestListSorted(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()

	for _, seed := range []string{"cc", "aa", "bb"} {
		_, err := registry.Trust(ctx, testFingerprint(seed), seed, "")
		require.NoError(t, err)
	}

	entries, err := registry.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].Fingerprint, entries[i].Fingerprint)
	}
}

func TestGet(t *testing.T) {
	registry := newTestRegistry(t)
	ctx := context.Background()
	fp := testFingerprint("fetchable")

	_, err := registry.Get(ctx, fp)
	require.ErrorIs(t, err, types.ErrFingerprintUnknown)

	_, err = registry.Trust(ctx, fp, "fetchable", "desc")
	require.NoError(t, err)

	entry, err := registry.Get(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, "desc", entry.Description)
}

func TestRegistryClose(t *testing.T) {
	registry, err := New(&Config{Backend: memory.New()})
	require.NoError(t, err)
	require.NoError(t, registry.Close())

	ctx := context.Background()
	fp := testFingerprint("closed")

	_, err = registry.Trust(ctx, fp, "closed", "")
	require.ErrorIs(t, err, ErrClosed)
	_, err = registry.Evaluate(ctx, fp)
	require.ErrorIs(t, err, ErrClosed)
	_, err = registry.List(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestNewRequiresBackend(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, ErrBackendRequired)
	_, err = New(&Config{})
	require.ErrorIs(t, err, ErrBackendRequired)
}
