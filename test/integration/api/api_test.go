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

//go:build integration

// Package api exercises the REST API end-to-end through the Go
// client: a real server handler, a real engine on a file backend, and
// real HTTP in between.
package api

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-signet/internal/rest"
	"github.com/jeremyhahn/go-signet/pkg/client"
	"github.com/jeremyhahn/go-signet/pkg/keystore"
	"github.com/jeremyhahn/go-signet/pkg/multisig"
	"github.com/jeremyhahn/go-signet/pkg/signing"
	"github.com/jeremyhahn/go-signet/pkg/storage/file"
	"github.com/jeremyhahn/go-signet/pkg/trust"
	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/jeremyhahn/go-signet/pkg/verification"
	"github.com/jeremyhahn/go-signet/pkg/watcher"
)

const testPassphrase = "integration-test-passphrase"

// newTestClient stands up the complete server stack behind an
// httptest listener and returns a connected client against it.
func newTestClient(t *testing.T) *client.Client {
	t.Helper()

	backend, err := file.New(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)

	keys, err := keystore.New(&keystore.Config{Backend: backend})
	require.NoError(t, err)
	t.Cleanup(func() { _ = keys.Close() })

	registry, err := trust.New(&trust.Config{Backend: backend})
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	signer, err := signing.New(&signing.Config{KeyStore: keys})
	require.NoError(t, err)

	verifier := verification.New(&verification.Config{KeyStore: keys, Trust: registry})

	watchers, err := watcher.NewRegistry(&watcher.RegistryConfig{Signer: signer})
	require.NoError(t, err)
	t.Cleanup(func() { watchers.StopAll(context.Background()) })

	coordinator := multisig.New(&multisig.Config{Verifier: verifier})
	t.Cleanup(func() { _ = coordinator.Close() })

	server, err := rest.NewServer(&rest.Config{
		KeyStore: keys,
		Trust:    registry,
		Signer:   signer,
		Verifier: verifier,
		Watchers: watchers,
		MultiSig: coordinator,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	c, err := client.New(&client.Config{Address: ts.URL, Timeout: 30 * time.Second})
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })

	return c
}

// TestAPIKeyOperationsIntegration drives the key lifecycle over HTTP.
func TestAPIKeyOperationsIntegration(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	info, err := c.GenerateKey(ctx, &client.GenerateKeyRequest{
		Name:       "api-release",
		Algorithm:  string(types.AlgorithmEd25519),
		Passphrase: testPassphrase,
	})
	require.NoError(t, err)
	assert.Equal(t, "api-release", info.Name)
	assert.Equal(t, types.KeyStatusActive, info.Status)
	assert.NotEmpty(t, info.Fingerprint)

	keys, err := c.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	fetched, err := c.GetKey(ctx, "api-release")
	require.NoError(t, err)
	assert.Equal(t, info.Fingerprint, fetched.Fingerprint)

	rotated, err := c.RotateKey(ctx, "api-release", testPassphrase)
	require.NoError(t, err)
	assert.Equal(t, 2, rotated.Version)
	assert.NotEqual(t, info.Fingerprint, rotated.Fingerprint)

	exported, err := c.ExportKey(ctx, "api-release")
	require.NoError(t, err)
	assert.Contains(t, exported.PublicKeyPEM, "BEGIN PUBLIC KEY")

	revoked, err := c.RevokeKey(ctx, "api-release")
	require.NoError(t, err)
	assert.Equal(t, types.KeyStatusRevoked, revoked.Status)

	// Errors cross the wire with their taxonomy intact.
	_, err = c.GetKey(ctx, "no-such-key")
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err), "expected not-found across HTTP, got %v", err)

	_, err = c.GenerateKey(ctx, &client.GenerateKeyRequest{
		Name:       "bad name!",
		Algorithm:  string(types.AlgorithmEd25519),
		Passphrase: testPassphrase,
	})
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
}

// TestAPISignVerifyIntegration signs and verifies through the server.
func TestAPISignVerifyIntegration(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	data := []byte("remote signing payload")

	_, err := c.GenerateKey(ctx, &client.GenerateKeyRequest{
		Name:       "api-signer",
		Algorithm:  string(types.AlgorithmECDSAP256),
		Passphrase: testPassphrase,
	})
	require.NoError(t, err)

	signed, err := c.Sign(ctx, &client.SignRequest{
		KeyName:    "api-signer",
		Passphrase: testPassphrase,
		Data:       data,
		Metadata:   map[string]string{"pipeline": "integration"},
	})
	require.NoError(t, err)
	assert.Equal(t, "api-signer", signed.KeyName)
	assert.NotEmpty(t, signed.Envelope)

	verdict, err := c.Verify(ctx, &client.VerifyRequest{Data: data, Envelope: signed.Envelope})
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.Equal(t, "api-signer", verdict.KeyName)

	verdict, err = c.Verify(ctx, &client.VerifyRequest{Data: []byte("tampered"), Envelope: signed.Envelope})
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	assert.Equal(t, string(types.ReasonInvalidSignature), verdict.Reason)

	// Signing with the wrong passphrase is an authorization failure.
	_, err = c.Sign(ctx, &client.SignRequest{
		KeyName:    "api-signer",
		Passphrase: "wrong-passphrase-entirely",
		Data:       data,
	})
	require.Error(t, err)
	assert.True(t, types.IsAuthorization(err))
}

// TestAPITrustIntegration manages trust decisions over HTTP and sees
// them reflected in verification.
func TestAPITrustIntegration(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	data := []byte("trust over the wire")

	info, err := c.GenerateKey(ctx, &client.GenerateKeyRequest{
		Name:       "api-trusted",
		Algorithm:  string(types.AlgorithmEd25519),
		Passphrase: testPassphrase,
	})
	require.NoError(t, err)

	entry, err := c.AddTrust(ctx, &client.TrustRequest{
		Fingerprint: info.Fingerprint,
		KeyName:     "api-trusted",
		Description: "integration publisher",
	})
	require.NoError(t, err)
	assert.False(t, entry.Revoked())

	verdict, err := c.EvaluateTrust(ctx, info.Fingerprint)
	require.NoError(t, err)
	assert.True(t, verdict.Trusted)

	signed, err := c.Sign(ctx, &client.SignRequest{
		KeyName:    "api-trusted",
		Passphrase: testPassphrase,
		Data:       data,
	})
	require.NoError(t, err)

	result, err := c.Verify(ctx, &client.VerifyRequest{
		Data:       data,
		Envelope:   signed.Envelope,
		CheckTrust: true,
	})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.True(t, result.Trusted)

	revoked, err := c.RevokeTrust(ctx, info.Fingerprint, "rotated out")
	require.NoError(t, err)
	assert.True(t, revoked.Revoked())
	assert.Equal(t, "rotated out", revoked.RevocationReason)

	result, err = c.Verify(ctx, &client.VerifyRequest{
		Data:           data,
		Envelope:       signed.Envelope,
		RequireTrusted: true,
	})
	require.Error(t, err)
	assert.True(t, types.IsAuthorization(err))

	entries, err := c.ListTrust(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	reinstated, err := c.ReinstateTrust(ctx, info.Fingerprint, true, "back in rotation")
	require.NoError(t, err)
	assert.False(t, reinstated.Revoked())
}

// TestAPIMultiSigIntegration runs a threshold session entirely through
// the client.
func TestAPIMultiSigIntegration(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	data := []byte("remote quorum payload")

	for _, name := range []string{"api-alice", "api-bob"} {
		_, err := c.GenerateKey(ctx, &client.GenerateKeyRequest{
			Name:       name,
			Algorithm:  string(types.AlgorithmEd25519),
			Passphrase: testPassphrase,
		})
		require.NoError(t, err)
	}

	session, err := c.CreateSession(ctx, &client.CreateSessionRequest{
		Data:         data,
		Description:  "remote deploy approval",
		Threshold:    2,
		Participants: []string{"api-alice", "api-bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, multisig.StatusPending, session.Status)

	for _, name := range []string{"api-alice", "api-bob"} {
		signed, err := c.Sign(ctx, &client.SignRequest{
			KeyName:    name,
			Passphrase: testPassphrase,
			Data:       data,
		})
		require.NoError(t, err)

		session, err = c.CollectSignature(ctx, session.ID, name, signed.Envelope)
		require.NoError(t, err)
	}
	assert.True(t, session.ThresholdMet)
	assert.Equal(t, 2, session.Collected)

	verdict, err := c.VerifySession(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.Len(t, verdict.Verified, 2)

	session, err = c.CompleteSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, multisig.StatusCompleted, session.Status)

	sessions, err := c.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	// Submitting into a completed session is a conflict.
	signed, err := c.Sign(ctx, &client.SignRequest{
		KeyName:    "api-alice",
		Passphrase: testPassphrase,
		Data:       data,
	})
	require.NoError(t, err)
	_, err = c.CollectSignature(ctx, session.ID, "api-alice", signed.Envelope)
	require.Error(t, err)
	assert.True(t, types.IsConcurrency(err))
}

// TestAPIWatcherIntegration starts a watcher on the server and sees
// dropped files signed.
func TestAPIWatcherIntegration(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.GenerateKey(ctx, &client.GenerateKeyRequest{
		Name:       "api-watcher",
		Algorithm:  string(types.AlgorithmEd25519),
		Passphrase: testPassphrase,
	})
	require.NoError(t, err)

	dir := t.TempDir()
	info, err := c.StartWatcher(ctx, &client.StartWatcherRequest{
		Directory:    dir,
		KeyName:      "api-watcher",
		Passphrase:   testPassphrase,
		Patterns:     []string{"*.txt"},
		IgnoreHidden: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, info.ID)

	path := filepath.Join(dir, "remote-drop.txt")
	require.NoError(t, os.WriteFile(path, []byte("watched remotely"), 0600))

	sigPath := signing.SignatureFilePath(path)
	require.Eventually(t, func() bool {
		_, err := os.Stat(sigPath)
		return err == nil
	}, 10*time.Second, 50*time.Millisecond, "signature artifact never appeared")

	watchers, err := c.ListWatchers(ctx)
	require.NoError(t, err)
	require.Len(t, watchers, 1)

	fetched, err := c.GetWatcher(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, dir, fetched.Directory)

	require.Eventually(t, func() bool {
		activity, err := c.WatcherActivity(ctx, info.ID)
		return err == nil && len(activity) > 0
	}, 5*time.Second, 100*time.Millisecond, "no activity recorded")

	require.NoError(t, c.StopWatcher(ctx, info.ID))

	_, err = c.GetWatcher(ctx, "no-such-watcher")
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
}
