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

package multisig

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-signet/pkg/envelope"
	"github.com/jeremyhahn/go-signet/pkg/keystore"
	"github.com/jeremyhahn/go-signet/pkg/signing"
	"github.com/jeremyhahn/go-signet/pkg/storage/memory"
	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/jeremyhahn/go-signet/pkg/verification"
)

const testPassphrase = "correct horse battery staple"

type rig struct {
	store  *keystore.KeyStore
	signer *signing.Signer
	coord  *Coordinator
}

// newTestRig builds a coordinator over an in-memory keystore holding
// one Ed25519 key per named participant.
func newTestRig(t *testing.T, names ...string) *rig {
	t.Helper()
	store, err := keystore.New(&keystore.Config{Backend: memory.New()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for _, name := range names {
		_, err := store.Generate(context.Background(), name, types.AlgorithmEd25519,
			types.PasswordFromString(testPassphrase))
		require.NoError(t, err)
	}

	signer, err := signing.New(&signing.Config{KeyStore: store})
	require.NoError(t, err)

	coord := New(&Config{
		Verifier:      verification.New(&verification.Config{KeyStore: store}),
		SweepInterval: -1,
	})
	t.Cleanup(func() { _ = coord.Close() })

	return &rig{store: store, signer: signer, coord: coord}
}

func (r *rig) sign(t *testing.T, keyName string, data []byte) []byte {
	t.Helper()
	res, err := r.signer.Sign(context.Background(), data, keyName,
		types.PasswordFromString(testPassphrase), nil)
	require.NoError(t, err)
	return res.Encoded
}

func (r *rig) create(t *testing.T, data []byte, threshold int, participants ...string) *Session {
	t.Helper()
	snap, err := r.coord.CreateSession(context.Background(), &SessionSpec{
		Data:         data,
		Threshold:    threshold,
		Participants: participants,
	})
	require.NoError(t, err)
	return snap
}

func TestCreateSessionValidation(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	data := []byte("release-v2.1.0")

	_, err := r.coord.CreateSession(ctx, nil)
	assert.True(t, types.IsValidation(err))

	_, err = r.coord.CreateSession(ctx, &SessionSpec{
		Threshold: 1, Participants: []string{"alice"},
	})
	require.ErrorIs(t, err, types.ErrEmptyInput)

	_, err = r.coord.CreateSession(ctx, &SessionSpec{Data: data, Threshold: 1})
	require.ErrorIs(t, err, types.ErrEmptyParticipants)

	_, err = r.coord.CreateSession(ctx, &SessionSpec{
		Data: data, Threshold: 1, Participants: []string{"alice", "bob", "alice"},
	})
	require.ErrorIs(t, err, types.ErrDuplicateParticipant)

	_, err = r.coord.CreateSession(ctx, &SessionSpec{
		Data: data, Threshold: 1, Participants: []string{"alice", "bad/../name"},
	})
	assert.True(t, types.IsValidation(err))

	for _, threshold := range []int{0, -1, 4} {
		_, err = r.coord.CreateSession(ctx, &SessionSpec{
			Data: data, Threshold: threshold, Participants: []string{"alice", "bob", "carol"},
		})
		require.ErrorIs(t, err, types.ErrInvalidThreshold, "threshold %d", threshold)
	}

	assert.Empty(t, r.coord.List(ctx), "rejected specs must not register sessions")
}

func TestSessionSnapshot(t *testing.T) {
	r := newTestRig(t)
	data := []byte("deploy manifest")

	snap := r.create(t, data, 2, "alice", "bob", "carol")
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, StatusPending, snap.Status)
	assert.Equal(t, envelope.HashPayload(data), snap.DataHash)
	assert.Equal(t, 2, snap.Threshold)
	assert.Equal(t, []string{"alice", "bob", "carol"}, snap.Participants)
	assert.Equal(t, []string{"alice", "bob", "carol"}, snap.Pending)
	assert.Zero(t, snap.Collected)
	assert.False(t, snap.ThresholdMet)
	require.NotNil(t, snap.ExpiresAt, "default TTL applies when the spec sets none")
	assert.True(t, snap.ExpiresAt.After(snap.CreatedAt))
}

func TestThresholdMonotonicity(t *testing.T) {
	r := newTestRig(t, "alice", "bob", "carol")
	ctx := context.Background()
	data := []byte("joint statement")

	session := r.create(t, data, 2, "alice", "bob", "carol")

	snap, err := r.coord.CollectSignature(ctx, session.ID, "alice", r.sign(t, "alice", data))
	require.NoError(t, err)
	assert.Equal(t, StatusCollecting, snap.Status)
	assert.Equal(t, 1, snap.Collected)
	assert.False(t, snap.ThresholdMet, "one of two required signatures")
	assert.Equal(t, []string{"bob", "carol"}, snap.Pending)

	snap, err = r.coord.CollectSignature(ctx, session.ID, "bob", r.sign(t, "bob", data))
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Collected)
	assert.True(t, snap.ThresholdMet)

	// Collection beyond the threshold still succeeds and still counts.
	snap, err = r.coord.CollectSignature(ctx, session.ID, "carol", r.sign(t, "carol", data))
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Collected)
	assert.True(t, snap.ThresholdMet)
	assert.Empty(t, snap.Pending)
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	r := newTestRig(t, "alice", "bob")
	ctx := context.Background()
	data := []byte("payload")

	session := r.create(t, data, 2, "alice", "bob")
	_, err := r.coord.CollectSignature(ctx, session.ID, "alice", r.sign(t, "alice", data))
	require.NoError(t, err)

	// A fresh signature from the same participant is still a duplicate.
	_, err = r.coord.CollectSignature(ctx, session.ID, "alice", r.sign(t, "alice", data))
	require.ErrorIs(t, err, types.ErrDuplicateSubmission)
	assert.True(t, types.IsConcurrency(err))

	snap, err := r.coord.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Collected, "rejected duplicates must not change the count")
}

func TestCollectNonParticipant(t *testing.T) {
	r := newTestRig(t, "alice", "mallory")
	ctx := context.Background()
	data := []byte("payload")

	session := r.create(t, data, 1, "alice")
	_, err := r.coord.CollectSignature(ctx, session.ID, "mallory", r.sign(t, "mallory", data))
	require.ErrorIs(t, err, types.ErrNotAParticipant)
	assert.True(t, types.IsAuthorization(err))

	snap, err := r.coord.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Zero(t, snap.Collected)
}

func TestCollectValidation(t *testing.T) {
	r := newTestRig(t, "alice", "bob")
	ctx := context.Background()
	data := []byte("payload")
	session := r.create(t, data, 1, "alice", "bob")
	encoded := r.sign(t, "alice", data)

	_, err := r.coord.CollectSignature(ctx, session.ID, "", encoded)
	assert.True(t, types.IsValidation(err))

	_, err = r.coord.CollectSignature(ctx, session.ID, "alice", nil)
	require.ErrorIs(t, err, types.ErrEmptyInput)

	_, err = r.coord.CollectSignature(ctx, session.ID, "alice", []byte("not an envelope"))
	require.ErrorIs(t, err, types.ErrMalformedEnvelope)
	assert.True(t, types.IsIntegrity(err))

	// An envelope produced by a different key than the claimed
	// participant is refused outright.
	_, err = r.coord.CollectSignature(ctx, session.ID, "bob", encoded)
	assert.True(t, types.IsValidation(err))

	_, err = r.coord.CollectSignature(ctx, "b2f4f8e2-0000-0000-0000-000000000000", "alice", encoded)
	require.ErrorIs(t, err, types.ErrSessionNotFound)
	assert.True(t, types.IsNotFound(err))
}

func TestVerifyMultiSignature(t *testing.T) {
	r := newTestRig(t, "alice", "bob", "carol")
	ctx := context.Background()
	data := []byte("artifact digest manifest")

	session := r.create(t, data, 2, "alice", "bob", "carol")
	for _, name := range []string{"alice", "bob"} {
		_, err := r.coord.CollectSignature(ctx, session.ID, name, r.sign(t, name, data))
		require.NoError(t, err)
	}

	result, err := r.coord.VerifyMultiSignature(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.True(t, result.ThresholdMet)
	assert.Equal(t, 2, result.Collected)
	assert.Empty(t, result.Failed)
	require.Len(t, result.Verified, 2)
	for _, v := range result.Verified {
		assert.NotEmpty(t, v.Fingerprint)
		assert.Equal(t, types.AlgorithmEd25519, v.Algorithm)
	}
}

func TestVerifyPartitionsFailures(t *testing.T) {
	r := newTestRig(t, "alice", "bob")
	ctx := context.Background()
	data := []byte("the agreed payload")

	session := r.create(t, data, 2, "alice", "bob")
	_, err := r.coord.CollectSignature(ctx, session.ID, "alice", r.sign(t, "alice", data))
	require.NoError(t, err)

	// Bob signed something else entirely. Collection accepts the
	// envelope; verification is where it falls over.
	_, err = r.coord.CollectSignature(ctx, session.ID, "bob", r.sign(t, "bob", []byte("something else")))
	require.NoError(t, err)

	result, err := r.coord.VerifyMultiSignature(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, result.Valid, "one failed signature fails the combined verdict")
	assert.True(t, result.ThresholdMet)
	require.Len(t, result.Verified, 1)
	assert.Equal(t, "alice", result.Verified[0].KeyName)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "bob", result.Failed[0].KeyName)
	assert.Equal(t, types.ReasonInvalidSignature, result.Failed[0].Reason)
}

func TestVerifyBelowThreshold(t *testing.T) {
	r := newTestRig(t, "alice", "bob")
	ctx := context.Background()
	data := []byte("payload")

	session := r.create(t, data, 2, "alice", "bob")
	_, err := r.coord.CollectSignature(ctx, session.ID, "alice", r.sign(t, "alice", data))
	require.NoError(t, err)

	result, err := r.coord.VerifyMultiSignature(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, result.Valid, "a good signature below threshold is not authorization")
	assert.False(t, result.ThresholdMet)
	assert.Len(t, result.Verified, 1)
	assert.Empty(t, result.Failed)
}

func TestVerifyWithoutVerifier(t *testing.T) {
	coord := New(&Config{SweepInterval: -1})
	t.Cleanup(func() { _ = coord.Close() })

	snap, err := coord.CreateSession(context.Background(), &SessionSpec{
		Data: []byte("x"), Threshold: 1, Participants: []string{"alice"},
	})
	require.NoError(t, err, "collection does not need a verifier")

	_, err = coord.VerifyMultiSignature(context.Background(), snap.ID)
	assert.True(t, types.IsValidation(err))
}

func TestTerminalImmutability(t *testing.T) {
	r := newTestRig(t, "alice", "bob")
	ctx := context.Background()
	data := []byte("payload")

	completed := r.create(t, data, 1, "alice", "bob")
	_, err := r.coord.CollectSignature(ctx, completed.ID, "alice", r.sign(t, "alice", data))
	require.NoError(t, err)

	snap, err := r.coord.CompleteSession(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snap.Status)
	require.NotNil(t, snap.CompletedAt)

	_, err = r.coord.CollectSignature(ctx, completed.ID, "bob", r.sign(t, "bob", data))
	require.ErrorIs(t, err, types.ErrSessionTerminal)
	assert.True(t, types.IsConcurrency(err))
	_, err = r.coord.ResetSession(ctx, completed.ID)
	require.ErrorIs(t, err, types.ErrSessionTerminal)
	_, err = r.coord.CancelSession(ctx, completed.ID)
	require.ErrorIs(t, err, types.ErrSessionTerminal)
	_, err = r.coord.CompleteSession(ctx, completed.ID)
	require.ErrorIs(t, err, types.ErrSessionTerminal)

	cancelled := r.create(t, data, 1, "alice")
	snap, err = r.coord.CancelSession(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, snap.Status)
	require.NotNil(t, snap.CancelledAt)

	_, err = r.coord.CollectSignature(ctx, cancelled.ID, "alice", r.sign(t, "alice", data))
	require.ErrorIs(t, err, types.ErrSessionTerminal)

	// Verification stays available on terminal sessions.
	result, err := r.coord.VerifyMultiSignature(ctx, completed.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestResetSession(t *testing.T) {
	r := newTestRig(t, "alice", "bob")
	ctx := context.Background()
	data := []byte("payload")

	session := r.create(t, data, 2, "alice", "bob")
	for _, name := range []string{"alice", "bob"} {
		_, err := r.coord.CollectSignature(ctx, session.ID, name, r.sign(t, name, data))
		require.NoError(t, err)
	}

	snap, err := r.coord.ResetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, snap.Status)
	assert.Zero(t, snap.Collected)
	assert.False(t, snap.ThresholdMet)
	assert.Equal(t, []string{"alice", "bob"}, snap.Pending)

	// Participants whose submissions were discarded may sign again.
	snap, err = r.coord.CollectSignature(ctx, session.ID, "alice", r.sign(t, "alice", data))
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Collected)
}

func TestSessionExpiry(t *testing.T) {
	r := newTestRig(t, "alice")
	ctx := context.Background()
	data := []byte("payload")

	snap, err := r.coord.CreateSession(ctx, &SessionSpec{
		Data: data, Threshold: 1, Participants: []string{"alice"}, TTL: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, r.coord.SweepExpired(ctx))
	assert.Zero(t, r.coord.SweepExpired(ctx), "a session expires once")

	got, err := r.coord.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)

	_, err = r.coord.CollectSignature(ctx, snap.ID, "alice", r.sign(t, "alice", data))
	require.ErrorIs(t, err, types.ErrSessionTerminal)
	_, err = r.coord.ResetSession(ctx, snap.ID)
	require.ErrorIs(t, err, types.ErrSessionTerminal)

	// Expiry is also enforced lazily, without a sweep in between.
	lazy, err := r.coord.CreateSession(ctx, &SessionSpec{
		Data: data, Threshold: 1, Participants: []string{"alice"}, TTL: time.Millisecond,
	})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = r.coord.CollectSignature(ctx, lazy.ID, "alice", r.sign(t, "alice", data))
	require.ErrorIs(t, err, types.ErrSessionTerminal)
}

func TestBackgroundSweep(t *testing.T) {
	coord := New(&Config{SweepInterval: 10 * time.Millisecond})
	t.Cleanup(func() { _ = coord.Close() })

	snap, err := coord.CreateSession(context.Background(), &SessionSpec{
		Data: []byte("x"), Threshold: 1, Participants: []string{"alice"}, TTL: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		got, err := coord.Get(context.Background(), snap.ID)
		return err == nil && got.Status == StatusExpired
	}, 2*time.Second, 10*time.Millisecond, "background sweep must reclaim the session")

	require.NoError(t, coord.Close())
	require.NoError(t, coord.Close(), "closing twice is harmless")
}

func TestConcurrentDistinctCollection(t *testing.T) {
	names := []string{"p0", "p1", "p2", "p3", "p4", "p5"}
	r := newTestRig(t, names...)
	ctx := context.Background()
	data := []byte("payload")

	session := r.create(t, data, len(names), names...)
	envelopes := make(map[string][]byte, len(names))
	for _, name := range names {
		envelopes[name] = r.sign(t, name, data)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(names))
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			_, errs[i] = r.coord.CollectSignature(ctx, session.ID, name, envelopes[name])
		}(i, name)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "participant %s", names[i])
	}
	snap, err := r.coord.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, len(names), snap.Collected, "no submission may be lost")
	assert.True(t, snap.ThresholdMet)
}

func TestConcurrentDuplicateRace(t *testing.T) {
	r := newTestRig(t, "alice", "bob")
	ctx := context.Background()
	data := []byte("payload")

	session := r.create(t, data, 2, "alice", "bob")
	encoded := r.sign(t, "alice", data)

	const racers = 4
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.coord.CollectSignature(ctx, session.ID, "alice", encoded)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
		} else {
			require.ErrorIs(t, err, types.ErrDuplicateSubmission)
		}
	}
	assert.Equal(t, 1, accepted, "exactly one racer may claim the slot")

	snap, err := r.coord.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Collected)
}

func TestListAndPrune(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()
	data := []byte("payload")

	first := r.create(t, data, 1, "alice")
	second := r.create(t, data, 1, "bob")

	sessions := r.coord.List(ctx)
	require.Len(t, sessions, 2)
	assert.False(t, sessions[1].CreatedAt.Before(sessions[0].CreatedAt))

	_, err := r.coord.CompleteSession(ctx, first.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, r.coord.Prune(0), "only terminal sessions are pruned")
	_, err = r.coord.Get(ctx, first.ID)
	require.ErrorIs(t, err, types.ErrSessionNotFound)

	sessions = r.coord.List(ctx)
	require.Len(t, sessions, 1)
	assert.Equal(t, second.ID, sessions[0].ID)
}
