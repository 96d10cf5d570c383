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

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockServer serves canned responses for every route the client knows.
func mockServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","version":"test"}`))
	})

	mux.HandleFunc("/api/v1/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"keys":[{"name":"release","algorithm":"ed25519","status":"active"}]}`))
		case http.MethodPost:
			var req GenerateKeyRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"name":"` + req.Name + `","algorithm":"` + req.Algorithm + `","status":"active","fingerprint":"SHA256:abc"}`))
		}
	})

	mux.HandleFunc("/api/v1/keys/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		path := r.URL.Path

		if strings.HasSuffix(path, "/export") {
			_, _ = w.Write([]byte(`{"name":"release","fingerprint":"SHA256:abc","public_key_pem":"-----BEGIN PUBLIC KEY-----\nMCow\n-----END PUBLIC KEY-----\n"}`))
			return
		}
		if strings.HasSuffix(path, "/rotate") {
			_, _ = w.Write([]byte(`{"name":"release","algorithm":"ed25519","status":"active","version":2,"fingerprint":"SHA256:def"}`))
			return
		}
		if strings.HasSuffix(path, "/revoke") {
			_, _ = w.Write([]byte(`{"name":"release","algorithm":"ed25519","status":"revoked"}`))
			return
		}
		if strings.HasSuffix(path, "/missing") && r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"key not found: missing","code":404}`))
			return
		}
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"name":"release","algorithm":"ed25519","status":"active"}`))
		case http.MethodDelete:
			_, _ = w.Write([]byte(`{"success":true,"message":"key deleted"}`))
		}
	})

	mux.HandleFunc("/api/v1/trust", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"entries":[{"fingerprint":"SHA256:abc","key_name":"release","trusted_at":"2025-01-02T03:04:05Z"}]}`))
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"fingerprint":"SHA256:abc","key_name":"release","trusted_at":"2025-01-02T03:04:05Z"}`))
		}
	})

	mux.HandleFunc("/api/v1/trust/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/evaluate"):
			_, _ = w.Write([]byte(`{"fingerprint":"SHA256:abc","state":"trusted","trusted":true}`))
		case strings.HasSuffix(path, "/revoke"):
			_, _ = w.Write([]byte(`{"fingerprint":"SHA256:abc","key_name":"release","trusted_at":"2025-01-02T03:04:05Z","revoked_at":"2025-02-03T04:05:06Z","revocation_reason":"compromised"}`))
		case strings.HasSuffix(path, "/reinstate"):
			_, _ = w.Write([]byte(`{"fingerprint":"SHA256:abc","key_name":"release","trusted_at":"2025-02-04T05:06:07Z"}`))
		default:
			_, _ = w.Write([]byte(`{"fingerprint":"SHA256:abc","key_name":"release","trusted_at":"2025-01-02T03:04:05Z"}`))
		}
	})

	mux.HandleFunc("/api/v1/sign", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"key_name":"release","fingerprint":"SHA256:abc","format":"structured","envelope":"ZW52ZWxvcGU="}`))
	})

	mux.HandleFunc("/api/v1/verify", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"valid":true,"key_name":"release","fingerprint":"SHA256:abc"}`))
	})

	mux.HandleFunc("/api/v1/multisig/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`[{"id":"s1","threshold":2,"participants":["alice","bob"],"status":"pending"}]`))
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"s1","threshold":2,"participants":["alice","bob"],"status":"pending","pending":["alice","bob"]}`))
		}
	})

	mux.HandleFunc("/api/v1/multisig/sessions/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/signatures"):
			_, _ = w.Write([]byte(`{"id":"s1","threshold":2,"status":"collecting","collected":1,"pending":["bob"]}`))
		case strings.HasSuffix(path, "/verify"):
			_, _ = w.Write([]byte(`{"session_id":"s1","valid":true,"threshold_met":true,"threshold":2,"collected":2,"verified":[{"key_name":"alice"},{"key_name":"bob"}],"failed":[]}`))
		case strings.HasSuffix(path, "/complete"):
			_, _ = w.Write([]byte(`{"id":"s1","status":"completed","collected":2,"threshold":2,"threshold_met":true}`))
		case strings.HasSuffix(path, "/cancel"):
			_, _ = w.Write([]byte(`{"id":"s1","status":"cancelled"}`))
		case strings.HasSuffix(path, "/reset"):
			_, _ = w.Write([]byte(`{"id":"s1","status":"pending","collected":0}`))
		default:
			_, _ = w.Write([]byte(`{"id":"s1","threshold":2,"participants":["alice","bob"],"status":"pending"}`))
		}
	})

	mux.HandleFunc("/api/v1/watchers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"watchers":[{"id":"w1","directory":"/data/out","key_name":"release","state":"active"}]}`))
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"w1","directory":"/data/out","key_name":"release","state":"active"}`))
		}
	})

	mux.HandleFunc("/api/v1/watchers/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/activity") {
			_, _ = w.Write([]byte(`{"id":"w1","activity":[{"file_path":"/data/out/a.txt","action":"signed","success":true}]}`))
			return
		}
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"id":"w1","directory":"/data/out","key_name":"release","state":"active","stats":{"signed":3}}`))
		case http.MethodDelete:
			_, _ = w.Write([]byte(`{"success":true,"message":"watcher stopped"}`))
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func connectedClient(t *testing.T) *Client {
	t.Helper()
	server := mockServer(t)

	c, err := New(&Config{Address: server.URL})
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNew(t *testing.T) {
	t.Run("requires address", func(t *testing.T) {
		_, err := New(&Config{})
		assert.True(t, types.IsValidation(err))

		_, err = New(nil)
		assert.True(t, types.IsValidation(err))
	})

	t.Run("normalizes address scheme", func(t *testing.T) {
		c, err := New(&Config{Address: "localhost:8420"})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8420", c.baseURL)

		c, err = New(&Config{Address: "localhost:8420", TLSEnabled: true})
		require.NoError(t, err)
		assert.Equal(t, "https://localhost:8420", c.baseURL)

		c, err = New(&Config{Address: "https://host:1234/"})
		require.NoError(t, err)
		assert.Equal(t, "https://host:1234", c.baseURL)
	})

	t.Run("rejects use before connect", func(t *testing.T) {
		c, err := New(&Config{Address: "localhost:8420"})
		require.NoError(t, err)
		_, err = c.ListKeys(context.Background())
		assert.ErrorIs(t, err, ErrNotConnected)
	})
}

func TestConnect(t *testing.T) {
	t.Run("health checked on connect", func(t *testing.T) {
		c := connectedClient(t)
		resp, err := c.Health(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "healthy", resp.Status)
	})

	t.Run("unreachable server", func(t *testing.T) {
		c, err := New(&Config{Address: "127.0.0.1:1"})
		require.NoError(t, err)
		err = c.Connect(context.Background())
		assert.ErrorIs(t, err, ErrConnectionFailed)
	})
}

func TestKeyOperations(t *testing.T) {
	c := connectedClient(t)
	ctx := context.Background()

	info, err := c.GenerateKey(ctx, &GenerateKeyRequest{
		Name:       "release",
		Algorithm:  "ed25519",
		Passphrase: "correct horse battery staple",
	})
	require.NoError(t, err)
	assert.Equal(t, "release", info.Name)
	assert.Equal(t, types.AlgorithmEd25519, info.Algorithm)

	keys, err := c.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "release", keys[0].Name)

	got, err := c.GetKey(ctx, "release")
	require.NoError(t, err)
	assert.Equal(t, "release", got.Name)

	rotated, err := c.RotateKey(ctx, "release", "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, "SHA256:def", rotated.Fingerprint)
	assert.Equal(t, 2, rotated.Version)

	revoked, err := c.RevokeKey(ctx, "release")
	require.NoError(t, err)
	assert.Equal(t, types.KeyStatusRevoked, revoked.Status)

	export, err := c.ExportKey(ctx, "release")
	require.NoError(t, err)
	assert.Contains(t, export.PublicKeyPEM, "BEGIN PUBLIC KEY")

	require.NoError(t, c.DeleteKey(ctx, "release"))
}

func TestErrorMapping(t *testing.T) {
	c := connectedClient(t)

	_, err := c.GetKey(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, types.IsNotFound(err))
	assert.Contains(t, err.Error(), "key not found")
}

func TestTrustOperations(t *testing.T) {
	c := connectedClient(t)
	ctx := context.Background()

	entry, err := c.AddTrust(ctx, &TrustRequest{Fingerprint: "SHA256:abc", KeyName: "release"})
	require.NoError(t, err)
	assert.False(t, entry.Revoked())

	entries, err := c.ListTrust(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	verdict, err := c.EvaluateTrust(ctx, "SHA256:abc")
	require.NoError(t, err)
	assert.True(t, verdict.Trusted)
	assert.Equal(t, types.TrustStateTrusted.String(), verdict.State)

	revoked, err := c.RevokeTrust(ctx, "SHA256:abc", "compromised")
	require.NoError(t, err)
	assert.True(t, revoked.Revoked())
	assert.Equal(t, "compromised", revoked.RevocationReason)

	reinstated, err := c.ReinstateTrust(ctx, "SHA256:abc", true, "false alarm")
	require.NoError(t, err)
	assert.False(t, reinstated.Revoked())
}

func TestSignVerify(t *testing.T) {
	c := connectedClient(t)
	ctx := context.Background()

	signed, err := c.Sign(ctx, &SignRequest{
		KeyName:    "release",
		Passphrase: "correct horse battery staple",
		Data:       []byte("payload"),
	})
	require.NoError(t, err)
	assert.Equal(t, "structured", signed.Format)
	assert.NotEmpty(t, signed.Envelope)

	verdict, err := c.Verify(ctx, &VerifyRequest{
		Data:     []byte("payload"),
		Envelope: signed.Envelope,
	})
	require.NoError(t, err)
	assert.True(t, verdict.Valid)
	assert.Equal(t, "release", verdict.KeyName)
}

func TestSessionOperations(t *testing.T) {
	c := connectedClient(t)
	ctx := context.Background()

	session, err := c.CreateSession(ctx, &CreateSessionRequest{
		Data:         []byte("release artifact"),
		Threshold:    2,
		Participants: []string{"alice", "bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", session.ID)
	assert.Len(t, session.Pending, 2)

	session, err = c.CollectSignature(ctx, "s1", "alice", []byte("envelope"))
	require.NoError(t, err)
	assert.Equal(t, 1, session.Collected)

	result, err := c.VerifySession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Len(t, result.Verified, 2)

	session, err = c.CompleteSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, session.ThresholdMet)

	_, err = c.CancelSession(ctx, "s1")
	require.NoError(t, err)

	session, err = c.ResetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, session.Collected)

	sessions, err := c.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	session, err = c.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, session.Threshold)
}

func TestWatcherOperations(t *testing.T) {
	c := connectedClient(t)
	ctx := context.Background()

	info, err := c.StartWatcher(ctx, &StartWatcherRequest{
		Directory:  "/data/out",
		KeyName:    "release",
		Passphrase: "correct horse battery staple",
	})
	require.NoError(t, err)
	assert.Equal(t, "w1", info.ID)

	watchers, err := c.ListWatchers(ctx)
	require.NoError(t, err)
	require.Len(t, watchers, 1)
	assert.Equal(t, "/data/out", watchers[0].Directory)

	got, err := c.GetWatcher(ctx, "w1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, got.Stats.Signed)

	activity, err := c.WatcherActivity(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.True(t, activity[0].Success)

	require.NoError(t, c.StopWatcher(ctx, "w1"))
}
