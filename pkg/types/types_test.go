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

package types

import (
	"crypto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Algorithm
		wantErr bool
	}{
		{name: "canonical rsa", input: "rsa-2048", want: AlgorithmRSA2048},
		{name: "bare rsa alias", input: "RSA", want: AlgorithmRSA2048},
		{name: "rsa 4096", input: "rsa4096", want: AlgorithmRSA4096},
		{name: "bare ec alias", input: "ec", want: AlgorithmECDSAP256},
		{name: "p384", input: "P-384", want: AlgorithmECDSAP384},
		{name: "ed25519", input: "ed25519", want: AlgorithmEd25519},
		{name: "eddsa alias", input: "EdDSA", want: AlgorithmEd25519},
		{name: "whitespace", input: "  rsa-3072  ", want: AlgorithmRSA3072},
		{name: "unknown", input: "dsa", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.IsValid())
		})
	}
}

func TestDefaultScheme(t *testing.T) {
	tests := []struct {
		alg  Algorithm
		want SignatureScheme
		hash crypto.Hash
	}{
		{AlgorithmRSA2048, SchemeRSAPKCS1SHA256, crypto.SHA256},
		{AlgorithmRSA4096, SchemeRSAPKCS1SHA256, crypto.SHA256},
		{AlgorithmECDSAP256, SchemeECDSASHA256, crypto.SHA256},
		{AlgorithmECDSAP384, SchemeECDSASHA384, crypto.SHA384},
		{AlgorithmECDSAP521, SchemeECDSASHA512, crypto.SHA512},
		{AlgorithmEd25519, SchemeEd25519, 0},
	}

	for _, tt := range tests {
		t.Run(tt.alg.String(), func(t *testing.T) {
			scheme, err := DefaultScheme(tt.alg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, scheme)
			assert.Equal(t, tt.hash, scheme.Hash())
			assert.True(t, scheme.MatchesFamily(tt.alg.Family()))
		})
	}

	_, err := DefaultScheme(Algorithm("dsa"))
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestSchemeFamilyMismatch(t *testing.T) {
	assert.False(t, SchemeEd25519.MatchesFamily(FamilyRSA))
	assert.False(t, SchemeRSAPSSSHA256.MatchesFamily(FamilyECDSA))
	assert.False(t, SchemeECDSASHA384.MatchesFamily(FamilyEd25519))
}

func TestKeyStatusCanSign(t *testing.T) {
	assert.True(t, KeyStatusActive.CanSign())
	assert.False(t, KeyStatusRevoked.CanSign())
	assert.False(t, KeyStatusDeleted.CanSign())
}

func TestKeyRecordInfoOmitsPrivateMaterial(t *testing.T) {
	now := time.Now()
	rec := &KeyRecord{
		Name:                "payments",
		Algorithm:           AlgorithmEd25519,
		PublicKeyPEM:        "-----BEGIN PUBLIC KEY-----\n...",
		EncryptedPrivateKey: []byte{1, 2, 3},
		Fingerprint:         "abc123",
		Status:              KeyStatusActive,
		Version:             2,
		CreatedAt:           now,
	}

	info := rec.Info()
	assert.Equal(t, "payments", info.Name)
	assert.Equal(t, "abc123", info.Fingerprint)
	assert.Equal(t, 2, info.Version)
	assert.Equal(t, KeyStatusActive, info.Status)
}

func TestPasswordClear(t *testing.T) {
	buf := []byte("correct horse battery staple")
	p := NewPassword(buf)
	require.Equal(t, len(buf), p.Len())

	p.Clear()
	assert.Equal(t, 0, p.Len())
	assert.Nil(t, p.Bytes())
	for _, b := range buf {
		assert.Equal(t, byte(0), b)
	}

	// Clear twice must not panic.
	p.Clear()

	var nilPw *Password
	assert.Equal(t, 0, nilPw.Len())
	assert.Equal(t, "", nilPw.String())
	nilPw.Clear()
}

func TestTrustEntryRevoked(t *testing.T) {
	entry := &TrustEntry{Fingerprint: "fp", TrustedAt: time.Now()}
	assert.False(t, entry.Revoked())

	now := time.Now()
	entry.RevokedAt = &now
	assert.True(t, entry.Revoked())
}
