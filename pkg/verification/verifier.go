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

// Package verification checks signature envelopes: cryptographic
// validity, payload integrity, expiry, and the signing key's trust
// standing. Verdicts are data in the Result; only malformed envelopes,
// misconfiguration, and backend failures fail the call.
package verification

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jeremyhahn/go-signet/pkg/audit"
	"github.com/jeremyhahn/go-signet/pkg/envelope"
	"github.com/jeremyhahn/go-signet/pkg/keystore"
	"github.com/jeremyhahn/go-signet/pkg/logging"
	"github.com/jeremyhahn/go-signet/pkg/metrics"
	"github.com/jeremyhahn/go-signet/pkg/trust"
	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/jeremyhahn/go-signet/pkg/validation"
	gocache "github.com/patrickmn/go-cache"
)

// DefaultKeyCacheTTL bounds how long a resolved public key is reused
// before the key store is consulted again.
const DefaultKeyCacheTTL = 5 * time.Minute

// Config holds the dependencies for a Verifier. Everything is
// optional: without a KeyStore only envelopes with embedded keys
// verify, and without a Trust registry trust checks are rejected.
type Config struct {
	// KeyStore resolves fingerprints to public keys, including keys
	// retired by rotation.
	KeyStore *keystore.KeyStore

	// Trust answers trust checks when Options.CheckTrust is set.
	Trust *trust.Registry

	// Logger is the engine logger. Defaults to logging.DefaultLogger().
	Logger *logging.Logger

	// Audit receives verification events. Defaults to a no-op emitter.
	Audit audit.Emitter

	// KeyCacheTTL overrides DefaultKeyCacheTTL.
	KeyCacheTTL time.Duration
}

// Verifier checks signatures produced by the signer. All methods are
// safe for concurrent use.
type Verifier struct {
	keys     *keystore.KeyStore
	trust    *trust.Registry
	logger   *logging.Logger
	audit    audit.Emitter
	keyCache *gocache.Cache
}

// New creates a Verifier from the given configuration. A nil config
// yields a verifier that can check only envelopes carrying their own
// public key.
func New(cfg *Config) *Verifier {
	if cfg == nil {
		cfg = &Config{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	var emitter audit.Emitter = audit.Nop{}
	if cfg.Audit != nil {
		emitter = cfg.Audit
	}

	ttl := cfg.KeyCacheTTL
	if ttl <= 0 {
		ttl = DefaultKeyCacheTTL
	}

	return &Verifier{
		keys:     cfg.KeyStore,
		trust:    cfg.Trust,
		logger:   logger.With("component", "verifier"),
		audit:    emitter,
		keyCache: gocache.New(ttl, time.Minute),
	}
}

// Options selects what a verification call checks beyond the
// signature itself.
type Options struct {
	// CheckTrust additionally evaluates the signing fingerprint
	// against the trust registry. The outcome lands in Trusted and
	// TrustReason and never changes Valid.
	CheckTrust bool

	// RequireTrusted fails the call with an AuthorizationError when
	// the signing fingerprint is not trusted. Implies CheckTrust.
	RequireTrusted bool
}

// Result is a verification verdict. Valid reflects the cryptography
// and the envelope's validity window; Trusted reflects the registry.
// The two are independent: a correct signature from a revoked key is
// Valid and not Trusted.
type Result struct {
	Valid  bool
	Reason types.Reason
	Detail string

	TrustChecked bool
	Trusted      bool
	TrustReason  string

	// Envelope is the decoded envelope the verdict applies to. Nil for
	// raw signatures.
	Envelope *envelope.Envelope
}

// Verify decodes a structured envelope and checks it against data.
// Malformed envelopes fail the call; every other negative outcome is
// reported in the Result.
func (v *Verifier) Verify(ctx context.Context, data, encoded []byte, opts *Options) (*Result, error) {
	start := time.Now()
	result, err := v.verifyEncoded(ctx, data, encoded, opts)
	v.observe(start, err)
	v.emit(ctx, resultResource(result), result, err)
	return result, err
}

// VerifyEnvelope checks an already decoded envelope against data.
func (v *Verifier) VerifyEnvelope(ctx context.Context, data []byte, env *envelope.Envelope, opts *Options) (*Result, error) {
	start := time.Now()
	result, err := v.verifyEnvelope(ctx, data, env, opts)
	v.observe(start, err)
	resource := ""
	if env != nil {
		resource = env.Fingerprint
	}
	v.emit(ctx, resource, result, err)
	return result, err
}

// VerifyFile checks an encoded envelope against a file's content.
func (v *Verifier) VerifyFile(ctx context.Context, path string, encoded []byte, opts *Options) (*Result, error) {
	start := time.Now()
	result, err := v.verifyFile(ctx, path, encoded, opts)
	v.observe(start, err)
	v.emit(ctx, path, result, err)
	return result, err
}

// VerifyRaw checks a bare text signature produced in FormatRaw. Raw
// signatures carry no key identity, so the key is named explicitly and
// is always resolved to its current version.
func (v *Verifier) VerifyRaw(ctx context.Context, data []byte, signature string, encoding types.Encoding, keyName string, scheme types.SignatureScheme) (*Result, error) {
	start := time.Now()
	result, err := v.verifyRaw(ctx, data, signature, encoding, keyName, scheme)
	v.observe(start, err)
	v.emit(ctx, keyName, result, err)
	return result, err
}

func (v *Verifier) verifyEncoded(ctx context.Context, data, encoded []byte, opts *Options) (*Result, error) {
	env, err := envelope.Decode(encoded)
	if err != nil {
		return nil, err
	}
	return v.verifyEnvelope(ctx, data, env, opts)
}

func (v *Verifier) verifyFile(ctx context.Context, path string, encoded []byte, opts *Options) (*Result, error) {
	if path == "" {
		return nil, types.NewValidationError("path", "file path is required", nil)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, types.NewNotFoundError("file", path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("verification: read %s: %w", path, err)
	}
	return v.verifyEncoded(ctx, data, encoded, opts)
}

func (v *Verifier) verifyEnvelope(ctx context.Context, data []byte, env *envelope.Envelope, opts *Options) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if env == nil {
		return nil, types.NewValidationError("envelope", "envelope is required", nil)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &Options{}
	}

	result := &Result{Envelope: env}
	reason, detail, err := v.check(ctx, data, env)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		result.Valid = true
	} else {
		result.Reason = reason
		result.Detail = detail
	}

	if opts.CheckTrust || opts.RequireTrusted {
		if err := v.applyTrust(ctx, env.Fingerprint, opts, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (v *Verifier) verifyRaw(ctx context.Context, data []byte, signature string, encoding types.Encoding, keyName string, scheme types.SignatureScheme) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v.keys == nil {
		return nil, types.NewValidationError("keystore", "no key store configured", nil)
	}
	if encoding == "" {
		encoding = types.EncodingBase64
	}

	// Raw signature artifacts end with a newline.
	sig, err := envelope.DecodeRaw(strings.TrimSpace(signature), encoding)
	if err != nil {
		return nil, err
	}

	info, err := v.keys.Get(ctx, keyName)
	if err != nil {
		return nil, err
	}
	if scheme == "" {
		scheme, err = types.DefaultScheme(info.Algorithm)
		if err != nil {
			return nil, err
		}
	} else if !scheme.MatchesFamily(info.Algorithm.Family()) {
		return nil, types.NewValidationError("scheme",
			fmt.Sprintf("scheme %s does not apply to %s keys", scheme, info.Algorithm),
			types.ErrUnsupportedAlgorithm)
	}

	result := &Result{}
	if len(data) == 0 {
		result.Reason = types.ReasonEmptyInput
		result.Detail = "no data to verify"
		return result, nil
	}

	pub, err := v.keys.PublicKey(ctx, keyName)
	if err != nil {
		return nil, err
	}
	if err := VerifySignature(pub, scheme, data, sig); err != nil {
		result.Reason = types.ReasonInvalidSignature
		result.Detail = "signature does not verify"
		return result, nil
	}
	result.Valid = true
	return result, nil
}

// check returns the failure reason for the envelope against the data,
// or "" when the signature holds. Reasons have a fixed precedence:
// Expired outranks everything so a stale envelope is never reported
// valid, then EmptyInput, UnknownKey, DataMismatch, InvalidSignature.
func (v *Verifier) check(ctx context.Context, data []byte, env *envelope.Envelope) (types.Reason, string, error) {
	if env.Expired(time.Now()) {
		return types.ReasonExpired,
			fmt.Sprintf("envelope expired at %s", env.ExpiresAt.UTC().Format(time.RFC3339)), nil
	}
	if len(data) == 0 {
		return types.ReasonEmptyInput, "no data to verify", nil
	}

	pub, err := v.resolveKey(ctx, env)
	if errors.Is(err, errKeyUnresolved) {
		return types.ReasonUnknownKey, "no key available for fingerprint", nil
	}
	if err != nil {
		return "", "", err
	}

	if env.Detached && !env.MatchesPayload(data) {
		return types.ReasonDataMismatch, "payload does not match the recorded data hash", nil
	}

	sig, err := env.SignatureBytes()
	if err != nil {
		return "", "", err
	}
	if err := VerifySignature(pub, env.Scheme, data, sig); err != nil {
		return types.ReasonInvalidSignature, "signature does not verify", nil
	}
	return "", "", nil
}

// resolveKey finds the public key for an envelope's fingerprint: the
// cache first, then the key store (current and rotated versions), then
// the envelope's own embedded key. An embedded key counts only when it
// hashes to the envelope's fingerprint.
func (v *Verifier) resolveKey(ctx context.Context, env *envelope.Envelope) (crypto.PublicKey, error) {
	if cached, ok := v.keyCache.Get(env.Fingerprint); ok {
		return cached.(crypto.PublicKey), nil
	}

	if v.keys != nil {
		pub, _, err := v.keys.ResolveVerificationKey(ctx, env.Fingerprint)
		if err == nil {
			v.keyCache.Set(env.Fingerprint, pub, gocache.DefaultExpiration)
			return pub, nil
		}
		if !types.IsNotFound(err) {
			return nil, err
		}
	}

	if env.PublicKeyPEM != "" {
		pub, err := keystore.ParsePublicKeyPEM(env.PublicKeyPEM)
		if err != nil {
			v.logger.Warnf("embedded public key does not parse: %v", err)
			return nil, errKeyUnresolved
		}
		fp, err := keystore.Fingerprint(pub)
		if err != nil || fp != env.Fingerprint {
			v.logger.Warnf("embedded public key does not match fingerprint %s",
				validation.SanitizeForLog(env.Fingerprint))
			return nil, errKeyUnresolved
		}
		v.keyCache.Set(env.Fingerprint, pub, gocache.DefaultExpiration)
		return pub, nil
	}

	return nil, errKeyUnresolved
}

// applyTrust records the fingerprint's trust standing on the result
// and, under RequireTrusted, converts a negative standing into an
// AuthorizationError.
func (v *Verifier) applyTrust(ctx context.Context, fingerprint string, opts *Options, result *Result) error {
	if v.trust == nil {
		return types.NewValidationError("trust", "no trust registry configured", nil)
	}

	result.TrustChecked = true

	entry, err := v.trust.Get(ctx, fingerprint)
	switch {
	case types.IsNotFound(err) || types.IsValidation(err):
		result.TrustReason = "fingerprint is not registered"
		if opts.RequireTrusted {
			return types.NewAuthorizationError("verify", result.TrustReason, types.ErrFingerprintUnknown)
		}
		return nil
	case err != nil:
		return err
	}

	if entry.Revoked() {
		result.TrustReason = "trust revoked"
		if entry.RevocationReason != "" {
			result.TrustReason = "trust revoked: " + entry.RevocationReason
		}
		if opts.RequireTrusted {
			return types.NewAuthorizationError("verify", result.TrustReason, types.ErrFingerprintRevoked)
		}
		return nil
	}

	result.Trusted = true
	result.TrustReason = "fingerprint is trusted"
	return nil
}

// VerifyJWS checks a JWS compact token produced by the signer,
// resolving the key from the token's kid header. The claims are
// returned on success.
func (v *Verifier) VerifyJWS(ctx context.Context, token string, opts *Options) (*Result, jwt.MapClaims, error) {
	start := time.Now()
	result, claims, err := v.verifyJWS(ctx, token, opts)
	v.observe(start, err)
	v.emit(ctx, resultResource(result), result, err)
	return result, claims, err
}

func (v *Verifier) verifyJWS(ctx context.Context, token string, opts *Options) (*Result, jwt.MapClaims, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if opts == nil {
		opts = &Options{}
	}
	if strings.TrimSpace(token) == "" {
		return nil, nil, types.NewIntegrityError(types.ReasonMalformed,
			"token is empty", types.ErrMalformedEnvelope)
	}

	kid, err := envelope.ExtractKID(token)
	if err != nil {
		return nil, nil, err
	}

	result := &Result{}
	if kid == "" {
		result.Reason = types.ReasonUnknownKey
		result.Detail = "token has no kid header"
		return result, nil, nil
	}

	pub, err := v.resolveJWSKey(ctx, kid)
	if errors.Is(err, errKeyUnresolved) {
		result.Reason = types.ReasonUnknownKey
		result.Detail = "no key available for fingerprint"
	} else if err != nil {
		return nil, nil, err
	}

	var claims jwt.MapClaims
	if pub != nil {
		_, parsed, err := envelope.ParseJWS(token, pub)
		if err != nil {
			var integrity *types.IntegrityError
			if !errors.As(err, &integrity) {
				return nil, nil, err
			}
			result.Reason = integrity.Reason
			result.Detail = integrity.Detail
		} else {
			result.Valid = true
			claims = parsed
		}
	}

	if opts.CheckTrust || opts.RequireTrusted {
		if err := v.applyTrust(ctx, kid, opts, result); err != nil {
			return nil, nil, err
		}
	}
	return result, claims, nil
}

// resolveJWSKey is resolveKey without the embedded PEM fallback; JWS
// tokens carry no key material.
func (v *Verifier) resolveJWSKey(ctx context.Context, fingerprint string) (crypto.PublicKey, error) {
	if cached, ok := v.keyCache.Get(fingerprint); ok {
		return cached.(crypto.PublicKey), nil
	}
	if v.keys == nil {
		return nil, errKeyUnresolved
	}
	pub, _, err := v.keys.ResolveVerificationKey(ctx, fingerprint)
	if types.IsNotFound(err) {
		return nil, errKeyUnresolved
	}
	if err != nil {
		return nil, err
	}
	v.keyCache.Set(fingerprint, pub, gocache.DefaultExpiration)
	return pub, nil
}

// SignatureInfo decodes a structured envelope without verifying
// anything, for introspection of a signature artifact on its own.
func SignatureInfo(encoded []byte) (*envelope.Envelope, error) {
	return envelope.Decode(encoded)
}

// IntegrityReport describes an envelope's structural state without the
// original payload: whether it parses and whether its validity window
// has passed. Cryptographic validity needs the payload and is reported
// by Verify, not here.
type IntegrityReport struct {
	Parseable  bool
	ParseError string
	Expired    bool
	Envelope   *envelope.Envelope
}

// CheckIntegrity inspects an encoded envelope without the payload.
func CheckIntegrity(encoded []byte) *IntegrityReport {
	env, err := envelope.Decode(encoded)
	if err != nil {
		return &IntegrityReport{ParseError: err.Error()}
	}
	return &IntegrityReport{
		Parseable: true,
		Expired:   env.Expired(time.Now()),
		Envelope:  env,
	}
}

// VerifySignature checks sig over data under the scheme's digest and
// padding rules. It is the low-level primitive behind every verify
// path and is exported for collaborators that collect signatures
// without envelopes.
func VerifySignature(pub crypto.PublicKey, scheme types.SignatureScheme, data, sig []byte) error {
	switch scheme {
	case types.SchemeEd25519:
		key, ok := pub.(ed25519.PublicKey)
		if !ok {
			return ErrInvalidPublicKeyEd25519
		}
		if !ed25519.Verify(key, data, sig) {
			return ErrSignatureVerification
		}
		return nil

	case types.SchemeECDSASHA256, types.SchemeECDSASHA384, types.SchemeECDSASHA512:
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return ErrInvalidPublicKeyECDSA
		}
		if !ecdsa.VerifyASN1(key, digestFor(scheme, data), sig) {
			return ErrSignatureVerification
		}
		return nil

	case types.SchemeRSAPKCS1SHA256:
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return ErrInvalidPublicKeyRSA
		}
		if err := rsa.VerifyPKCS1v15(key, scheme.Hash(), digestFor(scheme, data), sig); err != nil {
			return ErrSignatureVerification
		}
		return nil

	case types.SchemeRSAPSSSHA256:
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return ErrInvalidPublicKeyRSA
		}
		if err := rsa.VerifyPSS(key, scheme.Hash(), digestFor(scheme, data), sig, nil); err != nil {
			return ErrSignatureVerification
		}
		return nil
	}
	return fmt.Errorf("%w: %q", types.ErrUnsupportedAlgorithm, scheme)
}

func digestFor(scheme types.SignatureScheme, data []byte) []byte {
	h := scheme.Hash().New()
	h.Write(data)
	return h.Sum(nil)
}

func (v *Verifier) observe(start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	metrics.RecordOperation(metrics.ComponentVerifier, metrics.OpVerify, status, time.Since(start).Seconds())
}

// emit writes the audit trail entry. A verdict of Valid=false is a
// failure outcome even though the call itself succeeded.
func (v *Verifier) emit(ctx context.Context, resource string, result *Result, err error) {
	outcome := audit.OutcomeSuccess
	switch {
	case err != nil:
		outcome = audit.OutcomeFailure
		if types.IsAuthorization(err) {
			outcome = audit.OutcomeDenied
		}
	case result != nil && !result.Valid:
		outcome = audit.OutcomeFailure
	}

	event := audit.NewEvent(audit.EventVerify, outcome, resource)
	if err != nil {
		event.Result = err.Error()
	} else if result != nil && !result.Valid {
		event.Result = result.Reason.String()
	}
	v.audit.Emit(ctx, event)
}

func resultResource(result *Result) string {
	if result == nil || result.Envelope == nil {
		return ""
	}
	return result.Envelope.Fingerprint
}
