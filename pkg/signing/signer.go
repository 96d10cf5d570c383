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

// Package signing produces signature envelopes on top of the key
// store: single payloads, files, and JWS compact tokens. The key store
// does the cryptography; this package resolves options, builds the
// envelope, and serializes it.
package signing

import (
	"context"
	"crypto"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jeremyhahn/go-signet/pkg/envelope"
	"github.com/jeremyhahn/go-signet/pkg/keystore"
	"github.com/jeremyhahn/go-signet/pkg/logging"
	"github.com/jeremyhahn/go-signet/pkg/metrics"
	"github.com/jeremyhahn/go-signet/pkg/types"
)

// Config holds the dependencies for a Signer.
type Config struct {
	// KeyStore performs the actual signing. Required.
	KeyStore *keystore.KeyStore

	// Logger is the engine logger. Defaults to logging.DefaultLogger().
	Logger *logging.Logger

	// MaxPayloadBytes caps the size of a single payload. Zero selects
	// DefaultMaxPayloadBytes.
	MaxPayloadBytes int64
}

// Signer turns payloads into signature envelopes. All methods are safe
// for concurrent use.
type Signer struct {
	keys       *keystore.KeyStore
	logger     *logging.Logger
	maxPayload int64
}

// New creates a Signer from the given configuration.
func New(cfg *Config) (*Signer, error) {
	if cfg == nil || cfg.KeyStore == nil {
		return nil, ErrKeyStoreRequired
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	maxPayload := cfg.MaxPayloadBytes
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayloadBytes
	}

	return &Signer{
		keys:       cfg.KeyStore,
		logger:     logger.With("component", "signer"),
		maxPayload: maxPayload,
	}, nil
}

// KeyStore returns the key store the signer signs with.
func (s *Signer) KeyStore() *keystore.KeyStore {
	return s.keys
}

// Result is a produced signature: the in-memory envelope plus its
// serialized form in the requested format.
type Result struct {
	Envelope *envelope.Envelope
	Format   types.EnvelopeFormat
	Encoded  []byte
}

// FileResult is a Result produced from a file, with the source path
// and, when an output path was requested, where the envelope landed.
type FileResult struct {
	*Result
	Path        string
	PayloadSize int64
	OutputPath  string
}

// Sign signs data with the named key and returns the encoded envelope.
// A nil opts signs with DefaultOptions.
func (s *Signer) Sign(ctx context.Context, data []byte, keyName string, passphrase *types.Password, opts *Options) (*Result, error) {
	start := time.Now()
	result, err := s.sign(ctx, data, keyName, passphrase, opts.normalized())
	s.observe(start, err)
	return result, err
}

// SignFile signs a file's content with the named key. The file size is
// checked against the payload cap before the content is read. When
// opts.OutputPath is set, the encoded envelope is also written there
// and the returned FileResult records the path.
func (s *Signer) SignFile(ctx context.Context, path, keyName string, passphrase *types.Password, opts *Options) (*FileResult, error) {
	start := time.Now()
	result, err := s.signFile(ctx, path, keyName, passphrase, opts.normalized())
	s.observe(start, err)
	return result, err
}

func (s *Signer) sign(ctx context.Context, data []byte, keyName string, passphrase *types.Password, opts *Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, types.NewValidationError("data", "nothing to sign", types.ErrEmptyInput)
	}
	if int64(len(data)) > s.maxPayload {
		return nil, types.NewValidationError("data",
			fmt.Sprintf("payload is %d bytes, limit is %d", len(data), s.maxPayload),
			types.ErrPayloadTooLarge)
	}

	signed, err := s.keys.SignMessage(ctx, keyName, passphrase, data, opts.Scheme)
	if err != nil {
		return nil, err
	}

	env, err := s.buildEnvelope(ctx, data, signed, opts)
	if err != nil {
		return nil, err
	}

	encoded, err := encodeEnvelope(env, opts.Format)
	if err != nil {
		return nil, err
	}

	return &Result{Envelope: env, Format: opts.Format, Encoded: encoded}, nil
}

func (s *Signer) signFile(ctx context.Context, path, keyName string, passphrase *types.Password, opts *Options) (*FileResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, types.NewValidationError("path", "file path is required", nil)
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, types.NewNotFoundError("file", path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("signing: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, types.NewValidationError("path",
			fmt.Sprintf("%s is a directory", path), nil)
	}
	if info.Size() == 0 {
		return nil, types.NewValidationError("path",
			fmt.Sprintf("%s is empty", path), types.ErrEmptyInput)
	}
	// Checked on the stat size so an oversized file is never read in.
	if info.Size() > s.maxPayload {
		return nil, types.NewValidationError("path",
			fmt.Sprintf("%s is %d bytes, limit is %d", path, info.Size(), s.maxPayload),
			types.ErrPayloadTooLarge)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signing: read %s: %w", path, err)
	}

	result, err := s.sign(ctx, data, keyName, passphrase, opts)
	if err != nil {
		return nil, err
	}

	out := &FileResult{Result: result, Path: path, PayloadSize: info.Size()}
	if opts.OutputPath != "" {
		if err := os.WriteFile(opts.OutputPath, result.Encoded, 0644); err != nil {
			return nil, fmt.Errorf("signing: write envelope to %s: %w", opts.OutputPath, err)
		}
		out.OutputPath = opts.OutputPath
		s.logger.Debugf("wrote signature envelope for %s to %s", path, opts.OutputPath)
	}
	return out, nil
}

// SignJWS signs data as a JWS compact token. The claims mirror the
// structured envelope: the payload digest, the signing key identity,
// caller metadata, and the optional time window. The token's kid
// header carries the key fingerprint.
func (s *Signer) SignJWS(ctx context.Context, data []byte, keyName string, passphrase *types.Password, opts *Options) (string, error) {
	start := time.Now()
	token, err := s.signJWS(ctx, data, keyName, passphrase, opts.normalized())
	s.observe(start, err)
	return token, err
}

func (s *Signer) signJWS(ctx context.Context, data []byte, keyName string, passphrase *types.Password, opts *Options) (string, error) {
	if err := opts.validate(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", types.NewValidationError("data", "nothing to sign", types.ErrEmptyInput)
	}
	if int64(len(data)) > s.maxPayload {
		return "", types.NewValidationError("data",
			fmt.Sprintf("payload is %d bytes, limit is %d", len(data), s.maxPayload),
			types.ErrPayloadTooLarge)
	}

	info, err := s.keys.Get(ctx, keyName)
	if err != nil {
		return "", err
	}

	scheme := opts.Scheme
	if scheme == "" {
		scheme, err = types.DefaultScheme(info.Algorithm)
		if err != nil {
			return "", err
		}
	}

	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":         keyName,
		"data_sha256": envelope.HashPayload(data),
	}
	if opts.Timestamp {
		claims["iat"] = jwt.NewNumericDate(now)
	}
	if opts.ExpiresIn > 0 {
		claims["exp"] = jwt.NewNumericDate(now.Add(opts.ExpiresIn))
	}
	for k, v := range opts.Metadata {
		if _, taken := claims[k]; !taken {
			claims[k] = v
		}
	}

	var token string
	err = s.keys.WithSigner(ctx, keyName, passphrase, func(signer crypto.Signer) error {
		t, err := envelope.SignJWS(signer, scheme, claims, info.Fingerprint)
		if err != nil {
			return err
		}
		token = t
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *Signer) buildEnvelope(ctx context.Context, data []byte, signed *keystore.SignResult, opts *Options) (*envelope.Envelope, error) {
	text, err := envelope.EncodeRaw(signed.Signature, opts.Encoding)
	if err != nil {
		return nil, err
	}

	env := &envelope.Envelope{
		Version:     envelope.Version,
		Signature:   text,
		Encoding:    opts.Encoding,
		Scheme:      signed.Scheme,
		Algorithm:   signed.Algorithm,
		KeyName:     signed.KeyName,
		KeyVersion:  signed.KeyVersion,
		Fingerprint: signed.Fingerprint,
	}

	now := time.Now().UTC()
	if opts.Timestamp {
		env.CreatedAt = now
	}
	if opts.ExpiresIn > 0 {
		expires := now.Add(opts.ExpiresIn)
		env.ExpiresAt = &expires
	}
	if opts.Detached {
		env.Detached = true
		env.DataHash = envelope.HashPayload(data)
	}
	if len(opts.Metadata) > 0 {
		env.Metadata = make(map[string]string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			env.Metadata[k] = v
		}
	}
	if opts.IncludePublicKey {
		pemText, err := s.keys.ExportPublicPEM(ctx, signed.KeyName)
		if err != nil {
			return nil, err
		}
		env.PublicKeyPEM = pemText
	}
	return env, nil
}

// encodeEnvelope serializes the envelope in the requested format. Raw
// output is the signature text followed by a newline so it lands on
// disk as a well-formed one-line artifact.
func encodeEnvelope(env *envelope.Envelope, format types.EnvelopeFormat) ([]byte, error) {
	switch format {
	case types.FormatRaw:
		return []byte(env.Signature + "\n"), nil
	case types.FormatStructured:
		return envelope.Encode(env)
	}
	return nil, types.NewValidationError("format",
		fmt.Sprintf("unsupported format %q", format), types.ErrUnsupportedFormat)
}

func (s *Signer) observe(start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	metrics.RecordOperation(metrics.ComponentSigner, metrics.OpSign, status, time.Since(start).Seconds())
}
