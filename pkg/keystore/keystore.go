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

// Package keystore manages the lifecycle of asymmetric signing keys:
// generation, rotation, revocation, and deletion. Private keys are
// held only in passphrase-sealed PKCS#8 form; plaintext private
// material never leaves this package.
package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jeremyhahn/go-signet/pkg/audit"
	"github.com/jeremyhahn/go-signet/pkg/logging"
	"github.com/jeremyhahn/go-signet/pkg/metrics"
	"github.com/jeremyhahn/go-signet/pkg/storage"
	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/jeremyhahn/go-signet/pkg/validation"
)

// DefaultMinPassphraseLength is the minimum passphrase length accepted
// when no policy is configured.
const DefaultMinPassphraseLength = 8

// PassphrasePolicy controls which passphrases are accepted when
// sealing new key material.
type PassphrasePolicy struct {
	// MinLength is the minimum passphrase length in bytes.
	MinLength int
}

// Check validates a passphrase against the policy.
func (p PassphrasePolicy) Check(passphrase *types.Password) error {
	min := p.MinLength
	if min <= 0 {
		min = DefaultMinPassphraseLength
	}
	if passphrase.Len() == 0 {
		return types.NewValidationError("passphrase", "passphrase is required",
			fmt.Errorf("%w: empty", types.ErrWeakPassphrase))
	}
	if passphrase.Len() < min {
		return types.NewValidationError("passphrase",
			fmt.Sprintf("must be at least %d characters", min), types.ErrWeakPassphrase)
	}

	// Reject passphrases made of a single repeated byte regardless of
	// length; they survive no dictionary attack.
	b := passphrase.Bytes()
	uniform := true
	for i := 1; i < len(b); i++ {
		if b[i] != b[0] {
			uniform = false
			break
		}
	}
	if uniform {
		return types.NewValidationError("passphrase", "single repeated character", types.ErrWeakPassphrase)
	}
	return nil
}

// Config holds the dependencies for a KeyStore.
type Config struct {
	// Backend is the storage backend for key records. Required.
	Backend storage.Backend

	// Logger is the engine logger. Defaults to logging.DefaultLogger().
	Logger *logging.Logger

	// Audit receives key lifecycle events. Defaults to a no-op emitter.
	Audit audit.Emitter

	// Policy is the passphrase acceptance policy.
	Policy PassphrasePolicy
}

// KeyStore stores and manages signing keys on top of a storage
// backend. All methods are safe for concurrent use.
type KeyStore struct {
	mu      sync.RWMutex
	backend storage.Backend
	logger  *logging.Logger
	audit   audit.Emitter
	policy  PassphrasePolicy

	// unseals deduplicates concurrent unseal work per key+passphrase.
	unseals singleflight.Group

	closed bool
}

// New creates a KeyStore from the given configuration.
func New(cfg *Config) (*KeyStore, error) {
	if cfg == nil || cfg.Backend == nil {
		return nil, ErrBackendRequired
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	var emitter audit.Emitter = audit.Nop{}
	if cfg.Audit != nil {
		emitter = cfg.Audit
	}

	return &KeyStore{
		backend: cfg.Backend,
		logger:  logger.With("component", "keystore"),
		audit:   emitter,
		policy:  cfg.Policy,
	}, nil
}

// Generate creates a new key pair under the given name, seals the
// private key with the passphrase, and persists the record. It fails
// if the name is already in use (including deleted records, whose
// names are never recycled) or if the passphrase fails policy.
func (s *KeyStore) Generate(ctx context.Context, name string, algorithm types.Algorithm, passphrase *types.Password) (types.KeyInfo, error) {
	start := time.Now()
	info, err := s.generate(ctx, name, algorithm, passphrase)
	s.observe(metrics.OpGenerate, start, err)
	s.emit(ctx, audit.EventKeyGenerate, name, err)
	return info, err
}

func (s *KeyStore) generate(ctx context.Context, name string, algorithm types.Algorithm, passphrase *types.Password) (types.KeyInfo, error) {
	if err := validation.ValidateKeyName(name); err != nil {
		return types.KeyInfo{}, types.NewValidationError("name", err.Error(), nil)
	}
	if !algorithm.IsValid() {
		return types.KeyInfo{}, types.NewValidationError("algorithm",
			fmt.Sprintf("unsupported algorithm %q", algorithm), types.ErrUnsupportedAlgorithm)
	}
	if err := s.policy.Check(passphrase); err != nil {
		return types.KeyInfo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.KeyInfo{}, ErrClosed
	}

	exists, err := s.backend.Exists(recordKey(name))
	if err != nil {
		return types.KeyInfo{}, fmt.Errorf("keystore: checking name %q: %w", name, err)
	}
	if exists {
		return types.KeyInfo{}, types.NewValidationError("name",
			fmt.Sprintf("key %q already exists", name), types.ErrDuplicateName)
	}

	material, err := generateMaterial(algorithm, passphrase)
	if err != nil {
		return types.KeyInfo{}, err
	}

	record := &types.KeyRecord{
		Name:                name,
		Algorithm:           algorithm,
		PublicKeyPEM:        material.publicPEM,
		EncryptedPrivateKey: material.sealedPrivate,
		Fingerprint:         material.fingerprint,
		Status:              types.KeyStatusActive,
		Version:             1,
		CreatedAt:           time.Now().UTC(),
	}

	if err := s.putRecord(record); err != nil {
		return types.KeyInfo{}, err
	}

	s.logger.Infof("generated key %s (%s, fingerprint %.16s)", name, algorithm, record.Fingerprint)
	return record.Info(), nil
}

// Get returns the public view of a key record.
func (s *KeyStore) Get(ctx context.Context, name string) (types.KeyInfo, error) {
	record, err := s.loadRecord(name)
	if err != nil {
		return types.KeyInfo{}, err
	}
	return record.Info(), nil
}

// List returns the public view of every stored key, sorted by name.
func (s *KeyStore) List(ctx context.Context) ([]types.KeyInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	keys, err := s.backend.List(storage.PrefixKeys)
	if err != nil {
		return nil, fmt.Errorf("keystore: listing keys: %w", err)
	}

	infos := make([]types.KeyInfo, 0, len(keys))
	for _, k := range keys {
		data, err := s.backend.Get(k)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("keystore: reading %q: %w", k, err)
		}
		var record types.KeyRecord
		if err := json.Unmarshal(data, &record); err != nil {
			s.logger.Warnf("skipping corrupt key record %q: %v", k, err)
			continue
		}
		infos = append(infos, record.Info())
	}
	return infos, nil
}

// Delete marks a key deleted. Deletion is irreversible: the sealed
// private material is dropped from the record, the public material is
// kept so old signatures remain checkable, and the name is never
// recycled.
func (s *KeyStore) Delete(ctx context.Context, name string) error {
	start := time.Now()
	err := s.transition(name, types.KeyStatusDeleted)
	s.observe(metrics.OpDelete, start, err)
	s.emit(ctx, audit.EventKeyDelete, name, err)
	return err
}

// Revoke marks a key revoked. A revoked key cannot start new sign
// operations; its past signatures remain cryptographically checkable.
func (s *KeyStore) Revoke(ctx context.Context, name string) error {
	start := time.Now()
	err := s.transition(name, types.KeyStatusRevoked)
	s.observe(metrics.OpRevoke, start, err)
	s.emit(ctx, audit.EventKeyRevoke, name, err)
	return err
}

func (s *KeyStore) transition(name string, target types.KeyStatus) error {
	if err := validation.ValidateKeyName(name); err != nil {
		return types.NewValidationError("name", err.Error(), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	record, err := s.getRecord(name)
	if err != nil {
		return err
	}

	if record.Status == types.KeyStatusDeleted {
		return types.NewConcurrencyError(string(target), "key is deleted", types.ErrKeyDeleted)
	}
	if record.Status == target {
		return types.NewConcurrencyError(string(target),
			fmt.Sprintf("key is already %s", target), types.ErrKeyRevoked)
	}

	record.Status = target
	if target == types.KeyStatusDeleted {
		// Drop sealed private material; only public key survives.
		record.EncryptedPrivateKey = nil
	}

	if err := s.putRecord(record); err != nil {
		return err
	}

	s.logger.Infof("key %s marked %s", name, target)
	return nil
}

// Rotate replaces the key material under an existing name. The caller
// must present the current passphrase; the superseded public key is
// retained so earlier signatures stay verifiable, and the version
// increments. The new material is sealed under the same passphrase.
func (s *KeyStore) Rotate(ctx context.Context, name string, passphrase *types.Password) (types.KeyInfo, error) {
	start := time.Now()
	info, err := s.rotate(ctx, name, passphrase)
	s.observe(metrics.OpRotate, start, err)
	s.emit(ctx, audit.EventKeyRotate, name, err)
	return info, err
}

func (s *KeyStore) rotate(ctx context.Context, name string, passphrase *types.Password) (types.KeyInfo, error) {
	if err := validation.ValidateKeyName(name); err != nil {
		return types.KeyInfo{}, types.NewValidationError("name", err.Error(), nil)
	}
	if err := s.policy.Check(passphrase); err != nil {
		return types.KeyInfo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.KeyInfo{}, ErrClosed
	}

	record, err := s.getRecord(name)
	if err != nil {
		return types.KeyInfo{}, err
	}
	if !record.Status.CanSign() {
		return types.KeyInfo{}, types.NewAuthorizationError("rotate",
			fmt.Sprintf("key is %s", record.Status), statusSentinel(record.Status))
	}

	// The current passphrase must unseal the existing material before
	// we replace it.
	priv, err := unsealPrivateKey(record, passphrase)
	if err != nil {
		return types.KeyInfo{}, err
	}
	wipePrivateKey(priv)

	material, err := generateMaterial(record.Algorithm, passphrase)
	if err != nil {
		return types.KeyInfo{}, err
	}

	now := time.Now().UTC()
	record.PreviousKeys = append(record.PreviousKeys, types.PreviousKey{
		Version:      record.Version,
		Fingerprint:  record.Fingerprint,
		PublicKeyPEM: record.PublicKeyPEM,
		RetiredAt:    now,
	})
	record.PublicKeyPEM = material.publicPEM
	record.EncryptedPrivateKey = material.sealedPrivate
	record.Fingerprint = material.fingerprint
	record.Version++
	record.RotatedAt = &now

	if err := s.putRecord(record); err != nil {
		return types.KeyInfo{}, err
	}

	s.logger.Infof("rotated key %s to version %d (fingerprint %.16s)", name, record.Version, record.Fingerprint)
	return record.Info(), nil
}

// Fingerprint returns the current fingerprint of a key.
func (s *KeyStore) Fingerprint(ctx context.Context, name string) (string, error) {
	record, err := s.loadRecord(name)
	if err != nil {
		return "", err
	}
	return record.Fingerprint, nil
}

// ExportPublicPEM returns the current public key in PEM form.
func (s *KeyStore) ExportPublicPEM(ctx context.Context, name string) (string, error) {
	record, err := s.loadRecord(name)
	if err != nil {
		return "", err
	}
	return record.PublicKeyPEM, nil
}

// Close releases the store. Subsequent operations fail with ErrClosed.
// The underlying storage backend is not closed; its owner closes it.
func (s *KeyStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// loadRecord fetches a record under the read lock.
func (s *KeyStore) loadRecord(name string) (*types.KeyRecord, error) {
	if err := validation.ValidateKeyName(name); err != nil {
		return nil, types.NewValidationError("name", err.Error(), nil)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	return s.getRecord(name)
}

// getRecord fetches and decodes a record. Callers hold s.mu.
func (s *KeyStore) getRecord(name string) (*types.KeyRecord, error) {
	data, err := s.backend.Get(recordKey(name))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.NewNotFoundError("key", name, types.ErrKeyNotFound)
		}
		return nil, fmt.Errorf("keystore: reading key %q: %w", name, err)
	}

	var record types.KeyRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, types.NewIntegrityError(types.ReasonMalformed,
			fmt.Sprintf("key record %q does not decode", name),
			fmt.Errorf("%w: %v", types.ErrCorruptKeyData, err))
	}
	return &record, nil
}

// putRecord persists a record. Callers hold s.mu.
func (s *KeyStore) putRecord(record *types.KeyRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("keystore: encoding key %q: %w", record.Name, err)
	}
	if err := s.backend.Put(recordKey(record.Name), data, nil); err != nil {
		return fmt.Errorf("keystore: writing key %q: %w", record.Name, err)
	}
	return nil
}

func (s *KeyStore) observe(op string, start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	metrics.RecordOperation(metrics.ComponentKeyStore, op, status, time.Since(start).Seconds())
}

func (s *KeyStore) emit(ctx context.Context, eventType audit.EventType, resource string, err error) {
	outcome := audit.OutcomeSuccess
	if err != nil {
		outcome = audit.OutcomeFailure
		if types.IsAuthorization(err) {
			outcome = audit.OutcomeDenied
		}
	}
	event := audit.NewEvent(eventType, outcome, resource)
	if err != nil {
		event.Result = err.Error()
	}
	s.audit.Emit(ctx, event)
}

func recordKey(name string) string {
	return storage.PrefixKeys + name
}

func statusSentinel(status types.KeyStatus) error {
	if status == types.KeyStatusDeleted {
		return types.ErrKeyDeleted
	}
	return types.ErrKeyRevoked
}
