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

// Package trust maintains the registry of trusted key fingerprints.
// Trust is granted per fingerprint, so a rotated key does not inherit
// the trust of its predecessor. Revocation is sticky: a revoked
// fingerprint never evaluates as trusted again unless explicitly
// reinstated.
package trust

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jeremyhahn/go-signet/pkg/audit"
	"github.com/jeremyhahn/go-signet/pkg/logging"
	"github.com/jeremyhahn/go-signet/pkg/metrics"
	"github.com/jeremyhahn/go-signet/pkg/storage"
	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/jeremyhahn/go-signet/pkg/validation"
)

var (
	// ErrClosed is returned when the registry has been closed.
	ErrClosed = errors.New("trust: registry is closed")

	// ErrBackendRequired is returned when no storage backend is configured.
	ErrBackendRequired = errors.New("trust: storage backend is required")
)

// Config holds the dependencies for a Registry.
type Config struct {
	// Backend is the storage backend for trust entries. Required.
	Backend storage.Backend

	// Logger is the engine logger. Defaults to logging.DefaultLogger().
	Logger *logging.Logger

	// Audit receives trust decision events. Defaults to a no-op emitter.
	Audit audit.Emitter
}

// Registry stores trust decisions keyed by key fingerprint. All
// methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	backend storage.Backend
	logger  *logging.Logger
	audit   audit.Emitter
	closed  bool
}

// ReinstateOptions controls restoring trust to a revoked fingerprint.
type ReinstateOptions struct {
	// Force acknowledges that the fingerprint was deliberately revoked
	// and restores trust anyway. Reinstate refuses without it.
	Force bool

	// Description optionally replaces the entry description.
	Description string
}

// New creates a Registry from the given configuration.
func New(cfg *Config) (*Registry, error) {
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

	return &Registry{
		backend: cfg.Backend,
		logger:  logger.With("component", "trust"),
		audit:   emitter,
	}, nil
}

// Trust registers a fingerprint as trusted. It fails if the
// fingerprint is already trusted, and it fails if the fingerprint was
// revoked: restoring a revoked fingerprint requires Reinstate.
func (r *Registry) Trust(ctx context.Context, fingerprint, keyName, description string) (*types.TrustEntry, error) {
	start := time.Now()
	entry, err := r.trust(fingerprint, keyName, description)
	r.observe(metrics.OpTrust, start, err)
	r.emit(ctx, audit.EventTrustAdd, fingerprint, err)
	return entry, err
}

func (r *Registry) trust(fingerprint, keyName, description string) (*types.TrustEntry, error) {
	if err := validation.ValidateFingerprint(fingerprint); err != nil {
		return nil, types.NewValidationError("fingerprint", err.Error(), nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	existing, err := r.getEntry(fingerprint)
	if err != nil && !types.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		if existing.Revoked() {
			return nil, types.NewAuthorizationError("trust",
				fmt.Sprintf("fingerprint %.16s was revoked (%s); use reinstate", fingerprint, existing.RevocationReason),
				types.ErrFingerprintRevoked)
		}
		return nil, types.NewConcurrencyError("trust",
			fmt.Sprintf("fingerprint %.16s is already trusted", fingerprint),
			types.ErrAlreadyTrusted)
	}

	entry := &types.TrustEntry{
		Fingerprint: fingerprint,
		KeyName:     keyName,
		Description: description,
		TrustedAt:   time.Now().UTC(),
	}
	if err := r.putEntry(entry); err != nil {
		return nil, err
	}

	r.logger.Infof("trusted fingerprint %.16s (%s)", fingerprint, keyName)
	return entry, nil
}

// Revoke marks a trusted fingerprint as revoked. Revocation applies to
// the fingerprint only; other fingerprints, including other versions
// of the same key, are unaffected.
func (r *Registry) Revoke(ctx context.Context, fingerprint, reason string) (*types.TrustEntry, error) {
	start := time.Now()
	entry, err := r.revoke(fingerprint, reason)
	r.observe(metrics.OpRevoke, start, err)
	r.emit(ctx, audit.EventTrustRevoke, fingerprint, err)
	return entry, err
}

func (r *Registry) revoke(fingerprint, reason string) (*types.TrustEntry, error) {
	if err := validation.ValidateFingerprint(fingerprint); err != nil {
		return nil, types.NewValidationError("fingerprint", err.Error(), nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	entry, err := r.getEntry(fingerprint)
	if err != nil {
		return nil, err
	}
	if entry.Revoked() {
		return nil, types.NewConcurrencyError("revoke",
			fmt.Sprintf("fingerprint %.16s is already revoked", fingerprint),
			types.ErrFingerprintRevoked)
	}

	now := time.Now().UTC()
	entry.RevokedAt = &now
	entry.RevocationReason = reason
	if err := r.putEntry(entry); err != nil {
		return nil, err
	}

	r.logger.Warnf("revoked fingerprint %.16s: %s", fingerprint, reason)
	return entry, nil
}

// Reinstate restores trust to a revoked fingerprint. The options must
// carry Force; a fresh trust entry is written and the prior revocation
// is recorded only in the audit stream.
func (r *Registry) Reinstate(ctx context.Context, fingerprint string, opts *ReinstateOptions) (*types.TrustEntry, error) {
	start := time.Now()
	entry, err := r.reinstate(fingerprint, opts)
	r.observe(metrics.OpReinstate, start, err)
	r.emit(ctx, audit.EventTrustReinstate, fingerprint, err)
	return entry, err
}

func (r *Registry) reinstate(fingerprint string, opts *ReinstateOptions) (*types.TrustEntry, error) {
	if err := validation.ValidateFingerprint(fingerprint); err != nil {
		return nil, types.NewValidationError("fingerprint", err.Error(), nil)
	}
	if opts == nil || !opts.Force {
		return nil, types.NewValidationError("force",
			"reinstating a revoked fingerprint requires force", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	existing, err := r.getEntry(fingerprint)
	if err != nil {
		return nil, err
	}
	if !existing.Revoked() {
		return nil, types.NewConcurrencyError("reinstate",
			fmt.Sprintf("fingerprint %.16s is not revoked", fingerprint),
			types.ErrNotRevoked)
	}

	entry := &types.TrustEntry{
		Fingerprint: fingerprint,
		KeyName:     existing.KeyName,
		Description: existing.Description,
		TrustedAt:   time.Now().UTC(),
	}
	if opts.Description != "" {
		entry.Description = opts.Description
	}
	if err := r.putEntry(entry); err != nil {
		return nil, err
	}

	r.logger.Warnf("reinstated fingerprint %.16s", fingerprint)
	return entry, nil
}

// Evaluate reports the trust state of a fingerprint. Unknown
// fingerprints evaluate as untrusted, not as an error.
func (r *Registry) Evaluate(ctx context.Context, fingerprint string) (types.TrustState, error) {
	start := time.Now()
	state, err := r.evaluate(fingerprint)
	r.observe(metrics.OpEvaluate, start, err)
	return state, err
}

func (r *Registry) evaluate(fingerprint string) (types.TrustState, error) {
	if err := validation.ValidateFingerprint(fingerprint); err != nil {
		return "", types.NewValidationError("fingerprint", err.Error(), nil)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return "", ErrClosed
	}

	entry, err := r.getEntry(fingerprint)
	if err != nil {
		if types.IsNotFound(err) {
			return types.TrustStateUntrusted, nil
		}
		return "", err
	}
	if entry.Revoked() {
		return types.TrustStateRevoked, nil
	}
	return types.TrustStateTrusted, nil
}

// Get returns the trust entry for a fingerprint.
func (r *Registry) Get(ctx context.Context, fingerprint string) (*types.TrustEntry, error) {
	if err := validation.ValidateFingerprint(fingerprint); err != nil {
		return nil, types.NewValidationError("fingerprint", err.Error(), nil)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}
	return r.getEntry(fingerprint)
}

// List returns every trust entry, sorted by fingerprint.
func (r *Registry) List(ctx context.Context) ([]types.TrustEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrClosed
	}

	keys, err := r.backend.List(storage.PrefixTrust)
	if err != nil {
		return nil, fmt.Errorf("trust: listing entries: %w", err)
	}

	entries := make([]types.TrustEntry, 0, len(keys))
	for _, k := range keys {
		data, err := r.backend.Get(k)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("trust: reading %q: %w", k, err)
		}
		var entry types.TrustEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			r.logger.Warnf("skipping corrupt trust entry %q: %v", k, err)
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Fingerprint < entries[j].Fingerprint
	})
	return entries, nil
}

// Close releases the registry. Subsequent operations fail with
// ErrClosed. The storage backend is left to its owner.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// getEntry fetches and decodes an entry. Callers hold r.mu.
func (r *Registry) getEntry(fingerprint string) (*types.TrustEntry, error) {
	data, err := r.backend.Get(entryKey(fingerprint))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.NewNotFoundError("trust entry", fingerprint, types.ErrFingerprintUnknown)
		}
		return nil, fmt.Errorf("trust: reading entry %.16s: %w", fingerprint, err)
	}

	var entry types.TrustEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, types.NewIntegrityError(types.ReasonMalformed,
			fmt.Sprintf("trust entry %.16s does not decode", fingerprint),
			fmt.Errorf("%w: %v", types.ErrCorruptKeyData, err))
	}
	return &entry, nil
}

// putEntry persists an entry. Callers hold r.mu.
func (r *Registry) putEntry(entry *types.TrustEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("trust: encoding entry %.16s: %w", entry.Fingerprint, err)
	}
	if err := r.backend.Put(entryKey(entry.Fingerprint), data, nil); err != nil {
		return fmt.Errorf("trust: writing entry %.16s: %w", entry.Fingerprint, err)
	}
	return nil
}

func (r *Registry) observe(op string, start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	metrics.RecordOperation(metrics.ComponentTrust, op, status, time.Since(start).Seconds())
}

func (r *Registry) emit(ctx context.Context, eventType audit.EventType, fingerprint string, err error) {
	outcome := audit.OutcomeSuccess
	if err != nil {
		outcome = audit.OutcomeFailure
		if types.IsAuthorization(err) {
			outcome = audit.OutcomeDenied
		}
	}
	event := audit.NewEvent(eventType, outcome, fingerprint)
	if err != nil {
		event.Result = err.Error()
	}
	r.audit.Emit(ctx, event)
}

func entryKey(fingerprint string) string {
	return storage.PrefixTrust + fingerprint
}
