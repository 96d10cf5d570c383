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

// Package multisig coordinates threshold signing sessions. A session
// names the participants allowed to sign a payload and how many of
// them must do so. Participants sign independently and submit full
// signature envelopes; the coordinator tracks who has signed, whether
// the threshold is met, and the combined verification verdict.
// Sessions move pending, collecting, then one of completed, cancelled,
// or expired, and a terminal session accepts no further mutation.
package multisig

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-signet/pkg/audit"
	"github.com/jeremyhahn/go-signet/pkg/envelope"
	"github.com/jeremyhahn/go-signet/pkg/logging"
	"github.com/jeremyhahn/go-signet/pkg/metrics"
	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/jeremyhahn/go-signet/pkg/validation"
	"github.com/jeremyhahn/go-signet/pkg/verification"
)

const (
	// DefaultSessionTTL bounds sessions that do not choose their own
	// lifetime.
	DefaultSessionTTL = 24 * time.Hour

	// DefaultSweepInterval is how often the background sweep reclaims
	// expired sessions.
	DefaultSweepInterval = time.Minute

	// MaxParticipants caps the participant list of a single session.
	MaxParticipants = 128
)

// Config holds the dependencies for a Coordinator.
type Config struct {
	// Verifier checks collected signatures. Required for
	// VerifyMultiSignature; collection works without it.
	Verifier *verification.Verifier

	// Logger is the engine logger. Defaults to logging.DefaultLogger().
	Logger *logging.Logger

	// Audit receives session lifecycle events. Defaults to a no-op
	// emitter.
	Audit audit.Emitter

	// SessionTTL applies to sessions whose spec does not set a TTL.
	// Defaults to DefaultSessionTTL.
	SessionTTL time.Duration

	// SweepInterval is the cadence of the expiry sweep. Defaults to
	// DefaultSweepInterval; negative disables the background sweep.
	SweepInterval time.Duration
}

// submission pairs the public record with the decoded envelope it was
// accepted from.
type submission struct {
	Submission
	env *envelope.Envelope
}

// session is the mutable server-side state. Every mutation happens
// under the session's own mutex, so concurrent submissions from
// different participants never lose updates.
type session struct {
	mu sync.Mutex

	id           string
	description  string
	data         []byte
	dataHash     string
	threshold    int
	participants []string
	status       Status
	submissions  []submission
	createdAt    time.Time
	expiresAt    *time.Time
	completedAt  *time.Time
	cancelledAt  *time.Time
	finished     time.Time
}

// Coordinator manages threshold signing sessions. All methods are
// safe for concurrent use.
type Coordinator struct {
	verifier *verification.Verifier
	logger   *logging.Logger
	audit    audit.Emitter
	ttl      time.Duration

	mu       sync.RWMutex
	sessions map[string]*session

	closeOnce sync.Once
	quit      chan struct{}
	done      chan struct{}
}

// New creates a Coordinator. A nil config selects defaults.
func New(cfg *Config) *Coordinator {
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
	ttl := cfg.SessionTTL
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}

	c := &Coordinator{
		verifier: cfg.Verifier,
		logger:   logger.With("component", "multisig"),
		audit:    emitter,
		ttl:      ttl,
		sessions: make(map[string]*session),
	}

	interval := cfg.SweepInterval
	if interval == 0 {
		interval = DefaultSweepInterval
	}
	if interval > 0 {
		c.quit = make(chan struct{})
		c.done = make(chan struct{})
		go c.sweepLoop(interval)
	}
	return c
}

// Close stops the background expiry sweep. Sessions remain readable
// and collectable afterwards.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		if c.quit != nil {
			close(c.quit)
			<-c.done
		}
	})
	return nil
}

// CreateSession registers a new threshold signing session over the
// given payload.
func (c *Coordinator) CreateSession(ctx context.Context, spec *SessionSpec) (*Session, error) {
	start := time.Now()
	snap, err := c.createSession(spec)
	c.observe(metrics.OpCreate, start, err)
	resource := ""
	if snap != nil {
		resource = snap.ID
	}
	c.emit(ctx, audit.EventSessionCreate, resource, err)
	return snap, err
}

func (c *Coordinator) createSession(spec *SessionSpec) (*Session, error) {
	if spec == nil {
		return nil, types.NewValidationError("spec", "session spec is required", nil)
	}
	if len(spec.Data) == 0 {
		return nil, types.NewValidationError("data", "session data is required", types.ErrEmptyInput)
	}
	if len(spec.Participants) == 0 {
		return nil, types.NewValidationError("participants", "at least one participant is required", types.ErrEmptyParticipants)
	}
	if len(spec.Participants) > MaxParticipants {
		return nil, types.NewValidationError("participants",
			fmt.Sprintf("at most %d participants are supported", MaxParticipants), nil)
	}
	seen := make(map[string]bool, len(spec.Participants))
	for _, name := range spec.Participants {
		if err := validation.ValidateKeyName(name); err != nil {
			return nil, types.NewValidationError("participants", err.Error(), nil)
		}
		if seen[name] {
			return nil, types.NewValidationError("participants",
				fmt.Sprintf("participant %s is listed twice", name), types.ErrDuplicateParticipant)
		}
		seen[name] = true
	}
	if spec.Threshold < 1 || spec.Threshold > len(spec.Participants) {
		return nil, types.NewValidationError("threshold",
			fmt.Sprintf("threshold %d must be between 1 and %d", spec.Threshold, len(spec.Participants)),
			types.ErrInvalidThreshold)
	}

	now := time.Now().UTC()
	s := &session{
		id:           uuid.NewString(),
		description:  spec.Description,
		data:         append([]byte(nil), spec.Data...),
		dataHash:     envelope.HashPayload(spec.Data),
		threshold:    spec.Threshold,
		participants: append([]string(nil), spec.Participants...),
		status:       StatusPending,
		createdAt:    now,
	}
	ttl := spec.TTL
	if ttl == 0 {
		ttl = c.ttl
	}
	if ttl > 0 {
		deadline := now.Add(ttl)
		s.expiresAt = &deadline
	}

	c.mu.Lock()
	c.sessions[s.id] = s
	c.mu.Unlock()
	c.refreshGauge()

	c.logger.Infof("created session %s: %d of %d signatures required",
		s.id, s.threshold, len(s.participants))

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// CollectSignature accepts one participant's signature envelope. The
// first submission moves the session from pending to collecting; each
// participant contributes at most once and duplicates are rejected
// without altering the collected count.
func (c *Coordinator) CollectSignature(ctx context.Context, sessionID, keyName string, signature []byte) (*Session, error) {
	start := time.Now()
	snap, err := c.collectSignature(ctx, sessionID, keyName, signature)
	c.observe(metrics.OpCollect, start, err)
	c.emit(ctx, audit.EventSessionCollect, sessionID, err)
	return snap, err
}

func (c *Coordinator) collectSignature(ctx context.Context, sessionID, keyName string, signature []byte) (*Session, error) {
	if keyName == "" {
		return nil, types.NewValidationError("key_name", "participant key name is required", nil)
	}
	if len(signature) == 0 {
		return nil, types.NewValidationError("signature", "signature envelope is required", types.ErrEmptyInput)
	}
	env, err := envelope.Decode(signature)
	if err != nil {
		return nil, err
	}
	if env.KeyName != "" && env.KeyName != keyName {
		return nil, types.NewValidationError("signature",
			fmt.Sprintf("envelope was produced by key %q, not participant %q", env.KeyName, keyName), nil)
	}

	s, err := c.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	c.expireIfDue(ctx, s)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return nil, types.NewConcurrencyError("collect",
			fmt.Sprintf("session is %s", s.status), types.ErrSessionTerminal)
	}
	if !slices.Contains(s.participants, keyName) {
		return nil, types.NewAuthorizationError("collect",
			fmt.Sprintf("%s is not a participant of session %s", keyName, s.id), types.ErrNotAParticipant)
	}
	for _, sub := range s.submissions {
		if sub.KeyName == keyName {
			return nil, types.NewConcurrencyError("collect",
				fmt.Sprintf("participant %s already submitted", keyName), types.ErrDuplicateSubmission)
		}
	}

	s.submissions = append(s.submissions, submission{
		Submission: Submission{
			KeyName:     keyName,
			Fingerprint: env.Fingerprint,
			Algorithm:   env.Algorithm,
			SubmittedAt: time.Now().UTC(),
		},
		env: env,
	})
	if s.status == StatusPending {
		s.status = StatusCollecting
	}

	snap := s.snapshotLocked()
	c.logger.Infof("session %s: collected %d of %d required signatures",
		s.id, snap.Collected, s.threshold)
	return snap, nil
}

// VerifyMultiSignature independently verifies every collected
// signature against the session payload. Failing submissions are
// reported alongside the verified ones; the combined verdict is valid
// only when the threshold is met and nothing failed.
func (c *Coordinator) VerifyMultiSignature(ctx context.Context, sessionID string) (*VerifyResult, error) {
	start := time.Now()
	result, err := c.verifyMultiSignature(ctx, sessionID)
	c.observe(metrics.OpVerify, start, err)
	return result, err
}

func (c *Coordinator) verifyMultiSignature(ctx context.Context, sessionID string) (*VerifyResult, error) {
	if c.verifier == nil {
		return nil, types.NewValidationError("verifier", "no verifier configured", nil)
	}
	s, err := c.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	c.expireIfDue(ctx, s)

	s.mu.Lock()
	data := s.data
	threshold := s.threshold
	subs := append([]submission(nil), s.submissions...)
	s.mu.Unlock()

	result := &VerifyResult{
		SessionID:    s.id,
		Threshold:    threshold,
		Collected:    len(subs),
		ThresholdMet: len(subs) >= threshold,
		Verified:     []VerifiedSignature{},
		Failed:       []FailedSignature{},
	}
	for _, sub := range subs {
		res, err := c.verifier.VerifyEnvelope(ctx, data, sub.env, nil)
		switch {
		case err != nil:
			result.Failed = append(result.Failed, FailedSignature{
				KeyName: sub.KeyName,
				Reason:  reasonFromError(err),
				Detail:  err.Error(),
			})
		case !res.Valid:
			result.Failed = append(result.Failed, FailedSignature{
				KeyName: sub.KeyName,
				Reason:  res.Reason,
				Detail:  res.Detail,
			})
		default:
			result.Verified = append(result.Verified, VerifiedSignature{
				KeyName:     sub.KeyName,
				Fingerprint: sub.Fingerprint,
				Algorithm:   sub.Algorithm,
			})
		}
	}
	result.Valid = result.ThresholdMet && len(result.Failed) == 0

	c.logger.Infof("session %s: %d verified, %d failed, valid=%t",
		s.id, len(result.Verified), len(result.Failed), result.Valid)
	return result, nil
}

// CompleteSession forces the session into the completed terminal
// state. The caller decides whether the threshold verdict warrants
// completion; the transition itself is unconditional.
func (c *Coordinator) CompleteSession(ctx context.Context, sessionID string) (*Session, error) {
	start := time.Now()
	snap, err := c.transition(ctx, sessionID, StatusCompleted)
	c.observe(metrics.OpComplete, start, err)
	c.emit(ctx, audit.EventSessionComplete, sessionID, err)
	return snap, err
}

// CancelSession forces the session into the cancelled terminal state.
func (c *Coordinator) CancelSession(ctx context.Context, sessionID string) (*Session, error) {
	start := time.Now()
	snap, err := c.transition(ctx, sessionID, StatusCancelled)
	c.observe(metrics.OpCancel, start, err)
	c.emit(ctx, audit.EventSessionCancel, sessionID, err)
	return snap, err
}

func (c *Coordinator) transition(ctx context.Context, sessionID string, to Status) (*Session, error) {
	s, err := c.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	c.expireIfDue(ctx, s)

	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return nil, types.NewConcurrencyError(string(to),
			fmt.Sprintf("session is already %s", s.status), types.ErrSessionTerminal)
	}
	now := time.Now().UTC()
	s.status = to
	s.finished = now
	switch to {
	case StatusCompleted:
		s.completedAt = &now
	case StatusCancelled:
		s.cancelledAt = &now
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	c.refreshGauge()
	c.logger.Infof("session %s is %s", s.id, to)
	return snap, nil
}

// ResetSession discards every collected signature and returns the
// session to pending. Terminal sessions, expired ones included,
// cannot be reset.
func (c *Coordinator) ResetSession(ctx context.Context, sessionID string) (*Session, error) {
	start := time.Now()
	snap, err := c.resetSession(ctx, sessionID)
	c.observe(metrics.OpReset, start, err)
	c.emit(ctx, audit.EventSessionReset, sessionID, err)
	return snap, err
}

func (c *Coordinator) resetSession(ctx context.Context, sessionID string) (*Session, error) {
	s, err := c.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	c.expireIfDue(ctx, s)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return nil, types.NewConcurrencyError("reset",
			fmt.Sprintf("session is %s", s.status), types.ErrSessionTerminal)
	}
	s.submissions = nil
	s.status = StatusPending
	c.logger.Infof("session %s reset", s.id)
	return s.snapshotLocked(), nil
}

// Get returns a snapshot of a session.
func (c *Coordinator) Get(ctx context.Context, sessionID string) (*Session, error) {
	s, err := c.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	c.expireIfDue(ctx, s)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// List returns snapshots of every session, oldest first.
func (c *Coordinator) List(ctx context.Context) []*Session {
	c.mu.RLock()
	sessions := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.RUnlock()

	snaps := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		c.expireIfDue(ctx, s)
		s.mu.Lock()
		snaps = append(snaps, s.snapshotLocked())
		s.mu.Unlock()
	}
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].ID < snaps[j].ID
		}
		return snaps[i].CreatedAt.Before(snaps[j].CreatedAt)
	})
	return snaps
}

// SweepExpired transitions every session past its deadline to expired
// and reports how many were reclaimed. The background sweep calls
// this on a timer; it is exported so a server can force a pass.
func (c *Coordinator) SweepExpired(ctx context.Context) int {
	c.mu.RLock()
	sessions := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.RUnlock()

	expired := 0
	for _, s := range sessions {
		if c.expireIfDue(ctx, s) {
			expired++
		}
	}
	return expired
}

// Prune removes terminal sessions older than maxAge and reports how
// many were dropped.
func (c *Coordinator) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	c.mu.Lock()
	for id, s := range c.sessions {
		s.mu.Lock()
		prune := s.status.Terminal() && !s.finished.IsZero() && s.finished.Before(cutoff)
		s.mu.Unlock()
		if prune {
			delete(c.sessions, id)
			removed++
		}
	}
	c.mu.Unlock()
	if removed > 0 {
		c.refreshGauge()
	}
	return removed
}

func (c *Coordinator) lookup(sessionID string) (*session, error) {
	c.mu.RLock()
	s, ok := c.sessions[sessionID]
	c.mu.RUnlock()
	if !ok {
		return nil, types.NewNotFoundError("session", sessionID, types.ErrSessionNotFound)
	}
	return s, nil
}

// expireIfDue moves a session past its deadline into the expired
// state. It reports whether this call performed the transition, so
// the expiry event is emitted exactly once.
func (c *Coordinator) expireIfDue(ctx context.Context, s *session) bool {
	s.mu.Lock()
	due := !s.status.Terminal() && s.expiresAt != nil && time.Now().After(*s.expiresAt)
	if due {
		s.status = StatusExpired
		s.finished = time.Now().UTC()
	}
	s.mu.Unlock()

	if due {
		c.refreshGauge()
		c.logger.Infof("session %s expired", s.id)
		c.audit.Emit(ctx, audit.NewEvent(audit.EventSessionExpire, audit.OutcomeSuccess, s.id))
	}
	return due
}

func (c *Coordinator) sweepLoop(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
			if n := c.SweepExpired(context.Background()); n > 0 {
				c.logger.Debugf("expiry sweep reclaimed %d sessions", n)
			}
		}
	}
}

// refreshGauge recounts sessions by status. Zeroes are written too so
// the gauge falls when sessions leave a state.
func (c *Coordinator) refreshGauge() {
	counts := make(map[Status]int, len(Statuses))
	c.mu.RLock()
	for _, s := range c.sessions {
		s.mu.Lock()
		counts[s.status]++
		s.mu.Unlock()
	}
	c.mu.RUnlock()
	for _, status := range Statuses {
		metrics.SetMultiSigSessions(string(status), float64(counts[status]))
	}
}

func (c *Coordinator) observe(op string, start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	metrics.RecordOperation(metrics.ComponentMultiSig, op, status, time.Since(start).Seconds())
}

func (c *Coordinator) emit(ctx context.Context, eventType audit.EventType, resource string, err error) {
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
	c.audit.Emit(ctx, event)
}

// snapshotLocked builds the public view. Callers hold s.mu.
func (s *session) snapshotLocked() *Session {
	submitted := make(map[string]bool, len(s.submissions))
	subs := make([]Submission, len(s.submissions))
	for i, sub := range s.submissions {
		subs[i] = sub.Submission
		submitted[sub.KeyName] = true
	}
	var pending []string
	for _, name := range s.participants {
		if !submitted[name] {
			pending = append(pending, name)
		}
	}

	snap := &Session{
		ID:           s.id,
		Description:  s.description,
		DataHash:     s.dataHash,
		Threshold:    s.threshold,
		Participants: append([]string(nil), s.participants...),
		Status:       s.status,
		Collected:    len(s.submissions),
		ThresholdMet: len(s.submissions) >= s.threshold,
		Pending:      pending,
		Submissions:  subs,
		CreatedAt:    s.createdAt,
	}
	if s.expiresAt != nil {
		t := *s.expiresAt
		snap.ExpiresAt = &t
	}
	if s.completedAt != nil {
		t := *s.completedAt
		snap.CompletedAt = &t
	}
	if s.cancelledAt != nil {
		t := *s.cancelledAt
		snap.CancelledAt = &t
	}
	return snap
}

// reasonFromError maps a verifier call error onto a stable reason for
// the failed-signature record.
func reasonFromError(err error) types.Reason {
	var integrity *types.IntegrityError
	if errors.As(err, &integrity) {
		return integrity.Reason
	}
	if types.IsNotFound(err) {
		return types.ReasonUnknownKey
	}
	return types.ReasonInvalidSignature
}
