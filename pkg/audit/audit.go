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

// Package audit provides the audit trail for security-relevant engine
// operations. Components emit events through an Emitter; applications
// can supply their own implementation (SIEM integration, database) or
// use the provided logging and in-memory emitters.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-signet/pkg/logging"
)

// EventType categorizes an audit event
type EventType string

const (
	// Key lifecycle events
	EventKeyGenerate EventType = "key.generate"
	EventKeyRotate   EventType = "key.rotate"
	EventKeyRevoke   EventType = "key.revoke"
	EventKeyDelete   EventType = "key.delete"

	// Trust decisions
	EventTrustAdd       EventType = "trust.add"
	EventTrustRevoke    EventType = "trust.revoke"
	EventTrustReinstate EventType = "trust.reinstate"

	// Cryptographic operations
	EventSign   EventType = "crypto.sign"
	EventVerify EventType = "crypto.verify"
	EventSeal   EventType = "crypto.seal"
	EventUnseal EventType = "crypto.unseal"

	// Watcher lifecycle
	EventWatcherStart EventType = "watcher.start"
	EventWatcherStop  EventType = "watcher.stop"
	EventWatcherSign  EventType = "watcher.sign"

	// Multisig sessions
	EventSessionCreate   EventType = "multisig.create"
	EventSessionCollect  EventType = "multisig.collect"
	EventSessionComplete EventType = "multisig.complete"
	EventSessionCancel   EventType = "multisig.cancel"
	EventSessionExpire   EventType = "multisig.expire"
	EventSessionReset    EventType = "multisig.reset"

	// System events
	EventSystemStart EventType = "system.start"
	EventSystemStop  EventType = "system.stop"
)

// Severity indicates the importance level of an audit event
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Outcome indicates the result of the audited operation
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Event is a single audit trail entry.
type Event struct {
	// ID is a unique identifier for this event
	ID string `json:"id"`

	// Timestamp when the event occurred
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event
	Type EventType `json:"type"`

	// Severity indicates the importance level
	Severity Severity `json:"severity"`

	// Outcome indicates whether the operation succeeded
	Outcome Outcome `json:"outcome"`

	// Resource identifies what was acted on (key name, fingerprint,
	// session ID, watched path)
	Resource string `json:"resource,omitempty"`

	// Action describes what was attempted
	Action string `json:"action,omitempty"`

	// Result carries the outcome detail or error message
	Result string `json:"result,omitempty"`

	// Metadata stores additional context
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Emitter records audit events. Implementations must be safe for
// concurrent use.
type Emitter interface {
	Emit(ctx context.Context, event *Event)
}

// NewEvent builds an event with a fresh ID and the current time.
func NewEvent(eventType EventType, outcome Outcome, resource string) *Event {
	severity := SeverityInfo
	if outcome == OutcomeFailure {
		severity = SeverityError
	} else if outcome == OutcomeDenied {
		severity = SeverityWarn
	}
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Severity:  severity,
		Outcome:   outcome,
		Resource:  resource,
	}
}

// LogEmitter writes audit events through the engine logger.
type LogEmitter struct {
	logger *logging.Logger
}

// NewLogEmitter creates an Emitter backed by the given logger. A nil
// logger falls back to the default.
func NewLogEmitter(logger *logging.Logger) *LogEmitter {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &LogEmitter{logger: logger.With("component", "audit")}
}

// Emit writes the event as a structured log line.
func (e *LogEmitter) Emit(ctx context.Context, event *Event) {
	if event == nil {
		return
	}
	e.logger.Info("audit",
		"event_id", event.ID,
		"type", string(event.Type),
		"severity", string(event.Severity),
		"outcome", string(event.Outcome),
		"resource", event.Resource,
		"action", event.Action,
		"result", event.Result,
	)
}

// MemoryEmitter keeps the most recent events in a bounded ring. It
// backs the REST audit endpoint and tests.
type MemoryEmitter struct {
	mu     sync.RWMutex
	events []*Event
	max    int
}

// NewMemoryEmitter creates a MemoryEmitter retaining up to max events.
func NewMemoryEmitter(max int) *MemoryEmitter {
	if max <= 0 {
		max = 1000
	}
	return &MemoryEmitter{max: max}
}

// Emit appends the event, evicting the oldest entry when full.
func (m *MemoryEmitter) Emit(ctx context.Context, event *Event) {
	if event == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, event)
	if len(m.events) > m.max {
		m.events = m.events[len(m.events)-m.max:]
	}
}

// Events returns a copy of the retained events, oldest first.
func (m *MemoryEmitter) Events() []*Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Event, len(m.events))
	copy(out, m.events)
	return out
}

// Multi fans out events to several emitters.
type Multi struct {
	emitters []Emitter
}

// NewMulti creates an Emitter that forwards every event to each of the
// given emitters in order.
func NewMulti(emitters ...Emitter) *Multi {
	return &Multi{emitters: emitters}
}

// Emit forwards the event to all backing emitters.
func (m *Multi) Emit(ctx context.Context, event *Event) {
	for _, e := range m.emitters {
		e.Emit(ctx, event)
	}
}

// Nop is an Emitter that discards all events.
type Nop struct{}

// Emit discards the event.
func (Nop) Emit(ctx context.Context, event *Event) {}

var (
	_ Emitter = (*LogEmitter)(nil)
	_ Emitter = (*MemoryEmitter)(nil)
	_ Emitter = (*Multi)(nil)
	_ Emitter = Nop{}
)
