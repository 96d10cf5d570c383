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
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine. Components wrap these with
// fmt.Errorf("%w: ...") so call sites can match with errors.Is.
var (
	// Key lifecycle
	ErrKeyNotFound          = errors.New("signet: key not found")
	ErrDuplicateName        = errors.New("signet: key name already exists")
	ErrWeakPassphrase       = errors.New("signet: passphrase fails policy")
	ErrWrongPassphrase      = errors.New("signet: passphrase does not unseal key")
	ErrKeyDeleted           = errors.New("signet: key is deleted")
	ErrKeyRevoked           = errors.New("signet: key is revoked")
	ErrCorruptKeyData       = errors.New("signet: key data is corrupt")
	ErrUnsupportedAlgorithm = errors.New("signet: unsupported algorithm")

	// Signing and verification
	ErrEmptyInput        = errors.New("signet: empty input")
	ErrUnsupportedFormat = errors.New("signet: unsupported envelope format")
	ErrPayloadTooLarge   = errors.New("signet: payload exceeds size limit")
	ErrMalformedEnvelope = errors.New("signet: malformed signature envelope")
	ErrEnvelopeExpired   = errors.New("signet: signature envelope expired")

	// Trust
	ErrFingerprintRevoked = errors.New("signet: fingerprint is revoked")
	ErrFingerprintUnknown = errors.New("signet: fingerprint not registered")
	ErrAlreadyTrusted     = errors.New("signet: fingerprint already trusted")
	ErrNotRevoked         = errors.New("signet: fingerprint is not revoked")

	// Batch
	ErrInvalidConcurrency = errors.New("signet: invalid concurrency limit")
	ErrNoItems            = errors.New("signet: batch has no items")
	ErrNilOperation       = errors.New("signet: batch operation is nil")
	ErrJobNotFound        = errors.New("signet: batch job not found")
	ErrJobTerminal        = errors.New("signet: batch job already finished")
	ErrTimeout            = errors.New("signet: operation timed out")

	// Watcher
	ErrWatcherNotFound = errors.New("signet: watcher not found")
	ErrWatcherStopped  = errors.New("signet: watcher is stopped")
	ErrWatcherActive   = errors.New("signet: watcher already active")

	// Multisig sessions
	ErrSessionNotFound      = errors.New("signet: session not found")
	ErrSessionTerminal      = errors.New("signet: session is terminal")
	ErrInvalidThreshold     = errors.New("signet: invalid threshold")
	ErrEmptyParticipants    = errors.New("signet: participants list is empty")
	ErrDuplicateParticipant = errors.New("signet: duplicate participant")
	ErrNotAParticipant      = errors.New("signet: key is not a session participant")
	ErrDuplicateSubmission  = errors.New("signet: participant already submitted")
)

// ValidationError reports input that fails structural or policy checks.
// Validation failures are fail-fast and never retried.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// Unwrap returns the wrapped sentinel, if any.
func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError builds a ValidationError wrapping the given
// sentinel so both errors.As and errors.Is match.
func NewValidationError(field, reason string, err error) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Err: err}
}

// NotFoundError reports a reference to an unknown key, session,
// watcher, or batch job.
type NotFoundError struct {
	Resource string
	Name     string
	Err      error
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Name)
}

// Unwrap returns the wrapped sentinel, if any.
func (e *NotFoundError) Unwrap() error { return e.Err }

// NewNotFoundError builds a NotFoundError wrapping the given sentinel.
func NewNotFoundError(resource, name string, err error) *NotFoundError {
	return &NotFoundError{Resource: resource, Name: name, Err: err}
}

// AuthorizationError reports an operation the caller is not permitted
// to perform: a non-participant submission, a wrong passphrase, or use
// of a revoked key where policy forbids it.
type AuthorizationError struct {
	Op     string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *AuthorizationError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s not authorized: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("not authorized: %s", e.Reason)
}

// Unwrap returns the wrapped sentinel, if any.
func (e *AuthorizationError) Unwrap() error { return e.Err }

// NewAuthorizationError builds an AuthorizationError wrapping the given
// sentinel.
func NewAuthorizationError(op, reason string, err error) *AuthorizationError {
	return &AuthorizationError{Op: op, Reason: reason, Err: err}
}

// IntegrityError reports data or signature state that does not check
// out: mismatched digests, invalid signatures, malformed or expired
// envelopes, corrupt sealed blobs. In batch contexts it is recorded as
// a per-item result, not raised.
type IntegrityError struct {
	Reason Reason
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("integrity check failed (%s): %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("integrity check failed (%s)", e.Reason)
}

// Unwrap returns the wrapped sentinel, if any.
func (e *IntegrityError) Unwrap() error { return e.Err }

// NewIntegrityError builds an IntegrityError wrapping the given
// sentinel.
func NewIntegrityError(reason Reason, detail string, err error) *IntegrityError {
	return &IntegrityError{Reason: reason, Detail: detail, Err: err}
}

// ConcurrencyError reports a state conflict: a duplicate submission, a
// mutation of a terminal session or watcher, or a job started twice.
type ConcurrencyError struct {
	Op     string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ConcurrencyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s conflicts with current state: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("state conflict: %s", e.Reason)
}

// Unwrap returns the wrapped sentinel, if any.
func (e *ConcurrencyError) Unwrap() error { return e.Err }

// NewConcurrencyError builds a ConcurrencyError wrapping the given
// sentinel.
func NewConcurrencyError(op, reason string, err error) *ConcurrencyError {
	return &ConcurrencyError{Op: op, Reason: reason, Err: err}
}

// Reason is a stable machine-readable code attached to verification
// and batch results.
type Reason string

const (
	ReasonDataMismatch     Reason = "DataMismatch"
	ReasonInvalidSignature Reason = "InvalidSignature"
	ReasonUnknownKey       Reason = "UnknownKey"
	ReasonExpired          Reason = "Expired"
	ReasonEmptyInput       Reason = "EmptyInput"
	ReasonTimeout          Reason = "Timeout"
	ReasonCancelled        Reason = "Cancelled"
	ReasonMalformed        Reason = "MalformedEnvelope"
)

// String returns the string representation of the reason code.
func (r Reason) String() string {
	return string(r)
}

// IsValidation reports whether err is classified as a validation
// failure.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsNotFound reports whether err is classified as a missing resource.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsAuthorization reports whether err is classified as an
// authorization failure.
func IsAuthorization(err error) bool {
	var e *AuthorizationError
	return errors.As(err, &e)
}

// IsIntegrity reports whether err is classified as an integrity
// failure.
func IsIntegrity(err error) bool {
	var e *IntegrityError
	return errors.As(err, &e)
}

// IsConcurrency reports whether err is classified as a state conflict.
func IsConcurrency(err error) bool {
	var e *ConcurrencyError
	return errors.As(err, &e)
}
