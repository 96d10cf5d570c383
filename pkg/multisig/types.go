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
	"time"

	"github.com/jeremyhahn/go-signet/pkg/types"
)

// Status is the lifecycle state of a signing session.
type Status string

const (
	// StatusPending means the session exists but holds no signatures.
	StatusPending Status = "pending"

	// StatusCollecting means at least one participant has submitted.
	StatusCollecting Status = "collecting"

	// StatusCompleted means the session was explicitly closed out.
	StatusCompleted Status = "completed"

	// StatusCancelled means the session was abandoned.
	StatusCancelled Status = "cancelled"

	// StatusExpired means the session passed its deadline before
	// completion.
	StatusExpired Status = "expired"
)

// Statuses lists every session status in lifecycle order.
var Statuses = []Status{StatusPending, StatusCollecting, StatusCompleted, StatusCancelled, StatusExpired}

// Terminal reports whether no transition out of the status exists.
// Terminal sessions accept no further mutation of any kind.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// SessionSpec describes a threshold signing session to create.
type SessionSpec struct {
	// Data is the payload every participant signs. Required.
	Data []byte

	// Description is free-form context recorded on the session.
	Description string

	// Threshold is how many distinct participants must sign before
	// the session is considered authorized. Must be between 1 and
	// len(Participants).
	Threshold int

	// Participants are the key names allowed to submit signatures.
	// Names must be unique and non-empty.
	Participants []string

	// TTL bounds how long the session accepts signatures. Zero uses
	// the coordinator default; negative disables expiry.
	TTL time.Duration
}

// Submission records one participant's accepted signature. The
// envelope itself stays inside the coordinator.
type Submission struct {
	KeyName     string          `json:"key_name"`
	Fingerprint string          `json:"fingerprint"`
	Algorithm   types.Algorithm `json:"algorithm"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// Session is a point-in-time snapshot of a signing session. Snapshots
// are owned by the caller; mutating one has no effect on the session.
type Session struct {
	ID           string       `json:"id"`
	Description  string       `json:"description,omitempty"`
	DataHash     string       `json:"data_hash"`
	Threshold    int          `json:"threshold"`
	Participants []string     `json:"participants"`
	Status       Status       `json:"status"`
	Collected    int          `json:"collected"`
	ThresholdMet bool         `json:"threshold_met"`
	Pending      []string     `json:"pending,omitempty"`
	Submissions  []Submission `json:"submissions,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	ExpiresAt    *time.Time   `json:"expires_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	CancelledAt  *time.Time   `json:"cancelled_at,omitempty"`
}

// VerifiedSignature identifies a submission that checked out against
// the session payload.
type VerifiedSignature struct {
	KeyName     string          `json:"key_name"`
	Fingerprint string          `json:"fingerprint"`
	Algorithm   types.Algorithm `json:"algorithm"`
}

// FailedSignature identifies a submission that did not check out,
// with its own reason.
type FailedSignature struct {
	KeyName string       `json:"key_name"`
	Reason  types.Reason `json:"reason"`
	Detail  string       `json:"detail,omitempty"`
}

// VerifyResult is the combined verdict over every collected
// signature. Valid requires the threshold met and zero failures; one
// bad signature never hides the validity of the others.
type VerifyResult struct {
	SessionID    string              `json:"session_id"`
	Valid        bool                `json:"valid"`
	ThresholdMet bool                `json:"threshold_met"`
	Threshold    int                 `json:"threshold"`
	Collected    int                 `json:"collected"`
	Verified     []VerifiedSignature `json:"verified"`
	Failed       []FailedSignature   `json:"failed"`
}
