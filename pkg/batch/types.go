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

package batch

import (
	"context"
	"time"

	"github.com/jeremyhahn/go-signet/pkg/types"
)

// Status represents the lifecycle state of a batch job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Terminal reports whether a job in this state accepts further
// control operations.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// ItemState is the outcome of one item within a job.
type ItemState string

const (
	ItemSucceeded ItemState = "succeeded"
	ItemFailed    ItemState = "failed"
	ItemCancelled ItemState = "cancelled"
)

// Item is one unit of work. Data carries an in-memory payload, Path
// names a file on disk, and Envelope holds an encoded signature
// envelope for verification jobs. Which fields an operation reads is
// up to the operation.
type Item struct {
	ID       string
	Data     []byte
	Path     string
	Envelope []byte
}

// Operation performs the work for a single item. The context carries
// the per-item timeout when one is configured.
type Operation func(ctx context.Context, item Item) (any, error)

// JobSpec describes a batch to submit.
type JobSpec struct {

	// Kind labels the job in logs and metrics, e.g. "sign" or
	// "verify". Defaults to "operation".
	Kind string

	// Items is the ordered work list. Results preserve this order.
	Items []Item

	// Operation runs once per item, concurrently up to Concurrency.
	Operation Operation

	// Concurrency bounds the number of in-flight items. Zero selects
	// the engine default; values above the engine maximum are
	// clamped; negative values are rejected.
	Concurrency int

	// ItemTimeout bounds each attempt of each item. Zero selects the
	// engine default, which may be no timeout.
	ItemTimeout time.Duration

	// Retries is the number of additional attempts for an item whose
	// failure looks transient. Validation, not-found, authorization,
	// integrity, and concurrency failures are never retried.
	Retries int

	// Progress, when set, is invoked after every completion. Calls
	// are serialized and a panic in the callback is contained.
	Progress func(Progress)

	// Check, when set, runs before the job is accepted. An error
	// fails Submit itself and no item runs.
	Check func(ctx context.Context) error
}

// Progress is a completion snapshot handed to the progress callback.
type Progress struct {
	Completed  int
	Total      int
	Percentage float64
}

// ItemResult records the outcome of one item. Output may be populated
// alongside Err, for example a verification verdict that failed.
type ItemResult struct {
	ID       string
	Index    int
	State    ItemState
	Output   any
	Err      error
	Reason   types.Reason
	Attempts int
	Duration time.Duration
}

// Report is the final accounting for a job. Results always has one
// entry per submitted item, in submission order.
type Report struct {
	JobID          string
	Kind           string
	Status         Status
	Results        []ItemResult
	SuccessCount   int
	FailureCount   int
	CancelledCount int
	StartedAt      time.Time
	CompletedAt    time.Time
	Duration       time.Duration
}
