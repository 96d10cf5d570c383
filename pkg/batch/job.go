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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jeremyhahn/go-signet/pkg/logging"
	"github.com/jeremyhahn/go-signet/pkg/metrics"
	"github.com/jeremyhahn/go-signet/pkg/types"
)

const retryBackoff = 25 * time.Millisecond

// Job is a running or finished batch. All state transitions go
// through the job's own methods; callers never mutate results
// directly.
type Job struct {
	id      string
	kind    string
	items   []Item
	op      Operation
	conc    int
	timeout time.Duration
	retries int

	progressFn func(Progress)
	progressMu sync.Mutex

	logger *logging.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	status    Status
	paused    bool
	cancelled bool
	ctxErr    error
	inflight  int
	completed int
	results   []ItemResult
	started   time.Time
	finished  time.Time
	done      chan struct{}
}

func newJob(id, kind string, spec *JobSpec, concurrency int, timeout time.Duration, retries int, logger *logging.Logger) *Job {
	items := make([]Item, len(spec.Items))
	copy(items, spec.Items)
	j := &Job{
		id:         id,
		kind:       kind,
		items:      items,
		op:         spec.Operation,
		conc:       concurrency,
		timeout:    timeout,
		retries:    retries,
		progressFn: spec.Progress,
		logger:     logger.With("job_id", id),
		status:     StatusPending,
		results:    make([]ItemResult, len(items)),
		done:       make(chan struct{}),
	}
	j.cond = sync.NewCond(&j.mu)
	return j
}

// ID returns the job identifier.
func (j *Job) ID() string { return j.id }

// Kind returns the job's label.
func (j *Job) Kind() string { return j.kind }

// Status returns the current lifecycle state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Progress returns the current completion snapshot.
func (j *Job) Progress() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progressLocked()
}

func (j *Job) progressLocked() Progress {
	p := Progress{Completed: j.completed, Total: len(j.items)}
	if p.Total > 0 {
		p.Percentage = float64(p.Completed) / float64(p.Total) * 100
	}
	return p
}

// Pause stops dispatching new items. In-flight items finish
// normally. Pausing a terminal job fails.
func (j *Job) Pause() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return types.NewConcurrencyError("pause", "job is terminal", types.ErrJobTerminal)
	}
	j.paused = true
	j.status = StatusPaused
	j.logger.Debugf("paused at %d/%d", j.completed, len(j.items))
	return nil
}

// Resume continues dispatch from the next un-started item.
func (j *Job) Resume() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return types.NewConcurrencyError("resume", "job is terminal", types.ErrJobTerminal)
	}
	if j.paused {
		j.paused = false
		j.status = StatusRunning
		j.cond.Broadcast()
		j.logger.Debugf("resumed at %d/%d", j.completed, len(j.items))
	}
	return nil
}

// Cancel marks every not-yet-started item cancelled. In-flight items
// are allowed to complete so no artifact is left half-written.
// Cancelling a terminal job fails.
func (j *Job) Cancel() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return types.NewConcurrencyError("cancel", "job is terminal", types.ErrJobTerminal)
	}
	j.cancelled = true
	j.status = StatusCancelled
	j.cond.Broadcast()
	j.logger.Infof("cancelled at %d/%d", j.completed, len(j.items))
	return nil
}

// Wait blocks until the job finishes or the context ends, then
// returns the final report.
func (j *Job) Wait(ctx context.Context) (*Report, error) {
	select {
	case <-j.done:
		return j.Report(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Report snapshots the job. Before the job finishes the report is
// partial; afterwards it is final.
func (j *Job) Report() *Report {
	j.mu.Lock()
	defer j.mu.Unlock()

	report := &Report{
		JobID:     j.id,
		Kind:      j.kind,
		Status:    j.status,
		Results:   make([]ItemResult, len(j.results)),
		StartedAt: j.started,
	}
	copy(report.Results, j.results)
	for _, r := range report.Results {
		switch r.State {
		case ItemSucceeded:
			report.SuccessCount++
		case ItemFailed:
			report.FailureCount++
		case ItemCancelled:
			report.CancelledCount++
		}
	}
	if !j.finished.IsZero() {
		report.CompletedAt = j.finished
		report.Duration = j.finished.Sub(j.started)
	}
	return report
}

func (j *Job) terminalInfo() (Status, time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status, j.finished
}

func (j *Job) run(ctx context.Context) {
	// A cancelled context must wake the dispatcher out of cond.Wait.
	stop := context.AfterFunc(ctx, func() {
		j.mu.Lock()
		j.ctxErr = ctx.Err()
		j.cond.Broadcast()
		j.mu.Unlock()
	})
	defer stop()

	metrics.BatchJobsActive.Inc()
	defer metrics.BatchJobsActive.Dec()

	j.mu.Lock()
	j.started = time.Now()
	if !j.paused && !j.cancelled {
		j.status = StatusRunning
	}
	j.mu.Unlock()

	var wg sync.WaitGroup
	for i := range j.items {
		if !j.acquireSlot() {
			j.cancelFrom(i)
			break
		}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			j.execute(ctx, idx)
		}(i)
	}
	wg.Wait()
	j.finish()
}

// acquireSlot blocks until a worker slot is free and the job is
// neither paused nor cancelled. It returns false when dispatch must
// stop.
func (j *Job) acquireSlot() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	for {
		if j.cancelled || j.ctxErr != nil {
			return false
		}
		if !j.paused && j.inflight < j.conc {
			j.inflight++
			return true
		}
		j.cond.Wait()
	}
}

func (j *Job) execute(ctx context.Context, idx int) {
	item := j.items[idx]
	start := time.Now()

	var out any
	var err error
	attempts := 0
	for {
		attempts++
		out, err = j.attempt(ctx, item)
		if err == nil || attempts > j.retries || !retryable(err) {
			break
		}
		j.logger.Debugf("retrying item %s after attempt %d: %v", item.ID, attempts, err)
		select {
		case <-time.After(time.Duration(attempts) * retryBackoff):
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	result := ItemResult{
		ID:       item.ID,
		Index:    idx,
		Output:   out,
		Attempts: attempts,
		Duration: time.Since(start),
	}
	status := metrics.StatusSuccess
	if err != nil {
		result.State = ItemFailed
		result.Err = err
		result.Reason = reasonFor(err)
		status = metrics.StatusError
		j.logger.Debugf("item %s failed: %v", item.ID, err)
	} else {
		result.State = ItemSucceeded
	}
	metrics.RecordOperation(metrics.ComponentBatch, j.kind, status, time.Since(start).Seconds())
	metrics.RecordBatchItem(string(result.State))

	j.mu.Lock()
	j.results[idx] = result
	j.completed++
	j.inflight--
	j.cond.Broadcast()
	j.mu.Unlock()

	j.notifyProgress()
}

// attempt runs the operation once under the per-item timeout and
// normalizes a blown deadline into the timeout failure.
func (j *Job) attempt(ctx context.Context, item Item) (any, error) {
	ictx := ctx
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ictx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}
	out, err := j.op(ictx, item)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("%w: item %s exceeded %s", types.ErrTimeout, item.ID, j.timeout)
	}
	return out, err
}

// cancelFrom records a cancelled result for every item from idx on.
func (j *Job) cancelFrom(idx int) {
	j.mu.Lock()
	for i := idx; i < len(j.items); i++ {
		j.results[i] = ItemResult{
			ID:     j.items[i].ID,
			Index:  i,
			State:  ItemCancelled,
			Err:    ErrItemCancelled,
			Reason: types.ReasonCancelled,
		}
		j.completed++
		metrics.RecordBatchItem(string(ItemCancelled))
	}
	j.mu.Unlock()
	j.notifyProgress()
}

func (j *Job) finish() {
	j.mu.Lock()
	if j.cancelled || j.ctxErr != nil {
		j.status = StatusCancelled
	} else {
		j.status = StatusCompleted
	}
	j.finished = time.Now()
	status := j.status
	close(j.done)
	j.mu.Unlock()

	report := j.Report()
	j.logger.Infof("job finished %s: %d succeeded, %d failed, %d cancelled in %s",
		status, report.SuccessCount, report.FailureCount, report.CancelledCount,
		report.Duration.Round(time.Millisecond))
}

// notifyProgress delivers a snapshot to the callback. progressMu
// serializes invocations so snapshots never interleave, and the
// snapshot is taken under that lock so completion counts are
// monotonic across calls.
func (j *Job) notifyProgress() {
	if j.progressFn == nil {
		return
	}
	j.progressMu.Lock()
	defer j.progressMu.Unlock()

	j.mu.Lock()
	p := j.progressLocked()
	j.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			j.logger.Errorf("progress callback panicked: %v", r)
		}
	}()
	j.progressFn(p)
}

// retryable reports whether a failure is worth another attempt.
// Deterministic failures from the error taxonomy are not; timeouts
// and unclassified I/O errors are.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, types.ErrTimeout):
		return true
	case types.IsValidation(err), types.IsNotFound(err), types.IsAuthorization(err),
		types.IsIntegrity(err), types.IsConcurrency(err):
		return false
	default:
		return true
	}
}

// reasonFor maps a failure to the reason surfaced on the item result.
func reasonFor(err error) types.Reason {
	var integrity *types.IntegrityError
	switch {
	case errors.Is(err, types.ErrTimeout):
		return types.ReasonTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, ErrItemCancelled):
		return types.ReasonCancelled
	case errors.As(err, &integrity):
		return integrity.Reason
	default:
		return ""
	}
}
