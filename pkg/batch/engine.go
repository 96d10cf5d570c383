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

// Package batch executes collections of sign and verify operations
// under a bounded worker pool. One failing item never aborts the job;
// failures are recorded per item and the report always carries one
// result per submitted item, in submission order. Jobs can be paused,
// resumed, and cancelled while running.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-signet/pkg/logging"
	"github.com/jeremyhahn/go-signet/pkg/types"
)

const (
	// DefaultConcurrency is used when a spec leaves Concurrency zero.
	DefaultConcurrency = 4

	// DefaultMaxConcurrency is the clamp applied to requested
	// concurrency when the engine config does not override it.
	DefaultMaxConcurrency = 32
)

// ErrItemCancelled is recorded on items that were never started
// because their job was cancelled first.
var ErrItemCancelled = errors.New("batch: item cancelled before execution")

// Config holds engine construction parameters. The zero value is
// usable.
type Config struct {
	Logger *logging.Logger

	// MaxConcurrency clamps per-job concurrency. Defaults to
	// DefaultMaxConcurrency.
	MaxConcurrency int

	// DefaultConcurrency applies when a spec leaves Concurrency
	// zero. Defaults to DefaultConcurrency.
	DefaultConcurrency int

	// DefaultItemTimeout applies when a spec leaves ItemTimeout
	// zero. Zero means items run without a deadline.
	DefaultItemTimeout time.Duration
}

// Engine tracks and runs batch jobs.
type Engine struct {
	logger         *logging.Logger
	maxConcurrency int
	defaultConc    int
	defaultTimeout time.Duration

	mu   sync.RWMutex
	jobs map[string]*Job
}

// New creates a batch engine. A nil config selects defaults.
func New(cfg *Config) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	maxConc := cfg.MaxConcurrency
	if maxConc <= 0 {
		maxConc = DefaultMaxConcurrency
	}
	defaultConc := cfg.DefaultConcurrency
	if defaultConc <= 0 {
		defaultConc = DefaultConcurrency
	}
	if defaultConc > maxConc {
		defaultConc = maxConc
	}
	return &Engine{
		logger:         logger.With("component", "batch"),
		maxConcurrency: maxConc,
		defaultConc:    defaultConc,
		defaultTimeout: cfg.DefaultItemTimeout,
		jobs:           make(map[string]*Job),
	}
}

// Submit validates the spec, registers a job, and starts it. The
// context governs the whole run, so callers serving requests should
// pass a lifetime broader than the request. Structural problems fail
// here before any item runs.
func (e *Engine) Submit(ctx context.Context, spec *JobSpec) (*Job, error) {
	if spec == nil {
		return nil, types.NewValidationError("spec", "job spec is required", nil)
	}
	if spec.Operation == nil {
		return nil, types.NewValidationError("operation", "job operation is required", types.ErrNilOperation)
	}
	if len(spec.Items) == 0 {
		return nil, types.NewValidationError("items", "job has no items", types.ErrNoItems)
	}

	concurrency := spec.Concurrency
	if concurrency == 0 {
		concurrency = e.defaultConc
	}
	if concurrency < 1 {
		return nil, types.NewValidationError("concurrency",
			"concurrency must be at least 1", types.ErrInvalidConcurrency)
	}
	if concurrency > e.maxConcurrency {
		e.logger.Debugf("clamping concurrency %d to %d", concurrency, e.maxConcurrency)
		concurrency = e.maxConcurrency
	}

	timeout := spec.ItemTimeout
	if timeout == 0 {
		timeout = e.defaultTimeout
	}
	retries := spec.Retries
	if retries < 0 {
		retries = 0
	}
	kind := spec.Kind
	if kind == "" {
		kind = "operation"
	}

	if spec.Check != nil {
		if err := spec.Check(ctx); err != nil {
			return nil, err
		}
	}

	job := newJob(uuid.NewString(), kind, spec, concurrency, timeout, retries, e.logger)

	e.mu.Lock()
	e.jobs[job.id] = job
	e.mu.Unlock()

	e.logger.Infof("submitted %s job %s: %d items, concurrency %d",
		kind, job.id, len(spec.Items), concurrency)

	go job.run(ctx)
	return job, nil
}

// Run submits the spec and blocks until the job finishes or the
// context ends.
func (e *Engine) Run(ctx context.Context, spec *JobSpec) (*Report, error) {
	job, err := e.Submit(ctx, spec)
	if err != nil {
		return nil, err
	}
	return job.Wait(ctx)
}

// Job returns a tracked job by ID.
func (e *Engine) Job(id string) (*Job, error) {
	e.mu.RLock()
	job, ok := e.jobs[id]
	e.mu.RUnlock()
	if !ok {
		return nil, types.NewNotFoundError("job", id, types.ErrJobNotFound)
	}
	return job, nil
}

// Jobs returns a snapshot of every tracked job.
func (e *Engine) Jobs() []*Job {
	e.mu.RLock()
	defer e.mu.RUnlock()
	jobs := make([]*Job, 0, len(e.jobs))
	for _, job := range e.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// CancelAll cancels every non-terminal job and returns how many were
// cancelled. In-flight items are still allowed to finish.
func (e *Engine) CancelAll() int {
	cancelled := 0
	for _, job := range e.Jobs() {
		if err := job.Cancel(); err == nil {
			cancelled++
		}
	}
	if cancelled > 0 {
		e.logger.Infof("cancelled %d active jobs", cancelled)
	}
	return cancelled
}

// Prune drops terminal jobs that finished more than maxAge ago and
// returns how many were removed.
func (e *Engine) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for id, job := range e.jobs {
		status, finished := job.terminalInfo()
		if status.Terminal() && finished.Before(cutoff) {
			delete(e.jobs, id)
			removed++
		}
	}
	return removed
}
