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

package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jeremyhahn/go-signet/pkg/audit"
	"github.com/jeremyhahn/go-signet/pkg/batch"
	"github.com/jeremyhahn/go-signet/pkg/logging"
	"github.com/jeremyhahn/go-signet/pkg/signing"
	"github.com/jeremyhahn/go-signet/pkg/types"
)

// ErrSignerRequired is returned when a registry is constructed
// without a signer.
var ErrSignerRequired = errors.New("watcher: signer is required")

const (
	// DefaultQueueSize bounds a watcher's event backlog.
	DefaultQueueSize = 64

	// DefaultMaxConcurrent bounds a watcher's in-flight signatures.
	DefaultMaxConcurrent = 2

	// DefaultActivityLimit bounds the retained activity log.
	DefaultActivityLimit = 256
)

// RegistryConfig holds registry construction parameters.
type RegistryConfig struct {
	Signer *signing.Signer
	Logger *logging.Logger
	Audit  audit.Emitter

	DefaultQueueSize     int
	DefaultMaxConcurrent int
	DefaultActivityLimit int
}

// Registry owns every watcher in the process. It is created at
// startup, injected where needed, and drained on shutdown with
// StopAll. Stopped watchers remain queryable until removed.
type Registry struct {
	signer *signing.Signer
	logger *logging.Logger
	audit  audit.Emitter

	queueSize     int
	maxConcurrent int
	activityLimit int

	mu       sync.RWMutex
	watchers map[string]*Watcher
}

// NewRegistry creates a watcher registry around the signer.
func NewRegistry(cfg *RegistryConfig) (*Registry, error) {
	if cfg == nil || cfg.Signer == nil {
		return nil, ErrSignerRequired
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	emitter := cfg.Audit
	if emitter == nil {
		emitter = &audit.Nop{}
	}
	queueSize := cfg.DefaultQueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	maxConcurrent := cfg.DefaultMaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	activityLimit := cfg.DefaultActivityLimit
	if activityLimit <= 0 {
		activityLimit = DefaultActivityLimit
	}
	return &Registry{
		signer:        cfg.Signer,
		logger:        logger.With("component", "watcher"),
		audit:         emitter,
		queueSize:     queueSize,
		maxConcurrent: maxConcurrent,
		activityLimit: activityLimit,
		watchers:      make(map[string]*Watcher),
	}, nil
}

// Start validates the configuration, creates the watcher, and begins
// watching. The directory and the signing key must both exist.
func (r *Registry) Start(ctx context.Context, cfg *Config) (*Watcher, error) {
	if cfg == nil {
		return nil, types.NewValidationError("config", "watcher config is required", nil)
	}
	if cfg.Directory == "" {
		return nil, types.NewValidationError("directory", "directory is required", nil)
	}
	info, err := os.Stat(cfg.Directory)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.NewNotFoundError("directory", cfg.Directory, err)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, types.NewValidationError("directory", cfg.Directory+" is not a directory", nil)
	}
	if cfg.KeyName == "" {
		return nil, types.NewValidationError("key_name", "key name is required", nil)
	}
	if _, err := r.signer.KeyStore().Get(ctx, cfg.KeyName); err != nil {
		return nil, err
	}
	if err := validatePatterns("patterns", cfg.Patterns); err != nil {
		return nil, err
	}
	if err := validatePatterns("exclude_patterns", cfg.ExcludePatterns); err != nil {
		return nil, err
	}
	if cfg.MaxFileSize < 0 {
		return nil, types.NewValidationError("max_file_size", "max file size cannot be negative", nil)
	}
	if cfg.BackupSignedFiles && cfg.BackupDirectory == "" {
		return nil, types.NewValidationError("backup_directory",
			"backup directory is required when backups are enabled", nil)
	}

	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}

	w := r.build(id, cfg)

	r.mu.Lock()
	if _, exists := r.watchers[id]; exists {
		r.mu.Unlock()
		return nil, types.NewValidationError("id", "watcher id already in use", nil)
	}
	r.watchers[id] = w
	r.mu.Unlock()

	if err := w.start(ctx); err != nil {
		r.mu.Lock()
		delete(r.watchers, id)
		r.mu.Unlock()
		return nil, err
	}
	return w, nil
}

func (r *Registry) build(id string, cfg *Config) *Watcher {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = r.queueSize
	}
	maxConc := cfg.MaxConcurrent
	if maxConc <= 0 {
		maxConc = r.maxConcurrent
	}
	activityLimit := cfg.ActivityLimit
	if activityLimit <= 0 {
		activityLimit = r.activityLimit
	}
	drainMax := maxConc * 2
	if drainMax < 4 {
		drainMax = 4
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.EventsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EventsPerSecond), drainMax)
	}

	signOpts := signing.DefaultOptions()
	if cfg.SigningOptions != nil {
		signOpts = cfg.SigningOptions
	}

	logger := r.logger.With("watcher_id", id)
	w := &Watcher{
		id:        id,
		dir:       cfg.Directory,
		recursive: cfg.Recursive,
		queueCap:  queueSize,
		maxConc:   maxConc,
		drainMax:  drainMax,
		signer:    r.signer,
		engine: batch.New(&batch.Config{
			Logger:             logger,
			MaxConcurrency:     maxConc,
			DefaultConcurrency: maxConc,
		}),
		logger:        logger,
		audit:         r.audit,
		limiter:       limiter,
		queue:         make(chan string, queueSize),
		state:         StateInactive,
		keyName:       cfg.KeyName,
		passphrase:    cfg.Passphrase,
		signOpts:      *signOpts,
		backup:        cfg.BackupSignedFiles,
		backupDir:     cfg.BackupDirectory,
		activityLimit: activityLimit,
		created:       time.Now().UTC(),
		filt: filter{
			dir:          cfg.Directory,
			patterns:     append([]string(nil), cfg.Patterns...),
			exclude:      append([]string(nil), cfg.ExcludePatterns...),
			recursive:    cfg.Recursive,
			watchMods:    cfg.WatchModifications,
			ignoreHidden: cfg.IgnoreHidden,
			maxFileSize:  cfg.MaxFileSize,
			backupDir:    cfg.BackupDirectory,
		},
	}
	return w
}

// Get returns a watcher by ID.
func (r *Registry) Get(id string) (*Watcher, error) {
	r.mu.RLock()
	w, ok := r.watchers[id]
	r.mu.RUnlock()
	if !ok {
		return nil, types.NewNotFoundError("watcher", id, types.ErrWatcherNotFound)
	}
	return w, nil
}

// List returns every watcher, oldest first.
func (r *Registry) List() []*Watcher {
	r.mu.RLock()
	watchers := make([]*Watcher, 0, len(r.watchers))
	for _, w := range r.watchers {
		watchers = append(watchers, w)
	}
	r.mu.RUnlock()
	sort.Slice(watchers, func(i, j int) bool {
		return watchers[i].created.Before(watchers[j].created)
	})
	return watchers
}

// Stop makes the watcher terminal. Events already queued are
// discarded, not signed.
func (r *Registry) Stop(ctx context.Context, id string) error {
	w, err := r.Get(id)
	if err != nil {
		return err
	}
	return w.stop(ctx)
}

// Update applies partial changes to a non-terminal watcher. A new key
// name is validated against the key store before it is applied.
func (r *Registry) Update(ctx context.Context, id string, upd *Update) error {
	w, err := r.Get(id)
	if err != nil {
		return err
	}
	if upd == nil {
		return types.NewValidationError("update", "update is required", nil)
	}
	if upd.Patterns != nil {
		if err := validatePatterns("patterns", *upd.Patterns); err != nil {
			return err
		}
	}
	if upd.ExcludePatterns != nil {
		if err := validatePatterns("exclude_patterns", *upd.ExcludePatterns); err != nil {
			return err
		}
	}
	if upd.MaxFileSize != nil && *upd.MaxFileSize < 0 {
		return types.NewValidationError("max_file_size", "max file size cannot be negative", nil)
	}
	if upd.KeyName != nil {
		if *upd.KeyName == "" {
			return types.NewValidationError("key_name", "key name cannot be empty", nil)
		}
		if _, err := r.signer.KeyStore().Get(ctx, *upd.KeyName); err != nil {
			return err
		}
	}
	return w.update(upd)
}

// Remove forgets a stopped watcher. Active watchers must be stopped
// first.
func (r *Registry) Remove(id string) error {
	w, err := r.Get(id)
	if err != nil {
		return err
	}
	if w.State() != StateStopped {
		return types.NewConcurrencyError("remove", "watcher is still active", types.ErrWatcherActive)
	}
	r.mu.Lock()
	delete(r.watchers, id)
	r.mu.Unlock()
	return nil
}

// StopAll drains every active watcher and returns how many were
// stopped. Used at shutdown.
func (r *Registry) StopAll(ctx context.Context) int {
	stopped := 0
	for _, w := range r.List() {
		if err := w.stop(ctx); err == nil {
			stopped++
		}
	}
	if stopped > 0 {
		r.logger.Infof("stopped %d watchers", stopped)
	}
	return stopped
}
