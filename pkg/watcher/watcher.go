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

// Package watcher signs files as they appear. Each watcher subscribes
// to filesystem events on one directory, pushes events that pass its
// filter pipeline through a bounded queue, and signs the files in
// small batches, writing the envelope beside the source file. A full
// queue refuses new events rather than blocking delivery or growing
// without bound.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/jeremyhahn/go-signet/pkg/audit"
	"github.com/jeremyhahn/go-signet/pkg/batch"
	"github.com/jeremyhahn/go-signet/pkg/logging"
	"github.com/jeremyhahn/go-signet/pkg/metrics"
	"github.com/jeremyhahn/go-signet/pkg/signing"
	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/jeremyhahn/go-signet/pkg/validation"
)

var errQueueFull = errors.New("watcher: event queue full")

// Watcher owns one watched directory. It is created and controlled
// through a Registry.
type Watcher struct {
	id        string
	dir       string
	recursive bool
	queueCap  int
	maxConc   int
	drainMax  int

	signer  *signing.Signer
	engine  *batch.Engine
	logger  *logging.Logger
	audit   audit.Emitter
	limiter *rate.Limiter

	fsw    *fsnotify.Watcher
	queue  chan string
	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	generation atomic.Uint64
	dropped    atomic.Uint64
	signed     atomic.Uint64
	failed     atomic.Uint64

	mu            sync.RWMutex
	state         State
	keyName       string
	passphrase    *types.Password
	signOpts      signing.Options
	backup        bool
	backupDir     string
	filt          filter
	activity      []ActivityEntry
	activityLimit int
	created       time.Time
	startedAt     time.Time
	stoppedAt     time.Time
}

// ID returns the watcher identifier.
func (w *Watcher) ID() string { return w.id }

// Directory returns the watched directory.
func (w *Watcher) Directory() string { return w.dir }

// State returns the current lifecycle state.
func (w *Watcher) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Stats returns the watcher's running counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Backlog: len(w.queue),
		Dropped: w.dropped.Load(),
		Signed:  w.signed.Load(),
		Failed:  w.failed.Load(),
	}
}

// Info returns a snapshot of the watcher's configuration and state.
func (w *Watcher) Info() Info {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Info{
		ID:                 w.id,
		Directory:          w.dir,
		KeyName:            w.keyName,
		State:              w.state,
		Recursive:          w.recursive,
		WatchModifications: w.filt.watchMods,
		IgnoreHidden:       w.filt.ignoreHidden,
		Patterns:           append([]string(nil), w.filt.patterns...),
		ExcludePatterns:    append([]string(nil), w.filt.exclude...),
		MaxFileSize:        w.filt.maxFileSize,
		MaxConcurrent:      w.maxConc,
		QueueSize:          w.queueCap,
		BackupSignedFiles:  w.backup,
		BackupDirectory:    w.backupDir,
		CreatedAt:          w.created,
		StartedAt:          w.startedAt,
		StoppedAt:          w.stoppedAt,
		Stats:              w.Stats(),
	}
}

// Activity returns a copy of the bounded activity log, oldest first.
func (w *Watcher) Activity() []ActivityEntry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]ActivityEntry(nil), w.activity...)
}

// start registers with fsnotify and launches the event and worker
// loops. Called by the registry with the watcher still inactive.
func (w *Watcher) start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	if w.recursive {
		if err := w.addSubdirectories(fsw); err != nil {
			_ = fsw.Close()
			return err
		}
	}

	// The watcher outlives the request that started it; only Stop
	// ends it.
	w.runCtx, w.cancel = context.WithCancel(context.Background())
	w.fsw = fsw

	w.mu.Lock()
	w.state = StateActive
	w.startedAt = time.Now().UTC()
	w.mu.Unlock()

	w.wg.Add(2)
	go w.watchLoop()
	go w.runLoop()

	metrics.WatchersActive.Inc()
	w.logger.Infof("watching %s with key %s", w.dir, w.keyName)
	w.audit.Emit(ctx, audit.NewEvent(audit.EventWatcherStart, audit.OutcomeSuccess, w.id))
	return nil
}

func (w *Watcher) addSubdirectories(fsw *fsnotify.Watcher) error {
	return filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || path == w.dir {
			return nil
		}
		w.mu.RLock()
		skip := w.filt.ignoreHidden && hiddenWithin(w.dir, path)
		w.mu.RUnlock()
		if skip {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

// stop makes the watcher terminal. Queued events are discarded;
// in-flight signatures finish so no artifact is left half-written.
func (w *Watcher) stop(ctx context.Context) error {
	w.mu.Lock()
	if w.state == StateStopped {
		w.mu.Unlock()
		return types.NewConcurrencyError("stop", "watcher already stopped", types.ErrWatcherStopped)
	}
	w.state = StateStopped
	w.stoppedAt = time.Now().UTC()
	w.mu.Unlock()

	// Bump the generation first so a worker racing the shutdown
	// refuses to sign.
	w.generation.Add(1)
	w.cancel()
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
	w.wg.Wait()

	// Drain in-flight signing before reporting stopped.
	for _, job := range w.engine.Jobs() {
		_, _ = job.Wait(ctx)
	}

	metrics.WatchersActive.Dec()
	w.logger.Infof("stopped watching %s", w.dir)
	w.audit.Emit(ctx, audit.NewEvent(audit.EventWatcherStop, audit.OutcomeSuccess, w.id))
	return nil
}

// update applies partial configuration changes. Identity fields are
// not touchable and terminal watchers reject updates.
func (w *Watcher) update(upd *Update) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateStopped {
		return types.NewConcurrencyError("update", "watcher is stopped", types.ErrWatcherStopped)
	}

	if upd.Patterns != nil {
		w.filt.patterns = append([]string(nil), (*upd.Patterns)...)
	}
	if upd.ExcludePatterns != nil {
		w.filt.exclude = append([]string(nil), (*upd.ExcludePatterns)...)
	}
	if upd.WatchModifications != nil {
		w.filt.watchMods = *upd.WatchModifications
	}
	if upd.IgnoreHidden != nil {
		w.filt.ignoreHidden = *upd.IgnoreHidden
	}
	if upd.MaxFileSize != nil {
		w.filt.maxFileSize = *upd.MaxFileSize
	}
	if upd.BackupSignedFiles != nil {
		w.backup = *upd.BackupSignedFiles
	}
	if upd.BackupDirectory != nil {
		w.backupDir = *upd.BackupDirectory
		w.filt.backupDir = *upd.BackupDirectory
	}
	if upd.KeyName != nil {
		w.keyName = *upd.KeyName
	}
	if upd.Passphrase != nil {
		w.passphrase = upd.Passphrase
	}
	if upd.SigningOptions != nil {
		w.signOpts = *upd.SigningOptions
	}

	w.logger.Infof("updated watcher configuration")
	return nil
}

// watchLoop consumes raw fsnotify events until the watcher stops.
func (w *Watcher) watchLoop() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("filesystem watch error: %v", err)
		case <-w.runCtx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	w.mu.RLock()
	f := w.filt
	w.mu.RUnlock()

	switch {
	case event.Op.Has(fsnotify.Create):
	case event.Op.Has(fsnotify.Write):
		if !f.watchMods {
			return
		}
	default:
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		// The file can be gone by the time the event is handled.
		w.logger.Debugf("stat failed for %s: %v", event.Name, err)
		return
	}
	if info.IsDir() {
		if w.recursive && event.Op.Has(fsnotify.Create) && !(f.ignoreHidden && hiddenWithin(w.dir, event.Name)) {
			if err := w.fsw.Add(event.Name); err != nil {
				w.logger.Warnf("failed to watch new directory %s: %v", event.Name, err)
			}
		}
		return
	}

	if ok, why := f.accept(event.Name, info.Size()); !ok {
		metrics.RecordWatcherEvent("filtered")
		w.logger.Debugf("filtered %s: %s", validation.SanitizeForLog(event.Name), why)
		return
	}

	select {
	case w.queue <- event.Name:
		metrics.RecordWatcherEvent("accepted")
	default:
		// Refuse the event rather than blocking fsnotify delivery.
		metrics.RecordWatcherEvent("dropped")
		w.dropped.Add(1)
		w.recordActivity(event.Name, "enqueue", false, errQueueFull)
		w.logger.Warnf("event queue full, refusing %s", validation.SanitizeForLog(event.Name))
	}
}

// runLoop pulls accepted events off the queue and signs them in small
// batches.
func (w *Watcher) runLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.runCtx.Done():
			return
		case path := <-w.queue:
			w.process(path)
		}
	}
}

func (w *Watcher) process(first string) {
	paths := w.drain(first)
	if err := w.limiter.WaitN(w.runCtx, len(paths)); err != nil {
		return
	}

	items := make([]batch.Item, len(paths))
	for i, path := range paths {
		items[i] = batch.Item{ID: path, Path: path}
	}
	spec := &batch.JobSpec{
		Kind:        "watch-sign",
		Items:       items,
		Operation:   w.signOperation(w.generation.Load()),
		Concurrency: w.maxConc,
	}
	if _, err := w.engine.Run(w.runCtx, spec); err != nil {
		w.logger.Errorf("signing batch failed: %v", err)
	}
}

// drain coalesces the backlog into one batch, deduplicating paths so
// a create immediately followed by a write signs once.
func (w *Watcher) drain(first string) []string {
	paths := []string{first}
	seen := map[string]struct{}{first: {}}
	for len(paths) < w.drainMax {
		select {
		case path := <-w.queue:
			if _, dup := seen[path]; dup {
				continue
			}
			seen[path] = struct{}{}
			paths = append(paths, path)
		default:
			return paths
		}
	}
	return paths
}

// signOperation signs one file and writes the sibling artifact. The
// generation captured at dispatch refuses work that was queued before
// a stop but would run after it.
func (w *Watcher) signOperation(gen uint64) batch.Operation {
	return func(ctx context.Context, item batch.Item) (any, error) {
		if w.generation.Load() != gen || w.State() != StateActive {
			return nil, fmt.Errorf("%w: discarding queued event", types.ErrWatcherStopped)
		}

		w.mu.RLock()
		keyName := w.keyName
		passphrase := w.passphrase
		opts := w.signOpts
		backup := w.backup
		backupDir := w.backupDir
		w.mu.RUnlock()

		opts.OutputPath = signing.SignatureFilePath(item.Path)

		start := time.Now()
		result, err := w.signer.SignFile(ctx, item.Path, keyName, passphrase, &opts)
		status := metrics.StatusSuccess
		if err != nil {
			status = metrics.StatusError
		}
		metrics.RecordOperation(metrics.ComponentWatcher, metrics.OpSign, status, time.Since(start).Seconds())
		w.emitSign(ctx, item.Path, err)
		if err != nil {
			w.failed.Add(1)
			w.recordActivity(item.Path, "sign", false, err)
			return nil, err
		}
		w.signed.Add(1)
		w.recordActivity(item.Path, "sign", true, nil)

		if backup {
			if err := w.backupFile(item.Path, backupDir); err != nil {
				// The signature exists; a failed copy is logged, not
				// surfaced as a signing failure.
				w.recordActivity(item.Path, "backup", false, err)
				w.logger.Warnf("backup failed for %s: %v", validation.SanitizeForLog(item.Path), err)
			} else {
				w.recordActivity(item.Path, "backup", true, nil)
			}
		}
		return result, nil
	}
}

// backupFile copies the signed file into the backup directory,
// preserving its path relative to the watched directory.
func (w *Watcher) backupFile(path, backupDir string) error {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	dest := filepath.Join(backupDir, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func (w *Watcher) recordActivity(path, action string, success bool, err error) {
	entry := ActivityEntry{
		FilePath:  path,
		Action:    action,
		Success:   success,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	w.mu.Lock()
	w.activity = append(w.activity, entry)
	if over := len(w.activity) - w.activityLimit; over > 0 {
		w.activity = append(w.activity[:0:0], w.activity[over:]...)
	}
	w.mu.Unlock()
}

func (w *Watcher) emitSign(ctx context.Context, path string, err error) {
	outcome := audit.OutcomeSuccess
	if err != nil {
		outcome = audit.OutcomeFailure
	}
	event := audit.NewEvent(audit.EventWatcherSign, outcome, path)
	if err != nil {
		event.Result = err.Error()
	}
	w.audit.Emit(ctx, event)
}
