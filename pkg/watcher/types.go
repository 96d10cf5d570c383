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
	"time"

	"github.com/jeremyhahn/go-signet/pkg/signing"
	"github.com/jeremyhahn/go-signet/pkg/types"
)

// State is the lifecycle state of a watcher. Stopped is terminal.
type State string

const (
	StateInactive State = "inactive"
	StateActive   State = "active"
	StateStopped  State = "stopped"
)

// Config describes one directory watcher.
type Config struct {

	// ID identifies the watcher. Generated when empty.
	ID string

	// Directory is the watched directory. It must exist. Immutable
	// after start.
	Directory string

	// KeyName names the signing key. The key must exist when the
	// watcher starts.
	KeyName string

	// Passphrase unlocks the signing key for each signature.
	Passphrase *types.Password

	// Patterns are include globs matched against the file's base
	// name, e.g. "*.txt". Empty means every file.
	Patterns []string

	// ExcludePatterns reject files that passed the include match.
	ExcludePatterns []string

	// Recursive watches subdirectories, including ones created
	// while the watcher runs.
	Recursive bool

	// WatchModifications signs on write events as well as creates.
	WatchModifications bool

	// IgnoreHidden skips dotfiles and files under dot-directories.
	IgnoreHidden bool

	// MaxFileSize rejects files larger than this many bytes. Zero
	// means no limit.
	MaxFileSize int64

	// MaxConcurrent bounds in-flight signing operations.
	MaxConcurrent int

	// QueueSize bounds the event backlog. A full queue refuses new
	// events.
	QueueSize int

	// EventsPerSecond smooths bursts through a token bucket. Zero
	// means unlimited.
	EventsPerSecond float64

	// BackupSignedFiles copies each signed file into
	// BackupDirectory, preserving its path relative to Directory.
	BackupSignedFiles bool
	BackupDirectory   string

	// SigningOptions control the produced envelopes. The output
	// path is always the sibling signature artifact and cannot be
	// overridden here.
	SigningOptions *signing.Options

	// ActivityLimit bounds the retained activity log.
	ActivityLimit int
}

// Update carries partial changes to a running watcher. Nil fields are
// left untouched. Identity fields (ID, Directory, Recursive) cannot
// change after start.
type Update struct {
	Patterns           *[]string
	ExcludePatterns    *[]string
	WatchModifications *bool
	IgnoreHidden       *bool
	MaxFileSize        *int64
	BackupSignedFiles  *bool
	BackupDirectory    *string
	KeyName            *string
	Passphrase         *types.Password
	SigningOptions     *signing.Options
}

// ActivityEntry records one attempt the watcher made on a file.
type ActivityEntry struct {
	FilePath  string    `json:"file_path"`
	Action    string    `json:"action"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats are the watcher's running counters.
type Stats struct {
	Backlog int    `json:"backlog"`
	Dropped uint64 `json:"dropped"`
	Signed  uint64 `json:"signed"`
	Failed  uint64 `json:"failed"`
}

// Info is a point-in-time snapshot of a watcher.
type Info struct {
	ID                 string    `json:"id"`
	Directory          string    `json:"directory"`
	KeyName            string    `json:"key_name"`
	State              State     `json:"state"`
	Recursive          bool      `json:"recursive"`
	WatchModifications bool      `json:"watch_modifications"`
	IgnoreHidden       bool      `json:"ignore_hidden"`
	Patterns           []string  `json:"patterns,omitempty"`
	ExcludePatterns    []string  `json:"exclude_patterns,omitempty"`
	MaxFileSize        int64     `json:"max_file_size,omitempty"`
	MaxConcurrent      int       `json:"max_concurrent"`
	QueueSize          int       `json:"queue_size"`
	BackupSignedFiles  bool      `json:"backup_signed_files"`
	BackupDirectory    string    `json:"backup_directory,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	StartedAt          time.Time `json:"started_at,omitzero"`
	StoppedAt          time.Time `json:"stopped_at,omitzero"`
	Stats              Stats     `json:"stats"`
}
