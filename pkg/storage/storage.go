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

// Package storage provides the key-value persistence abstraction used
// for key records and trust entries. File and in-memory
// implementations share a common interface; session state stays with
// its owning engine and never passes through here.
package storage

import (
	"errors"
	"io/fs"
)

var (
	// ErrNotFound is returned when the requested key does not exist.
	ErrNotFound = errors.New("storage: key not found")

	// ErrClosed is returned when the backend has been closed.
	ErrClosed = errors.New("storage: backend is closed")
)

// Well-known key prefixes. Prefixes drive file permissions and let
// List iterate one record type at a time.
const (
	// PrefixKeys holds sealed key records (private, 0600).
	PrefixKeys = "keys/"

	// PrefixTrust holds trust entries (public knowledge, 0644).
	PrefixTrust = "trust/"
)

// Backend defines the interface for storage backends.
// All implementations must be thread-safe.
type Backend interface {
	// Get retrieves the value for the given key.
	// Returns ErrNotFound if the key does not exist.
	Get(key string) ([]byte, error)

	// Put stores the value for the given key with optional metadata.
	// An existing key is overwritten.
	Put(key string, value []byte, opts *Options) error

	// Delete removes the key and its value from storage.
	// Returns ErrNotFound if the key does not exist.
	Delete(key string) error

	// List returns all keys with the given prefix, sorted.
	// An empty prefix returns all keys.
	List(prefix string) ([]string, error)

	// Exists checks if a key exists in storage.
	Exists(key string) (bool, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Options contains optional parameters for storage operations.
type Options struct {
	// Permissions overrides the prefix-derived file mode for
	// file-based backends.
	Permissions fs.FileMode

	// Metadata carries additional key-value pairs for backends that
	// persist them.
	Metadata map[string]string
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Permissions: 0600,
		Metadata:    make(map[string]string),
	}
}
