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

// Package validation provides centralized input validation for the
// engine's public surfaces. The CLI and REST layers funnel user input
// through these checks, preventing path traversal and log injection at
// every entry point.
package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// keyNamePattern matches safe key names
	keyNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

	// fingerprintPattern matches hex-encoded SHA-256 fingerprints
	fingerprintPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)
)

// ValidateKeyName validates a logical key name.
// Prevents path traversal, injection, and other attacks by:
// - Rejecting empty strings
// - Rejecting null bytes
// - Rejecting absolute paths
// - Rejecting parent directory references (..)
// - Allowing only safe characters
// - Enforcing length limits
func ValidateKeyName(name string) error {
	if name == "" {
		return fmt.Errorf("key name cannot be empty")
	}

	// Null bytes can bypass some path checks
	if strings.Contains(name, "\x00") {
		return fmt.Errorf("key name contains null byte")
	}

	// Check length before the regex (prevent ReDoS)
	if len(name) > 255 {
		return fmt.Errorf("key name too long (max 255 characters)")
	}

	if filepath.IsAbs(name) {
		return fmt.Errorf("key name cannot be an absolute path")
	}

	cleaned := filepath.Clean(name)
	if strings.HasPrefix(cleaned, "..") || strings.Contains(cleaned, string(filepath.Separator)+"..") {
		return fmt.Errorf("key name contains path traversal attempt")
	}

	for _, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("key name contains control characters")
		}
	}

	if !keyNamePattern.MatchString(name) {
		return fmt.Errorf("key name contains invalid characters (allowed: a-z, A-Z, 0-9, -, _, .)")
	}

	return nil
}

// ValidateFingerprint validates a hex-encoded SHA-256 key fingerprint.
func ValidateFingerprint(fingerprint string) error {
	if fingerprint == "" {
		return fmt.Errorf("fingerprint cannot be empty")
	}

	if !fingerprintPattern.MatchString(fingerprint) {
		return fmt.Errorf("fingerprint must be 64 lowercase hex characters")
	}

	return nil
}

// ValidateDirectory validates a directory path supplied to a watcher
// or backup configuration. The path must be non-empty, free of null
// bytes, and not relative traversal shorthand; existence is checked by
// the caller.
func ValidateDirectory(dir string) error {
	if dir == "" {
		return fmt.Errorf("directory cannot be empty")
	}

	if strings.Contains(dir, "\x00") {
		return fmt.Errorf("directory contains null byte")
	}

	if len(dir) > 4096 {
		return fmt.Errorf("directory path too long")
	}

	for _, r := range dir {
		if r < 32 || r == 127 {
			return fmt.Errorf("directory contains control characters")
		}
	}

	return nil
}

// ValidatePatterns validates a glob pattern list (include or exclude).
// Each pattern must compile under filepath.Match semantics.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if p == "" {
			return fmt.Errorf("pattern cannot be empty")
		}
		if strings.Contains(p, "\x00") {
			return fmt.Errorf("pattern contains null byte")
		}
		// filepath.Match reports malformed patterns up front.
		if _, err := filepath.Match(p, "probe"); err != nil {
			return fmt.Errorf("malformed pattern %q: %w", p, err)
		}
	}
	return nil
}

// ValidateID validates a UUID-shaped identifier (session, watcher, job).
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}

	if strings.Contains(id, "\x00") {
		return fmt.Errorf("id contains null byte")
	}

	if len(id) > 64 {
		return fmt.Errorf("id too long (max 64 characters)")
	}

	for _, r := range id {
		if r < 32 || r == 127 {
			return fmt.Errorf("id contains control characters")
		}
	}

	return nil
}

// SanitizeForLog sanitizes a string for safe logging (prevents log injection).
func SanitizeForLog(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)

	if len(s) > 1000 {
		s = s[:1000] + "...[truncated]"
	}

	return s
}
