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
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jeremyhahn/go-signet/pkg/signing"
	"github.com/jeremyhahn/go-signet/pkg/types"
)

// filter is the compiled event filter pipeline for one watcher. It is
// copied under the watcher's lock before use so updates never race an
// in-flight event.
type filter struct {
	dir          string
	patterns     []string
	exclude      []string
	recursive    bool
	watchMods    bool
	ignoreHidden bool
	maxFileSize  int64
	backupDir    string
}

// validatePatterns rejects malformed globs before a watcher starts,
// instead of silently matching nothing at event time.
func validatePatterns(field string, patterns []string) error {
	for _, pattern := range patterns {
		if _, err := filepath.Match(pattern, "probe"); err != nil {
			return types.NewValidationError(field,
				fmt.Sprintf("invalid glob pattern %q", pattern), err)
		}
	}
	return nil
}

// accept runs the ordered pipeline: signature-artifact and backup
// guards, include patterns, exclude patterns, hidden files, size,
// recursion scope. The returned string names the rejecting stage.
func (f *filter) accept(path string, size int64) (bool, string) {
	base := filepath.Base(path)

	// Never sign the watcher's own output.
	if strings.HasSuffix(base, signing.SignatureFileSuffix) {
		return false, "signature artifact"
	}
	if f.backupDir != "" && within(f.backupDir, path) {
		return false, "backup directory"
	}

	if len(f.patterns) > 0 && !matchAny(f.patterns, base) {
		return false, "no include pattern match"
	}
	if matchAny(f.exclude, base) {
		return false, "exclude pattern match"
	}
	if f.ignoreHidden && hiddenWithin(f.dir, path) {
		return false, "hidden"
	}
	if f.maxFileSize > 0 && size > f.maxFileSize {
		return false, fmt.Sprintf("size %d exceeds limit %d", size, f.maxFileSize)
	}
	if !f.recursive && filepath.Dir(path) != filepath.Clean(f.dir) {
		return false, "outside non-recursive scope"
	}
	return true, ""
}

// matchAny reports whether any glob matches the name. Patterns are
// validated at configuration time, so match errors cannot occur here.
func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// hiddenWithin reports whether any path element below root starts
// with a dot.
func hiddenWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return strings.HasPrefix(filepath.Base(path), ".")
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

// within reports whether path is inside dir.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
