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

package keystore

import "errors"

var (
	// ErrClosed is returned when operating on a closed key store.
	ErrClosed = errors.New("keystore: store is closed")

	// ErrBackendRequired is returned when no storage backend is configured.
	ErrBackendRequired = errors.New("keystore: storage backend is required")

	// ErrPassphraseRequired is returned when an operation needs a
	// passphrase and none was supplied.
	ErrPassphraseRequired = errors.New("keystore: passphrase is required")

	// ErrDigestSigning is returned when a scheme cannot sign a
	// precomputed digest (Ed25519 signs the full message).
	ErrDigestSigning = errors.New("keystore: scheme cannot sign a precomputed digest")
)
