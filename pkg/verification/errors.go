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

package verification

import "errors"

var (
	// ErrInvalidPublicKeyRSA indicates the public key is not an RSA key.
	ErrInvalidPublicKeyRSA = errors.New("verification: invalid RSA public key")

	// ErrInvalidPublicKeyECDSA indicates the public key is not an ECDSA key.
	ErrInvalidPublicKeyECDSA = errors.New("verification: invalid ECDSA public key")

	// ErrInvalidPublicKeyEd25519 indicates the public key is not an Ed25519 key.
	ErrInvalidPublicKeyEd25519 = errors.New("verification: invalid Ed25519 public key")

	// ErrSignatureVerification indicates the signature does not verify.
	ErrSignatureVerification = errors.New("verification: signature verification failed")

	// errKeyUnresolved means no stored or embedded key matches the
	// envelope's fingerprint. It surfaces as the UnknownKey reason,
	// never as a call failure.
	errKeyUnresolved = errors.New("verification: no key resolves the fingerprint")
)
