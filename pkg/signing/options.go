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

package signing

import (
	"fmt"
	"time"

	"github.com/jeremyhahn/go-signet/pkg/types"
)

// DefaultMaxPayloadBytes bounds Sign input when the Config leaves
// MaxPayloadBytes unset.
const DefaultMaxPayloadBytes = 64 << 20

// SignatureFileSuffix is appended to a signed file's path to name its
// envelope artifact.
const SignatureFileSuffix = ".sig"

// SignatureFilePath returns the conventional envelope artifact path
// for a signed file.
func SignatureFilePath(path string) string {
	return path + SignatureFileSuffix
}

// Options enumerates every recognized signing option. The zero value
// of each field is meaningful: empty Format and Encoding select the
// defaults, a false Timestamp omits the creation time, and an empty
// Scheme selects the key algorithm's default.
type Options struct {
	// Format selects the envelope serialization. Empty means
	// FormatStructured.
	Format types.EnvelopeFormat

	// Encoding is the text encoding for the signature bytes, both in
	// FormatRaw output and inside structured envelopes. Empty means
	// base64.
	Encoding types.Encoding

	// Scheme overrides the key algorithm's default signature scheme.
	// It must belong to the key's algorithm family.
	Scheme types.SignatureScheme

	// Detached records the payload's SHA-256 in the envelope instead
	// of assuming the envelope travels with the payload.
	Detached bool

	// Timestamp stamps the envelope with the signing time.
	Timestamp bool

	// ExpiresIn sets the envelope's validity window, measured from the
	// signing time. Zero means the envelope never expires.
	ExpiresIn time.Duration

	// Metadata is copied into the envelope verbatim.
	Metadata map[string]string

	// IncludePublicKey embeds the signing key's public PEM so
	// verifiers without key store access can still check the
	// signature.
	IncludePublicKey bool

	// OutputPath is where SignFile writes the encoded envelope. Empty
	// means nothing is written. Sign ignores it.
	OutputPath string
}

// DefaultOptions returns the options used when Sign is called with
// nil: a timestamped structured envelope with base64 signature text.
func DefaultOptions() *Options {
	return &Options{
		Format:    types.FormatStructured,
		Encoding:  types.EncodingBase64,
		Timestamp: true,
	}
}

// normalized returns a copy with empty enum fields resolved to their
// defaults. A nil receiver yields DefaultOptions.
func (o *Options) normalized() *Options {
	if o == nil {
		return DefaultOptions()
	}
	out := *o
	if out.Format == "" {
		out.Format = types.FormatStructured
	}
	if out.Encoding == "" {
		out.Encoding = types.EncodingBase64
	}
	return &out
}

// validate rejects option values outside the recognized sets.
func (o *Options) validate() error {
	if !o.Format.IsValid() {
		return types.NewValidationError("format",
			fmt.Sprintf("unsupported format %q", o.Format), types.ErrUnsupportedFormat)
	}
	if !o.Encoding.IsValid() {
		return types.NewValidationError("encoding",
			fmt.Sprintf("unsupported encoding %q", o.Encoding), types.ErrUnsupportedFormat)
	}
	if o.ExpiresIn < 0 {
		return types.NewValidationError("expires_in", "must not be negative", nil)
	}
	return nil
}
