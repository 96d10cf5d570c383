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

package batch

import (
	"context"

	"github.com/jeremyhahn/go-signet/pkg/signing"
	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/jeremyhahn/go-signet/pkg/verification"
)

// SignSpec builds a job that signs every item with the named key.
// The key is resolved once up front, so an unknown key fails the
// submission before any item runs. Items with a Path are signed as
// files; everything else is signed from Data.
func SignSpec(signer *signing.Signer, keyName string, passphrase *types.Password, opts *signing.Options, items []Item) *JobSpec {
	return &JobSpec{
		Kind:  "sign",
		Items: items,
		Check: func(ctx context.Context) error {
			if signer == nil {
				return types.NewValidationError("signer", "signer is required", nil)
			}
			_, err := signer.KeyStore().Get(ctx, keyName)
			return err
		},
		Operation: func(ctx context.Context, item Item) (any, error) {
			if item.Path != "" {
				return signer.SignFile(ctx, item.Path, keyName, passphrase, opts)
			}
			return signer.Sign(ctx, item.Data, keyName, passphrase, opts)
		},
	}
}

// VerifySpec builds a job that verifies every item's envelope. An
// invalid verdict is recorded as an item failure carrying the verdict
// reason, with the full verification result kept as the item output,
// so the report's failure count is the number of signatures that did
// not check out.
func VerifySpec(verifier *verification.Verifier, opts *verification.Options, items []Item) *JobSpec {
	return &JobSpec{
		Kind:  "verify",
		Items: items,
		Check: func(ctx context.Context) error {
			if verifier == nil {
				return types.NewValidationError("verifier", "verifier is required", nil)
			}
			return nil
		},
		Operation: func(ctx context.Context, item Item) (any, error) {
			var result *verification.Result
			var err error
			if item.Path != "" {
				result, err = verifier.VerifyFile(ctx, item.Path, item.Envelope, opts)
			} else {
				result, err = verifier.Verify(ctx, item.Data, item.Envelope, opts)
			}
			if err != nil {
				return nil, err
			}
			if !result.Valid {
				return result, types.NewIntegrityError(result.Reason, result.Detail, nil)
			}
			return result, nil
		},
	}
}
