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

package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jeremyhahn/go-signet/pkg/envelope"
	"github.com/jeremyhahn/go-signet/pkg/signing"
	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/jeremyhahn/go-signet/pkg/verification"
	"github.com/spf13/cobra"
)

// verifyCmd verifies a signature against a file or stdin
var verifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Verify a signature",
	Long: `Verify a signature against a file, or stdin when no file is given.

The signature artifact is read from <file>.sig unless --signature names
another path. Raw signatures carry no key identity, so --format raw
also requires --key.

Trust checks are independent of cryptographic validity: --check-trust
reports the signing key's standing alongside the verdict, and
--require-trusted fails the command when the key is not trusted.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		format, _ := cmd.Flags().GetString("format")
		sigPath, _ := cmd.Flags().GetString("signature")
		checkTrust, _ := cmd.Flags().GetBool("check-trust")
		requireTrusted, _ := cmd.Flags().GetBool("require-trusted")

		if sigPath == "" {
			if len(args) == 0 {
				handleError(types.NewValidationError("signature",
					"--signature is required when verifying stdin", nil))
				return
			}
			sigPath = signing.SignatureFilePath(args[0])
		}
		encoded, err := os.ReadFile(sigPath)
		if err != nil {
			handleError(fmt.Errorf("failed to read signature file %s: %w", sigPath, err))
			return
		}

		rt, err := openRuntime(cfg)
		if err != nil {
			handleError(err)
			return
		}
		defer rt.Close()

		opts := &verification.Options{
			CheckTrust:     checkTrust || requireTrusted,
			RequireTrusted: requireTrusted,
		}
		ctx := context.Background()

		var result *verification.Result
		switch format {
		case "", "structured":
			if len(args) == 1 {
				printVerbose("Verifying %s against %s", args[0], sigPath)
				result, err = rt.Verifier.VerifyFile(ctx, args[0], encoded, opts)
			} else {
				data, readErr := readSignInput(args)
				if readErr != nil {
					handleError(readErr)
					return
				}
				result, err = rt.Verifier.Verify(ctx, data, encoded, opts)
			}

		case "jws":
			data, readErr := readSignInput(args)
			if readErr != nil {
				handleError(readErr)
				return
			}
			result, err = verifyJWSToken(ctx, rt, data, encoded, opts)

		case "raw":
			keyName, _ := cmd.Flags().GetString("key")
			encodingFlag, _ := cmd.Flags().GetString("encoding")
			schemeFlag, _ := cmd.Flags().GetString("scheme")
			if keyName == "" {
				handleError(types.NewValidationError("key",
					"--key is required for raw signatures", nil))
				return
			}
			var scheme types.SignatureScheme
			if schemeFlag != "" {
				scheme, err = types.ParseSignatureScheme(schemeFlag)
				if err != nil {
					handleError(err)
					return
				}
			}
			data, readErr := readSignInput(args)
			if readErr != nil {
				handleError(readErr)
				return
			}
			result, err = rt.Verifier.VerifyRaw(ctx, data, string(encoded),
				types.Encoding(encodingFlag), keyName, scheme)

		default:
			handleError(types.NewValidationError("format",
				fmt.Sprintf("unknown signature format: %s", format), nil))
			return
		}

		if err != nil {
			handleError(fmt.Errorf("verification failed: %w", err))
			return
		}
		if err := printer.PrintVerifyResult(result); err != nil {
			handleError(err)
			return
		}
		if !result.Valid {
			os.Exit(exitCode(types.NewIntegrityError(result.Reason, result.Detail, nil)))
		}
	},
}

// verifyJWSToken adapts the JWS verdict onto the envelope verdict so
// both print the same way. The data_sha256 claim ties the token to the
// payload; a valid token over different data is a data mismatch.
func verifyJWSToken(ctx context.Context, rt *Runtime, data, token []byte, opts *verification.Options) (*verification.Result, error) {
	result, claims, err := rt.Verifier.VerifyJWS(ctx, strings.TrimSpace(string(token)), opts)
	if err != nil {
		return nil, err
	}
	if result.Valid && len(data) > 0 {
		if hash, ok := claims["data_sha256"].(string); ok && hash != envelope.HashPayload(data) {
			result.Valid = false
			result.Reason = types.ReasonDataMismatch
			result.Detail = "payload does not match the token's data_sha256 claim"
		}
	}
	return result, nil
}

// inspectCmd introspects a signature artifact without the payload
var inspectCmd = &cobra.Command{
	Use:   "inspect <signature-file>",
	Short: "Inspect a signature artifact",
	Long: `Decode a structured signature envelope without verifying it.

Reports whether the artifact parses and whether its validity window has
passed. Cryptographic validity needs the original payload; use verify
for that.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		encoded, err := os.ReadFile(args[0])
		if err != nil {
			handleError(fmt.Errorf("failed to read signature file %s: %w", args[0], err))
			return
		}

		report := verification.CheckIntegrity(encoded)
		if err := printer.PrintIntegrityReport(report); err != nil {
			handleError(err)
			return
		}
		if !report.Parseable {
			os.Exit(exitCode(types.NewIntegrityError(types.ReasonMalformed, report.ParseError, nil)))
		}
	},
}

func init() {
	verifyCmd.Flags().StringP("signature", "s", "", "signature artifact path (default <file>.sig)")
	verifyCmd.Flags().StringP("format", "f", "structured", "signature format (structured, raw, jws)")
	verifyCmd.Flags().Bool("check-trust", false, "report the signing key's trust standing")
	verifyCmd.Flags().Bool("require-trusted", false, "fail unless the signing key is trusted")
	verifyCmd.Flags().StringP("key", "k", "", "key name (raw signatures only)")
	verifyCmd.Flags().StringP("encoding", "e", "base64", "signature text encoding (raw signatures only)")
	verifyCmd.Flags().String("scheme", "", "signature scheme (raw signatures only, defaults to the key's scheme)")
}
