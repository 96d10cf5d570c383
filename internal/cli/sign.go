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
	"io"
	"os"

	"github.com/jeremyhahn/go-signet/pkg/signing"
	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/spf13/cobra"
)

// signCmd signs a file or stdin
var signCmd = &cobra.Command{
	Use:   "sign [file]",
	Short: "Sign a file or stdin",
	Long: `Sign a file, or stdin when no file is given.

File signatures are written next to the file with a .sig suffix unless
--signature names another path. Stdin signatures print to stdout.

Formats: structured (JSON envelope, default), raw (encoded signature
bytes only), jws (compact JWS token).`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		keyName, _ := cmd.Flags().GetString("key")
		format, _ := cmd.Flags().GetString("format")
		sigPath, _ := cmd.Flags().GetString("signature")

		opts, err := signOptionsFromFlags(cmd)
		if err != nil {
			handleError(err)
			return
		}

		passphrase, err := readPassphrase(false)
		if err != nil {
			handleError(err)
			return
		}
		defer passphrase.Clear()

		rt, err := openRuntime(cfg)
		if err != nil {
			handleError(err)
			return
		}
		defer rt.Close()

		ctx := context.Background()

		// JWS is its own serialization, not an envelope format.
		if format == "jws" {
			data, err := readSignInput(args)
			if err != nil {
				handleError(err)
				return
			}
			token, err := rt.Signer.SignJWS(ctx, data, keyName, passphrase, opts)
			if err != nil {
				handleError(fmt.Errorf("failed to sign: %w", err))
				return
			}
			if len(args) == 1 && sigPath == "" {
				sigPath = signing.SignatureFilePath(args[0])
			}
			if sigPath != "" {
				if err := os.WriteFile(sigPath, []byte(token), 0600); err != nil {
					handleError(fmt.Errorf("failed to write signature file: %w", err))
					return
				}
				if err := printer.PrintSuccess(fmt.Sprintf("Wrote signature to %s", sigPath)); err != nil {
					handleError(err)
				}
				return
			}
			if err := printer.PrintSignature(keyName, format, []byte(token)); err != nil {
				handleError(err)
			}
			return
		}

		if len(args) == 1 {
			path := args[0]
			opts.OutputPath = sigPath
			if opts.OutputPath == "" {
				opts.OutputPath = signing.SignatureFilePath(path)
			}
			printVerbose("Signing file %s with key %s", path, keyName)

			result, err := rt.Signer.SignFile(ctx, path, keyName, passphrase, opts)
			if err != nil {
				handleError(fmt.Errorf("failed to sign %s: %w", path, err))
				return
			}
			if err := printer.PrintSuccess(fmt.Sprintf("Signed %s (%d bytes) -> %s",
				path, result.PayloadSize, result.OutputPath)); err != nil {
				handleError(err)
			}
			return
		}

		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			handleError(fmt.Errorf("failed to read stdin: %w", err))
			return
		}

		result, err := rt.Signer.Sign(ctx, data, keyName, passphrase, opts)
		if err != nil {
			handleError(fmt.Errorf("failed to sign: %w", err))
			return
		}

		if sigPath != "" {
			if err := os.WriteFile(sigPath, result.Encoded, 0600); err != nil {
				handleError(fmt.Errorf("failed to write signature file: %w", err))
				return
			}
			if err := printer.PrintSuccess(fmt.Sprintf("Wrote signature to %s", sigPath)); err != nil {
				handleError(err)
			}
			return
		}

		if err := printer.PrintSignature(keyName, string(result.Format), result.Encoded); err != nil {
			handleError(err)
		}
	},
}

// signOptionsFromFlags builds signing options from the command flags.
// The jws pseudo-format is mapped to structured here; the command
// decides the serialization path.
func signOptionsFromFlags(cmd *cobra.Command) (*signing.Options, error) {
	format, _ := cmd.Flags().GetString("format")
	encoding, _ := cmd.Flags().GetString("encoding")
	schemeFlag, _ := cmd.Flags().GetString("scheme")
	detached, _ := cmd.Flags().GetBool("detached")
	expiresIn, _ := cmd.Flags().GetDuration("expires-in")
	metadata, _ := cmd.Flags().GetStringToString("meta")
	includePub, _ := cmd.Flags().GetBool("include-public-key")

	opts := &signing.Options{
		Encoding:         types.Encoding(encoding),
		Detached:         detached,
		Timestamp:        true,
		ExpiresIn:        expiresIn,
		Metadata:         metadata,
		IncludePublicKey: includePub,
	}

	switch format {
	case "", "structured", "jws":
		opts.Format = types.FormatStructured
	case "raw":
		opts.Format = types.FormatRaw
	default:
		return nil, types.NewValidationError("format",
			fmt.Sprintf("unknown signature format: %s", format), nil)
	}

	if schemeFlag != "" {
		scheme, err := types.ParseSignatureScheme(schemeFlag)
		if err != nil {
			return nil, err
		}
		opts.Scheme = scheme
	}
	return opts, nil
}

// readSignInput reads the payload: the named file, or stdin.
func readSignInput(args []string) ([]byte, error) {
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		return data, nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return data, nil
}

func init() {
	signCmd.Flags().StringP("key", "k", "", "signing key name (required)")
	signCmd.Flags().StringP("format", "f", "structured", "signature format (structured, raw, jws)")
	signCmd.Flags().StringP("encoding", "e", "base64", "signature text encoding (base64, hex)")
	signCmd.Flags().String("scheme", "", "signature scheme override (defaults to the key's scheme)")
	signCmd.Flags().Bool("detached", false, "record the payload hash for detached verification")
	signCmd.Flags().Duration("expires-in", 0, "signature validity window, e.g. 720h (0 means no expiry)")
	signCmd.Flags().StringToString("meta", nil, "metadata to embed, e.g. --meta build=42")
	signCmd.Flags().Bool("include-public-key", false, "embed the public key PEM in the envelope")
	signCmd.Flags().StringP("signature", "s", "", "signature output path (default <file>.sig)")
	_ = signCmd.MarkFlagRequired("key")
}
