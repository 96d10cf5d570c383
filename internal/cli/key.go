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

	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/spf13/cobra"
)

// keyCmd represents the key command
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage signing keys",
	Long:  `Generate, list, rotate, revoke, and export signing keys`,
}

// keyGenerateCmd generates a new signing key
var keyGenerateCmd = &cobra.Command{
	Use:   "generate <name>",
	Short: "Generate a new signing key",
	Long: `Generate a new signing key sealed under a passphrase.

Supported algorithms: ed25519, ecdsa-p256, ecdsa-p384, ecdsa-p521,
rsa-2048, rsa-3072, rsa-4096`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		algorithmFlag, _ := cmd.Flags().GetString("algorithm")
		algorithm, err := types.ParseAlgorithm(algorithmFlag)
		if err != nil {
			handleError(err)
			return
		}

		passphrase, err := readPassphrase(true)
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

		printVerbose("Generating %s key: %s", algorithm, name)

		info, err := rt.KeyStore.Generate(context.Background(), name, algorithm, passphrase)
		if err != nil {
			handleError(fmt.Errorf("failed to generate key: %w", err))
			return
		}

		if err := printer.PrintKeyInfo(info); err != nil {
			handleError(err)
		}
	},
}

// keyListCmd lists all keys
var keyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all keys",
	Long:  `List all signing keys in the key store`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		rt, err := openRuntime(cfg)
		if err != nil {
			handleError(err)
			return
		}
		defer rt.Close()

		keys, err := rt.KeyStore.List(context.Background())
		if err != nil {
			handleError(fmt.Errorf("failed to list keys: %w", err))
			return
		}

		if err := printer.PrintKeyList(keys); err != nil {
			handleError(err)
		}
	},
}

// keyInfoCmd shows detailed information about a key
var keyInfoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show key information",
	Long:  `Show the algorithm, status, version, and fingerprint of a key`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		rt, err := openRuntime(cfg)
		if err != nil {
			handleError(err)
			return
		}
		defer rt.Close()

		info, err := rt.KeyStore.Get(context.Background(), args[0])
		if err != nil {
			handleError(err)
			return
		}

		if err := printer.PrintKeyInfo(info); err != nil {
			handleError(err)
		}
	},
}

// keyRotateCmd rotates a key to fresh material
var keyRotateCmd = &cobra.Command{
	Use:   "rotate <name>",
	Short: "Rotate a key to fresh material",
	Long: `Generate fresh key material under the same name and algorithm.
The previous public key is retained so existing signatures keep
verifying; the old fingerprint no longer signs.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

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

		printVerbose("Rotating key: %s", name)

		info, err := rt.KeyStore.Rotate(context.Background(), name, passphrase)
		if err != nil {
			handleError(fmt.Errorf("failed to rotate key: %w", err))
			return
		}

		if err := printer.PrintKeyInfo(info); err != nil {
			handleError(err)
		}
	},
}

// keyRevokeCmd revokes a key
var keyRevokeCmd = &cobra.Command{
	Use:   "revoke <name>",
	Short: "Revoke a key",
	Long: `Mark a key revoked. A revoked key refuses all signing operations
permanently; revocation cannot be undone.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		rt, err := openRuntime(cfg)
		if err != nil {
			handleError(err)
			return
		}
		defer rt.Close()

		if err := rt.KeyStore.Revoke(context.Background(), args[0]); err != nil {
			handleError(fmt.Errorf("failed to revoke key: %w", err))
			return
		}

		if err := printer.PrintSuccess(fmt.Sprintf("Revoked key: %s", args[0])); err != nil {
			handleError(err)
		}
	},
}

// keyDeleteCmd deletes a key
var keyDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a key",
	Long:  `Remove a key and its sealed material from the key store`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		rt, err := openRuntime(cfg)
		if err != nil {
			handleError(err)
			return
		}
		defer rt.Close()

		if err := rt.KeyStore.Delete(context.Background(), args[0]); err != nil {
			handleError(fmt.Errorf("failed to delete key: %w", err))
			return
		}

		if err := printer.PrintSuccess(fmt.Sprintf("Deleted key: %s", args[0])); err != nil {
			handleError(err)
		}
	},
}

// keyExportCmd exports a key's public half
var keyExportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Export the public key",
	Long: `Export the public key in PEM form. Private key material never
leaves the key store.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		outFile, _ := cmd.Flags().GetString("file")

		rt, err := openRuntime(cfg)
		if err != nil {
			handleError(err)
			return
		}
		defer rt.Close()

		pem, err := rt.KeyStore.ExportPublicPEM(context.Background(), args[0])
		if err != nil {
			handleError(fmt.Errorf("failed to export public key: %w", err))
			return
		}

		if outFile != "" {
			if err := os.WriteFile(outFile, []byte(pem), 0600); err != nil {
				handleError(fmt.Errorf("failed to write public key file: %w", err))
				return
			}
			if err := printer.PrintSuccess(fmt.Sprintf("Wrote public key to %s", outFile)); err != nil {
				handleError(err)
			}
			return
		}

		if err := printer.PrintPublicKey(args[0], pem); err != nil {
			handleError(err)
		}
	},
}

func init() {
	keyGenerateCmd.Flags().StringP("algorithm", "a", "ed25519",
		"key algorithm (ed25519, ecdsa-p256, ecdsa-p384, ecdsa-p521, rsa-2048, rsa-3072, rsa-4096)")
	keyExportCmd.Flags().StringP("file", "f", "", "write the PEM to a file instead of stdout")

	keyCmd.AddCommand(keyGenerateCmd)
	keyCmd.AddCommand(keyListCmd)
	keyCmd.AddCommand(keyInfoCmd)
	keyCmd.AddCommand(keyRotateCmd)
	keyCmd.AddCommand(keyRevokeCmd)
	keyCmd.AddCommand(keyDeleteCmd)
	keyCmd.AddCommand(keyExportCmd)
}
