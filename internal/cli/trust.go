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

	"github.com/jeremyhahn/go-signet/pkg/trust"
	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/spf13/cobra"
)

// trustCmd represents the trust command
var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Manage the trust registry",
	Long: `Manage which key fingerprints are trusted for verification.
Trust decisions are recorded per fingerprint; revocation keeps the
entry as evidence and reinstatement requires an explicit override.`,
}

// trustAddCmd registers a fingerprint as trusted
var trustAddCmd = &cobra.Command{
	Use:   "add <fingerprint>",
	Short: "Trust a key fingerprint",
	Long:  `Register a key fingerprint as trusted for verification`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		keyName, _ := cmd.Flags().GetString("key-name")
		description, _ := cmd.Flags().GetString("description")

		rt, err := openRuntime(cfg)
		if err != nil {
			handleError(err)
			return
		}
		defer rt.Close()

		entry, err := rt.Trust.Trust(context.Background(), args[0], keyName, description)
		if err != nil {
			handleError(fmt.Errorf("failed to add trust entry: %w", err))
			return
		}

		if err := printer.PrintTrustEntry(entry); err != nil {
			handleError(err)
		}
	},
}

// trustRevokeCmd revokes trust in a fingerprint
var trustRevokeCmd = &cobra.Command{
	Use:   "revoke <fingerprint>",
	Short: "Revoke trust in a fingerprint",
	Long: `Revoke trust in a key fingerprint. The entry is kept with the
revocation reason so later verifications report revoked rather than
unknown.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		reason, _ := cmd.Flags().GetString("reason")

		rt, err := openRuntime(cfg)
		if err != nil {
			handleError(err)
			return
		}
		defer rt.Close()

		if _, err := rt.Trust.Revoke(context.Background(), args[0], reason); err != nil {
			handleError(fmt.Errorf("failed to revoke trust: %w", err))
			return
		}

		if err := printer.PrintSuccess(fmt.Sprintf("Revoked trust in %s", args[0])); err != nil {
			handleError(err)
		}
	},
}

// trustReinstateCmd reinstates a revoked fingerprint
var trustReinstateCmd = &cobra.Command{
	Use:   "reinstate <fingerprint>",
	Short: "Reinstate a revoked fingerprint",
	Long: `Reinstate trust in a previously revoked fingerprint. Reinstating
a revocation requires --force as an explicit acknowledgment.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		force, _ := cmd.Flags().GetBool("force")
		description, _ := cmd.Flags().GetString("description")

		rt, err := openRuntime(cfg)
		if err != nil {
			handleError(err)
			return
		}
		defer rt.Close()

		entry, err := rt.Trust.Reinstate(context.Background(), args[0], &trust.ReinstateOptions{
			Force:       force,
			Description: description,
		})
		if err != nil {
			handleError(fmt.Errorf("failed to reinstate trust: %w", err))
			return
		}

		if err := printer.PrintTrustEntry(entry); err != nil {
			handleError(err)
		}
	},
}

// trustListCmd lists the trust registry
var trustListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trust entries",
	Long:  `List all trust registry entries, including revoked ones`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		rt, err := openRuntime(cfg)
		if err != nil {
			handleError(err)
			return
		}
		defer rt.Close()

		entries, err := rt.Trust.List(context.Background())
		if err != nil {
			handleError(fmt.Errorf("failed to list trust entries: %w", err))
			return
		}

		entryPtrs := make([]*types.TrustEntry, len(entries))
		for i := range entries {
			entryPtrs[i] = &entries[i]
		}

		if err := printer.PrintTrustList(entryPtrs); err != nil {
			handleError(err)
		}
	},
}

// trustEvaluateCmd evaluates a fingerprint's trust state
var trustEvaluateCmd = &cobra.Command{
	Use:   "evaluate <fingerprint>",
	Short: "Evaluate a fingerprint",
	Long:  `Report whether a fingerprint is trusted, untrusted, or revoked`,
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

		state, err := rt.Trust.Evaluate(context.Background(), args[0])
		if err != nil {
			handleError(fmt.Errorf("failed to evaluate trust: %w", err))
			return
		}

		if err := printer.PrintTrustEvaluation(args[0], state); err != nil {
			handleError(err)
		}
	},
}

func init() {
	trustAddCmd.Flags().StringP("key-name", "k", "", "name of the key the fingerprint belongs to")
	trustAddCmd.Flags().StringP("description", "d", "", "freeform description for the entry")
	trustRevokeCmd.Flags().StringP("reason", "r", "", "reason for the revocation")
	trustReinstateCmd.Flags().Bool("force", false, "acknowledge reinstating a revoked fingerprint")
	trustReinstateCmd.Flags().StringP("description", "d", "", "replacement description for the entry")

	trustCmd.AddCommand(trustAddCmd)
	trustCmd.AddCommand(trustRevokeCmd)
	trustCmd.AddCommand(trustReinstateCmd)
	trustCmd.AddCommand(trustListCmd)
	trustCmd.AddCommand(trustEvaluateCmd)
}
