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
	"time"

	"github.com/jeremyhahn/go-signet/pkg/client"
	"github.com/jeremyhahn/go-signet/pkg/multisig"
	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/spf13/cobra"
)

// multisigCmd groups the multi-party signing session operations.
// Sessions live on a running signet server, so every subcommand talks
// to one.
var multisigCmd = &cobra.Command{
	Use:   "multisig",
	Short: "Coordinate multi-party signing sessions",
	Long: `Coordinate sessions where several key holders sign the same
payload. A session is created on a running signet server with a
threshold and a participant list; each participant signs their local
copy of the payload and submits the envelope; once the threshold is
met the session can be verified and completed.`,
}

// multisigCreateCmd opens a session on the server
var multisigCreateCmd = &cobra.Command{
	Use:   "create <file>",
	Short: "Create a signing session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		description, _ := cmd.Flags().GetString("description")
		threshold, _ := cmd.Flags().GetInt("threshold")
		participants, _ := cmd.Flags().GetStringArray("participant")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		data, err := os.ReadFile(args[0])
		if err != nil {
			handleError(fmt.Errorf("failed to read %s: %w", args[0], err))
			return
		}

		cl, err := dialServer(cmd, cfg)
		if err != nil {
			handleError(err)
			return
		}
		defer cl.Close()

		session, err := cl.CreateSession(context.Background(), &client.CreateSessionRequest{
			Data:         data,
			Description:  description,
			Threshold:    threshold,
			Participants: participants,
			TTLSeconds:   int64(ttl / time.Second),
		})
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintSession(session); err != nil {
			handleError(err)
		}
	},
}

// multisigListCmd lists sessions on the server
var multisigListCmd = &cobra.Command{
	Use:   "list",
	Short: "List signing sessions",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		cl, err := dialServer(cmd, cfg)
		if err != nil {
			handleError(err)
			return
		}
		defer cl.Close()

		sessions, err := cl.ListSessions(context.Background())
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintSessionList(sessions); err != nil {
			handleError(err)
		}
	},
}

// multisigCollectCmd signs the payload locally and submits the
// envelope to the session
var multisigCollectCmd = &cobra.Command{
	Use:   "collect <session-id> [file]",
	Short: "Submit a participant signature to a session",
	Long: `Sign the local copy of the session payload with --key and submit
the envelope to the session. With --signature the named envelope file
is submitted as-is instead of signing.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		keyName, _ := cmd.Flags().GetString("key")
		sigPath, _ := cmd.Flags().GetString("signature")

		var envelopeBytes []byte
		switch {
		case sigPath != "":
			data, err := os.ReadFile(sigPath)
			if err != nil {
				handleError(fmt.Errorf("failed to read %s: %w", sigPath, err))
				return
			}
			envelopeBytes = data
		case len(args) == 2:
			data, err := os.ReadFile(args[1])
			if err != nil {
				handleError(fmt.Errorf("failed to read %s: %w", args[1], err))
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

			result, err := rt.Signer.Sign(context.Background(), data, keyName, passphrase, nil)
			if err != nil {
				handleError(fmt.Errorf("failed to sign: %w", err))
				return
			}
			envelopeBytes = result.Encoded
		default:
			handleError(types.NewValidationError("file",
				"either a payload file to sign or --signature is required", nil))
			return
		}

		cl, err := dialServer(cmd, cfg)
		if err != nil {
			handleError(err)
			return
		}
		defer cl.Close()

		session, err := cl.CollectSignature(context.Background(), args[0], keyName, envelopeBytes)
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintSession(session); err != nil {
			handleError(err)
		}
	},
}

// multisigVerifyCmd verifies every collected signature
var multisigVerifyCmd = &cobra.Command{
	Use:   "verify <session-id>",
	Short: "Verify the signatures collected in a session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		cl, err := dialServer(cmd, cfg)
		if err != nil {
			handleError(err)
			return
		}
		defer cl.Close()

		result, err := cl.VerifySession(context.Background(), args[0])
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintMultiSigVerify(result); err != nil {
			handleError(err)
			return
		}
		if !result.Valid {
			os.Exit(exitCode(types.NewIntegrityError(types.ReasonInvalidSignature, "", nil)))
		}
	},
}

func newSessionActionCmd(use, short string, action func(context.Context, *client.Client, string) (*multisig.Session, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <session-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := getConfig()
			printer := NewPrinter(cfg.OutputFormat, os.Stdout)

			cl, err := dialServer(cmd, cfg)
			if err != nil {
				handleError(err)
				return
			}
			defer cl.Close()

			session, err := action(context.Background(), cl, args[0])
			if err != nil {
				handleError(err)
				return
			}
			if err := printer.PrintSession(session); err != nil {
				handleError(err)
			}
		},
	}
	addRemoteFlags(cmd)
	return cmd
}

func init() {
	multisigCreateCmd.Flags().String("description", "", "free-form session description")
	multisigCreateCmd.Flags().IntP("threshold", "t", 0, "signatures required (required)")
	multisigCreateCmd.Flags().StringArrayP("participant", "p", nil, "participant key name (repeatable, required)")
	multisigCreateCmd.Flags().Duration("ttl", 0, "session lifetime, e.g. 24h (0 uses the server default)")
	_ = multisigCreateCmd.MarkFlagRequired("threshold")
	_ = multisigCreateCmd.MarkFlagRequired("participant")
	addRemoteFlags(multisigCreateCmd)

	multisigCollectCmd.Flags().StringP("key", "k", "", "participant key name (required)")
	multisigCollectCmd.Flags().StringP("signature", "s", "", "submit this envelope file instead of signing")
	_ = multisigCollectCmd.MarkFlagRequired("key")
	addRemoteFlags(multisigCollectCmd)

	addRemoteFlags(multisigListCmd)
	addRemoteFlags(multisigVerifyCmd)

	multisigCmd.AddCommand(multisigCreateCmd)
	multisigCmd.AddCommand(multisigListCmd)
	multisigCmd.AddCommand(multisigCollectCmd)
	multisigCmd.AddCommand(multisigVerifyCmd)
	multisigCmd.AddCommand(newSessionActionCmd("complete", "Complete a session whose threshold is met",
		func(ctx context.Context, cl *client.Client, id string) (*multisig.Session, error) {
			return cl.CompleteSession(ctx, id)
		}))
	multisigCmd.AddCommand(newSessionActionCmd("cancel", "Cancel a session",
		func(ctx context.Context, cl *client.Client, id string) (*multisig.Session, error) {
			return cl.CancelSession(ctx, id)
		}))
	multisigCmd.AddCommand(newSessionActionCmd("reset", "Discard a session's submissions and reopen it",
		func(ctx context.Context, cl *client.Client, id string) (*multisig.Session, error) {
			return cl.ResetSession(ctx, id)
		}))
}
