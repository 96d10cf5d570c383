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

	"github.com/jeremyhahn/go-signet/pkg/batch"
	"github.com/jeremyhahn/go-signet/pkg/signing"
	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/jeremyhahn/go-signet/pkg/verification"
	"github.com/spf13/cobra"
)

// batchCmd groups the bounded-concurrency batch operations
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Sign or verify many files concurrently",
	Long: `Run sign or verify operations over many files under a bounded
worker pool. One failing file never aborts the batch; the report
carries one result per file, in argument order.`,
}

// batchSignCmd signs a list of files
var batchSignCmd = &cobra.Command{
	Use:   "sign <file>...",
	Short: "Sign files in a batch",
	Long: `Sign every named file with the same key, writing each envelope
beside its source file with a .sig suffix. The key is resolved before
any file is touched, so an unknown key fails the whole command. A file
that cannot be signed is recorded as a per-file failure.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		keyName, _ := cmd.Flags().GetString("key")
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

		items := make([]batch.Item, len(args))
		for i, path := range args {
			items[i] = batch.Item{ID: path, Path: path}
		}

		spec := &batch.JobSpec{
			Kind:  "sign",
			Items: items,
			Check: func(ctx context.Context) error {
				_, err := rt.KeyStore.Get(ctx, keyName)
				return err
			},
			// Each file gets its own sibling artifact, so the shared
			// options are copied per item before the output path is set.
			Operation: func(ctx context.Context, item batch.Item) (any, error) {
				o := *opts
				o.OutputPath = signing.SignatureFilePath(item.Path)
				return rt.Signer.SignFile(ctx, item.Path, keyName, passphrase, &o)
			},
		}

		report, err := runBatch(cmd, rt, spec)
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintBatchReport(report); err != nil {
			handleError(err)
			return
		}
		if report.FailureCount > 0 || report.CancelledCount > 0 {
			os.Exit(1)
		}
	},
}

// batchVerifyCmd verifies a list of files
var batchVerifyCmd = &cobra.Command{
	Use:   "verify <file>...",
	Short: "Verify files in a batch",
	Long: `Verify each named file against its sibling signature artifact
(<file>.sig unless --suffix says otherwise). An invalid signature is a
per-file failure carrying the verdict reason; the report's failure
count is the number of signatures that did not check out.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		suffix, _ := cmd.Flags().GetString("suffix")
		checkTrust, _ := cmd.Flags().GetBool("check-trust")

		rt, err := openRuntime(cfg)
		if err != nil {
			handleError(err)
			return
		}
		defer rt.Close()

		items := make([]batch.Item, len(args))
		for i, path := range args {
			// A missing artifact surfaces as a malformed-envelope
			// failure on that item, not an aborted batch.
			envData, readErr := os.ReadFile(path + suffix)
			if readErr != nil {
				printVerbose("no signature artifact for %s: %v", path, readErr)
			}
			items[i] = batch.Item{ID: path, Path: path, Envelope: envData}
		}

		opts := &verification.Options{CheckTrust: checkTrust}
		spec := batch.VerifySpec(rt.Verifier, opts, items)

		report, err := runBatch(cmd, rt, spec)
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintBatchReport(report); err != nil {
			handleError(err)
			return
		}
		if report.FailureCount > 0 || report.CancelledCount > 0 {
			os.Exit(exitCode(types.NewIntegrityError(types.ReasonInvalidSignature, "", nil)))
		}
	},
}

// runBatch applies the shared batch flags to the spec and runs it on
// an engine configured from the effective configuration.
func runBatch(cmd *cobra.Command, rt *Runtime, spec *batch.JobSpec) (*batch.Report, error) {
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	retries, _ := cmd.Flags().GetInt("retries")
	showProgress, _ := cmd.Flags().GetBool("progress")

	spec.Concurrency = concurrency
	spec.Retries = retries
	if retries == 0 {
		spec.Retries = rt.Config.Batch.Retries
	}
	spec.ItemTimeout = timeout
	if showProgress {
		spec.Progress = func(p batch.Progress) {
			fmt.Fprintf(os.Stderr, "\r%d/%d (%.0f%%)", p.Completed, p.Total, p.Percentage)
			if p.Completed == p.Total {
				fmt.Fprintln(os.Stderr)
			}
		}
	}

	engine := batch.New(&batch.Config{
		Logger:             rt.Logger,
		MaxConcurrency:     rt.Config.Batch.MaxConcurrency,
		DefaultConcurrency: rt.Config.Batch.DefaultConcurrency,
		DefaultItemTimeout: time.Duration(rt.Config.Batch.ItemTimeoutSeconds) * time.Second,
	})
	return engine.Run(context.Background(), spec)
}

func init() {
	batchSignCmd.Flags().StringP("key", "k", "", "signing key name (required)")
	batchSignCmd.Flags().StringP("format", "f", "structured", "signature format (structured, raw)")
	batchSignCmd.Flags().StringP("encoding", "e", "base64", "signature text encoding (base64, hex)")
	batchSignCmd.Flags().String("scheme", "", "signature scheme override (defaults to the key's scheme)")
	batchSignCmd.Flags().Bool("detached", false, "record the payload hash for detached verification")
	batchSignCmd.Flags().Duration("expires-in", 0, "signature validity window, e.g. 720h (0 means no expiry)")
	batchSignCmd.Flags().StringToString("meta", nil, "metadata to embed, e.g. --meta build=42")
	batchSignCmd.Flags().Bool("include-public-key", false, "embed the public key PEM in the envelopes")
	_ = batchSignCmd.MarkFlagRequired("key")

	batchVerifyCmd.Flags().String("suffix", signing.SignatureFileSuffix, "signature artifact suffix")
	batchVerifyCmd.Flags().Bool("check-trust", false, "report each signing key's trust standing")

	for _, cmd := range []*cobra.Command{batchSignCmd, batchVerifyCmd} {
		cmd.Flags().IntP("concurrency", "c", 0, "worker pool size (0 uses the configured default)")
		cmd.Flags().Duration("timeout", 0, "per-file timeout (0 uses the configured default)")
		cmd.Flags().Int("retries", 0, "retry attempts for transient failures (0 uses the configured default)")
		cmd.Flags().Bool("progress", false, "print completion progress to stderr")
	}

	batchCmd.AddCommand(batchSignCmd)
	batchCmd.AddCommand(batchVerifyCmd)
}
