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
	"fmt"
	"os"

	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/spf13/cobra"
)

var (
	// Global configuration
	globalConfig *Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "signet",
	Short: "go-signet CLI - Document signing and trust management tool",
	Long: `go-signet CLI provides a command-line interface for generating
signing keys, signing and verifying data and files, and managing the
trust registry that decides which keys are accepted.

Signing keys are sealed at rest and never leave the key store.
Signatures travel as structured JSON envelopes, JWS compact tokens,
or raw encoded bytes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Initialize global config
	globalConfig = NewConfig()

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&globalConfig.ConfigFile, "config", "",
		"config file (default is $HOME/.signet/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&globalConfig.OutputFormat, "output", "o", "text",
		"output format (text, json, table)")
	rootCmd.PersistentFlags().BoolVar(&globalConfig.Debug, "debug", false,
		"enable debug logging")
	rootCmd.PersistentFlags().StringVar(&globalConfig.PassphraseEnv, "passphrase-env", "",
		"environment variable holding the key passphrase (replaces the prompt)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(trustCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(multisigCmd)
	rootCmd.AddCommand(serveCmd)
}

// getConfig returns the global configuration
func getConfig() *Config {
	return globalConfig
}

// handleError prints an error and exits with the error class code
func handleError(err error) {
	printer := NewPrinter(globalConfig.OutputFormat, os.Stderr)
	_ = printer.PrintError(err) // Error printing to stderr is best-effort
	os.Exit(exitCode(err))
}

// exitCode maps an error to the process exit code: validation errors
// exit 2, unknown resources 3, authorization and trust failures 4,
// integrity failures 5, concurrency conflicts 6, everything else 1.
func exitCode(err error) int {
	switch {
	case types.IsValidation(err):
		return 2
	case types.IsNotFound(err):
		return 3
	case types.IsAuthorization(err):
		return 4
	case types.IsIntegrity(err):
		return 5
	case types.IsConcurrency(err):
		return 6
	default:
		return 1
	}
}

// printVerbose prints a message if debug mode is enabled
func printVerbose(format string, args ...interface{}) {
	if globalConfig.Debug {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}
