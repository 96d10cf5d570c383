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
	"os/signal"
	"syscall"
	"time"

	"github.com/jeremyhahn/go-signet/pkg/client"
	"github.com/jeremyhahn/go-signet/pkg/watcher"
	"github.com/spf13/cobra"
)

// watchCmd groups the auto-sign watcher operations
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sign files automatically as they appear in a directory",
	Long: `Watch a directory and sign matching files as they are created,
writing each envelope beside its file. Without --server the watcher
runs in the foreground until interrupted; with --server it is started
on a running signet server, where it can be listed and stopped by ID.`,
}

// watchStartCmd starts a watcher, locally or on a server
var watchStartCmd = &cobra.Command{
	Use:   "start <directory>",
	Short: "Start watching a directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := getConfig()
		printer := NewPrinter(cfg.OutputFormat, os.Stdout)

		keyName, _ := cmd.Flags().GetString("key")
		patterns, _ := cmd.Flags().GetStringArray("pattern")
		excludes, _ := cmd.Flags().GetStringArray("exclude")
		recursive, _ := cmd.Flags().GetBool("recursive")
		modifications, _ := cmd.Flags().GetBool("modifications")
		ignoreHidden, _ := cmd.Flags().GetBool("ignore-hidden")
		maxFileSize, _ := cmd.Flags().GetInt64("max-file-size")
		maxConcurrent, _ := cmd.Flags().GetInt("concurrency")
		queueSize, _ := cmd.Flags().GetInt("queue-size")
		eventsPerSec, _ := cmd.Flags().GetFloat64("events-per-second")
		backupDir, _ := cmd.Flags().GetString("backup-dir")

		passphrase, err := readPassphrase(false)
		if err != nil {
			handleError(err)
			return
		}
		defer passphrase.Clear()

		if cmd.Flags().Changed("server") {
			cl, err := dialServer(cmd, cfg)
			if err != nil {
				handleError(err)
				return
			}
			defer cl.Close()

			info, err := cl.StartWatcher(context.Background(), &client.StartWatcherRequest{
				Directory:          args[0],
				KeyName:            keyName,
				Passphrase:         passphrase.String(),
				Patterns:           patterns,
				ExcludePatterns:    excludes,
				Recursive:          recursive,
				WatchModifications: modifications,
				IgnoreHidden:       ignoreHidden,
				MaxFileSize:        maxFileSize,
				MaxConcurrent:      maxConcurrent,
				QueueSize:          queueSize,
				EventsPerSecond:    eventsPerSec,
				BackupSignedFiles:  backupDir != "",
				BackupDirectory:    backupDir,
			})
			if err != nil {
				handleError(err)
				return
			}
			if err := printer.PrintWatcherInfo(*info); err != nil {
				handleError(err)
			}
			return
		}

		rt, err := openRuntime(cfg)
		if err != nil {
			handleError(err)
			return
		}
		defer rt.Close()

		registry, err := newWatcherRegistry(rt)
		if err != nil {
			handleError(err)
			return
		}

		watcherCfg := &watcher.Config{
			Directory:          args[0],
			KeyName:            keyName,
			Passphrase:         passphrase,
			Patterns:           patterns,
			ExcludePatterns:    excludes,
			Recursive:          recursive,
			WatchModifications: modifications,
			IgnoreHidden:       ignoreHidden,
			MaxFileSize:        maxFileSize,
			MaxConcurrent:      maxConcurrent,
			QueueSize:          queueSize,
			EventsPerSecond:    eventsPerSec,
			BackupSignedFiles:  backupDir != "",
			BackupDirectory:    backupDir,
		}

		ctx := context.Background()
		w, err := registry.Start(ctx, watcherCfg)
		if err != nil {
			handleError(err)
			return
		}

		fmt.Fprintf(os.Stderr, "watching %s with key %q (press Ctrl-C to stop)\n", w.Directory(), keyName)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		stopCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(rt.Config.Server.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()
		registry.StopAll(stopCtx)

		if err := printer.PrintWatcherInfo(w.Info()); err != nil {
			handleError(err)
		}
	},
}

// watchListCmd lists the watchers on a running server
var watchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watchers on a running server",
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

		watchers, err := cl.ListWatchers(context.Background())
		if err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintWatcherList(watchers); err != nil {
			handleError(err)
		}
	},
}

// watchStopCmd stops a watcher on a running server
var watchStopCmd = &cobra.Command{
	Use:   "stop <watcher-id>",
	Short: "Stop a watcher on a running server",
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

		if err := cl.StopWatcher(context.Background(), args[0]); err != nil {
			handleError(err)
			return
		}
		if err := printer.PrintSuccess(fmt.Sprintf("Stopped watcher %s", args[0])); err != nil {
			handleError(err)
		}
	},
}

// newWatcherRegistry builds a registry with defaults drawn from the
// effective configuration.
func newWatcherRegistry(rt *Runtime) (*watcher.Registry, error) {
	return watcher.NewRegistry(&watcher.RegistryConfig{
		Signer:               rt.Signer,
		Logger:               rt.Logger,
		Audit:                rt.Audit,
		DefaultQueueSize:     rt.Config.Watcher.QueueSize,
		DefaultMaxConcurrent: rt.Config.Watcher.MaxConcurrent,
		DefaultActivityLimit: rt.Config.Watcher.ActivityLogSize,
	})
}

func init() {
	watchStartCmd.Flags().StringP("key", "k", "", "signing key name (required)")
	watchStartCmd.Flags().StringArrayP("pattern", "p", nil, "include glob, e.g. '*.txt' (repeatable; empty matches everything)")
	watchStartCmd.Flags().StringArray("exclude", nil, "exclude glob (repeatable)")
	watchStartCmd.Flags().BoolP("recursive", "r", false, "watch subdirectories too")
	watchStartCmd.Flags().Bool("modifications", false, "sign on modification as well as creation")
	watchStartCmd.Flags().Bool("ignore-hidden", true, "skip dotfiles and dot-directories")
	watchStartCmd.Flags().Int64("max-file-size", 0, "skip files larger than this many bytes (0 means no limit)")
	watchStartCmd.Flags().IntP("concurrency", "c", 0, "concurrent signing limit (0 uses the configured default)")
	watchStartCmd.Flags().Int("queue-size", 0, "event backlog size (0 uses the configured default)")
	watchStartCmd.Flags().Float64("events-per-second", 0, "event rate limit (0 means unlimited)")
	watchStartCmd.Flags().String("backup-dir", "", "copy signed files into this directory")
	_ = watchStartCmd.MarkFlagRequired("key")
	addRemoteFlags(watchStartCmd)

	addRemoteFlags(watchListCmd)
	addRemoteFlags(watchStopCmd)

	watchCmd.AddCommand(watchStartCmd)
	watchCmd.AddCommand(watchListCmd)
	watchCmd.AddCommand(watchStopCmd)
}
