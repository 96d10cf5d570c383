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

package health

import (
	"context"
	"fmt"

	"github.com/jeremyhahn/go-signet/pkg/keystore"
	"github.com/jeremyhahn/go-signet/pkg/storage"
	"github.com/jeremyhahn/go-signet/pkg/watcher"
)

// BackendCheck probes a storage backend with a cheap listing.
func BackendCheck(name string, backend storage.Backend) CheckFunc {
	return func(ctx context.Context) CheckResult {
		if _, err := backend.List(storage.PrefixKeys); err != nil {
			return CheckResult{
				Name:    name,
				Status:  StatusUnhealthy,
				Message: "storage backend unreachable",
				Error:   err.Error(),
			}
		}
		return CheckResult{
			Name:    name,
			Status:  StatusHealthy,
			Message: "storage backend reachable",
		}
	}
}

// KeyStoreCheck verifies the key store can enumerate its records.
func KeyStoreCheck(store *keystore.KeyStore) CheckFunc {
	return func(ctx context.Context) CheckResult {
		keys, err := store.List(ctx)
		if err != nil {
			return CheckResult{
				Name:    "keystore",
				Status:  StatusUnhealthy,
				Message: "key listing failed",
				Error:   err.Error(),
			}
		}
		return CheckResult{
			Name:    "keystore",
			Status:  StatusHealthy,
			Message: fmt.Sprintf("%d keys", len(keys)),
		}
	}
}

// WatcherCheck reports on the watcher registry. Event refusals from
// full queues degrade the service rather than failing it: signing
// still works, but events were lost.
func WatcherCheck(registry *watcher.Registry) CheckFunc {
	return func(ctx context.Context) CheckResult {
		watchers := registry.List()
		active := 0
		var dropped uint64
		for _, w := range watchers {
			if w.State() == watcher.StateActive {
				active++
			}
			dropped += w.Stats().Dropped
		}
		result := CheckResult{
			Name:    "watchers",
			Status:  StatusHealthy,
			Message: fmt.Sprintf("%d watchers, %d active", len(watchers), active),
		}
		if dropped > 0 {
			result.Status = StatusDegraded
			result.Message = fmt.Sprintf("%d watchers, %d active, %d events refused", len(watchers), active, dropped)
		}
		return result
	}
}
