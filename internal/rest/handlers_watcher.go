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

package rest

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/jeremyhahn/go-signet/pkg/watcher"
)

// StartWatcherHandler handles POST /api/v1/watchers requests.
func (h *HandlerContext) StartWatcherHandler(w http.ResponseWriter, r *http.Request) {
	var req StartWatcherRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	cfg := &watcher.Config{
		Directory:          req.Directory,
		KeyName:            req.KeyName,
		Passphrase:         types.PasswordFromString(req.Passphrase),
		Patterns:           req.Patterns,
		ExcludePatterns:    req.ExcludePatterns,
		Recursive:          req.Recursive,
		WatchModifications: req.WatchModifications,
		IgnoreHidden:       req.IgnoreHidden,
		MaxFileSize:        req.MaxFileSize,
		MaxConcurrent:      req.MaxConcurrent,
		QueueSize:          req.QueueSize,
		EventsPerSecond:    req.EventsPerSecond,
		BackupSignedFiles:  req.BackupSignedFiles,
		BackupDirectory:    req.BackupDirectory,
	}

	watch, err := h.Watchers.Start(r.Context(), cfg)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, watch.Info(), http.StatusCreated)
}

// ListWatchersHandler handles GET /api/v1/watchers requests.
func (h *HandlerContext) ListWatchersHandler(w http.ResponseWriter, r *http.Request) {
	watchers := h.Watchers.List()

	infos := make([]watcher.Info, 0, len(watchers))
	for _, watch := range watchers {
		infos = append(infos, watch.Info())
	}

	writeJSON(w, ListWatchersResponse{Watchers: infos}, http.StatusOK)
}

// GetWatcherHandler handles GET /api/v1/watchers/{id} requests.
func (h *HandlerContext) GetWatcherHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	watch, err := h.Watchers.Get(id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, watch.Info(), http.StatusOK)
}

// WatcherActivityHandler handles GET /api/v1/watchers/{id}/activity
// requests.
func (h *HandlerContext) WatcherActivityHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	watch, err := h.Watchers.Get(id)
	if err != nil {
		handleError(w, err)
		return
	}

	resp := WatcherActivityResponse{
		ID:       id,
		Activity: watch.Activity(),
	}
	writeJSON(w, resp, http.StatusOK)
}

// StopWatcherHandler handles DELETE /api/v1/watchers/{id} requests.
// The watcher is stopped, drained, and removed from the registry. An
// already stopped watcher is simply removed.
func (h *HandlerContext) StopWatcherHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Watchers.Stop(r.Context(), id); err != nil && !errors.Is(err, types.ErrWatcherStopped) {
		handleError(w, err)
		return
	}

	if err := h.Watchers.Remove(id); err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, SuccessResponse{Success: true, Message: "watcher stopped"}, http.StatusOK)
}
