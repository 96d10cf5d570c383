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
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jeremyhahn/go-signet/pkg/health"
	"github.com/jeremyhahn/go-signet/pkg/keystore"
	"github.com/jeremyhahn/go-signet/pkg/multisig"
	"github.com/jeremyhahn/go-signet/pkg/signing"
	"github.com/jeremyhahn/go-signet/pkg/trust"
	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/jeremyhahn/go-signet/pkg/verification"
	"github.com/jeremyhahn/go-signet/pkg/watcher"
)

// HandlerContext holds dependencies for REST handlers.
type HandlerContext struct {
	// Version is the API version
	Version string

	KeyStore *keystore.KeyStore
	Trust    *trust.Registry
	Signer   *signing.Signer
	Verifier *verification.Verifier
	Watchers *watcher.Registry
	MultiSig *multisig.Coordinator

	// HealthChecker manages health check probes
	HealthChecker HealthChecker
}

// HealthChecker defines the interface for health checking.
type HealthChecker interface {
	Live(ctx context.Context) health.CheckResult
	Ready(ctx context.Context) []health.CheckResult
	Startup(ctx context.Context) health.CheckResult
}

// SetHealthChecker sets the health checker for the handler context.
func (h *HandlerContext) SetHealthChecker(checker HealthChecker) {
	h.HealthChecker = checker
}

// HealthHandler handles GET /health requests.
func (h *HandlerContext) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "healthy",
		Version: h.Version,
	}
	writeJSON(w, resp, http.StatusOK)
}

// decodeRequest decodes a JSON request body into dst.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return false
	}
	return true
}

// GenerateKeyHandler handles POST /api/v1/keys requests.
func (h *HandlerContext) GenerateKeyHandler(w http.ResponseWriter, r *http.Request) {
	var req GenerateKeyRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if req.Name == "" {
		writeError(w, ErrMissingName, http.StatusBadRequest)
		return
	}

	algorithm, err := types.ParseAlgorithm(req.Algorithm)
	if err != nil {
		handleError(w, err)
		return
	}

	passphrase := types.PasswordFromString(req.Passphrase)
	defer passphrase.Clear()

	info, err := h.KeyStore.Generate(r.Context(), req.Name, algorithm, passphrase)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, info, http.StatusCreated)
}

// ListKeysHandler handles GET /api/v1/keys requests.
func (h *HandlerContext) ListKeysHandler(w http.ResponseWriter, r *http.Request) {
	keys, err := h.KeyStore.List(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, ListKeysResponse{Keys: keys}, http.StatusOK)
}

// GetKeyHandler handles GET /api/v1/keys/{name} requests.
func (h *HandlerContext) GetKeyHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	info, err := h.KeyStore.Get(r.Context(), name)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, info, http.StatusOK)
}

// DeleteKeyHandler handles DELETE /api/v1/keys/{name} requests.
func (h *HandlerContext) DeleteKeyHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.KeyStore.Delete(r.Context(), name); err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, SuccessResponse{Success: true, Message: "key deleted"}, http.StatusOK)
}

// RotateKeyHandler handles POST /api/v1/keys/{name}/rotate requests.
func (h *HandlerContext) RotateKeyHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req PassphraseRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	passphrase := types.PasswordFromString(req.Passphrase)
	defer passphrase.Clear()

	info, err := h.KeyStore.Rotate(r.Context(), name, passphrase)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, info, http.StatusOK)
}

// RevokeKeyHandler handles POST /api/v1/keys/{name}/revoke requests.
func (h *HandlerContext) RevokeKeyHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.KeyStore.Revoke(r.Context(), name); err != nil {
		handleError(w, err)
		return
	}

	info, err := h.KeyStore.Get(r.Context(), name)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, info, http.StatusOK)
}

// ExportKeyHandler handles GET /api/v1/keys/{name}/export requests.
// Only the public half leaves the store.
func (h *HandlerContext) ExportKeyHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	pem, err := h.KeyStore.ExportPublicPEM(r.Context(), name)
	if err != nil {
		handleError(w, err)
		return
	}

	fingerprint, err := h.KeyStore.Fingerprint(r.Context(), name)
	if err != nil {
		handleError(w, err)
		return
	}

	resp := ExportKeyResponse{
		Name:         name,
		Fingerprint:  fingerprint,
		PublicKeyPEM: pem,
	}
	writeJSON(w, resp, http.StatusOK)
}
