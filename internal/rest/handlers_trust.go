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
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jeremyhahn/go-signet/pkg/trust"
	"github.com/jeremyhahn/go-signet/pkg/types"
)

// TrustHandler handles POST /api/v1/trust requests.
func (h *HandlerContext) TrustHandler(w http.ResponseWriter, r *http.Request) {
	var req TrustRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	entry, err := h.Trust.Trust(r.Context(), req.Fingerprint, req.KeyName, req.Description)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, entry, http.StatusCreated)
}

// ListTrustHandler handles GET /api/v1/trust requests.
func (h *HandlerContext) ListTrustHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Trust.List(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, ListTrustResponse{Entries: entries}, http.StatusOK)
}

// GetTrustHandler handles GET /api/v1/trust/{fingerprint} requests.
func (h *HandlerContext) GetTrustHandler(w http.ResponseWriter, r *http.Request) {
	fingerprint := chi.URLParam(r, "fingerprint")

	entry, err := h.Trust.Get(r.Context(), fingerprint)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, entry, http.StatusOK)
}

// EvaluateTrustHandler handles GET /api/v1/trust/{fingerprint}/evaluate
// requests. Unknown fingerprints are a verdict, not an error.
func (h *HandlerContext) EvaluateTrustHandler(w http.ResponseWriter, r *http.Request) {
	fingerprint := chi.URLParam(r, "fingerprint")

	state, err := h.Trust.Evaluate(r.Context(), fingerprint)
	if err != nil {
		handleError(w, err)
		return
	}

	resp := EvaluateTrustResponse{
		Fingerprint: fingerprint,
		State:       state.String(),
		Trusted:     state == types.TrustStateTrusted,
	}
	writeJSON(w, resp, http.StatusOK)
}

// RevokeTrustHandler handles POST /api/v1/trust/{fingerprint}/revoke
// requests.
func (h *HandlerContext) RevokeTrustHandler(w http.ResponseWriter, r *http.Request) {
	fingerprint := chi.URLParam(r, "fingerprint")

	var req RevokeTrustRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	entry, err := h.Trust.Revoke(r.Context(), fingerprint, req.Reason)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, entry, http.StatusOK)
}

// ReinstateTrustHandler handles POST /api/v1/trust/{fingerprint}/reinstate
// requests.
func (h *HandlerContext) ReinstateTrustHandler(w http.ResponseWriter, r *http.Request) {
	fingerprint := chi.URLParam(r, "fingerprint")

	var req ReinstateTrustRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	entry, err := h.Trust.Reinstate(r.Context(), fingerprint, &trust.ReinstateOptions{
		Force:       req.Force,
		Description: req.Description,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, entry, http.StatusOK)
}
