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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jeremyhahn/go-signet/pkg/multisig"
)

// CreateSessionHandler handles POST /api/v1/multisig/sessions requests.
func (h *HandlerContext) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	spec := &multisig.SessionSpec{
		Data:         req.Data,
		Description:  req.Description,
		Threshold:    req.Threshold,
		Participants: req.Participants,
	}
	if req.TTLSeconds != 0 {
		spec.TTL = time.Duration(req.TTLSeconds) * time.Second
	}

	session, err := h.MultiSig.CreateSession(r.Context(), spec)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, session, http.StatusCreated)
}

// ListSessionsHandler handles GET /api/v1/multisig/sessions requests.
func (h *HandlerContext) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions := h.MultiSig.List(r.Context())
	writeJSON(w, sessions, http.StatusOK)
}

// GetSessionHandler handles GET /api/v1/multisig/sessions/{id} requests.
func (h *HandlerContext) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.MultiSig.Get(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, session, http.StatusOK)
}

// CollectSignatureHandler handles
// POST /api/v1/multisig/sessions/{id}/signatures requests.
func (h *HandlerContext) CollectSignatureHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req CollectSignatureRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	session, err := h.MultiSig.CollectSignature(r.Context(), id, req.KeyName, req.Signature)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, session, http.StatusOK)
}

// VerifySessionHandler handles
// POST /api/v1/multisig/sessions/{id}/verify requests.
func (h *HandlerContext) VerifySessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.MultiSig.VerifyMultiSignature(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, result, http.StatusOK)
}

// CompleteSessionHandler handles
// POST /api/v1/multisig/sessions/{id}/complete requests.
func (h *HandlerContext) CompleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.MultiSig.CompleteSession(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, session, http.StatusOK)
}

// CancelSessionHandler handles
// POST /api/v1/multisig/sessions/{id}/cancel requests.
func (h *HandlerContext) CancelSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.MultiSig.CancelSession(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, session, http.StatusOK)
}

// ResetSessionHandler handles
// POST /api/v1/multisig/sessions/{id}/reset requests.
func (h *HandlerContext) ResetSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := h.MultiSig.ResetSession(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, session, http.StatusOK)
}
