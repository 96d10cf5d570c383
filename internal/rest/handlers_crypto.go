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

	"github.com/jeremyhahn/go-signet/pkg/signing"
	"github.com/jeremyhahn/go-signet/pkg/types"
	"github.com/jeremyhahn/go-signet/pkg/verification"
)

const formatJWS = "jws"

// SignHandler handles POST /api/v1/sign requests.
func (h *HandlerContext) SignHandler(w http.ResponseWriter, r *http.Request) {
	var req SignRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	passphrase := types.PasswordFromString(req.Passphrase)
	defer passphrase.Clear()

	opts := &signing.Options{
		Encoding:         types.Encoding(req.Encoding),
		Scheme:           types.SignatureScheme(req.Scheme),
		Detached:         req.Detached,
		Timestamp:        true,
		Metadata:         req.Metadata,
		IncludePublicKey: req.IncludePublicKey,
	}
	if req.TTLSeconds > 0 {
		opts.ExpiresIn = time.Duration(req.TTLSeconds) * time.Second
	}

	if req.Format == formatJWS {
		token, err := h.Signer.SignJWS(r.Context(), req.Data, req.KeyName, passphrase, opts)
		if err != nil {
			handleError(w, err)
			return
		}

		fingerprint, _ := h.KeyStore.Fingerprint(r.Context(), req.KeyName)
		resp := SignResponse{
			KeyName:     req.KeyName,
			Fingerprint: fingerprint,
			Format:      formatJWS,
			Envelope:    []byte(token),
		}
		writeJSON(w, resp, http.StatusOK)
		return
	}

	opts.Format = types.EnvelopeFormat(req.Format)

	result, err := h.Signer.Sign(r.Context(), req.Data, req.KeyName, passphrase, opts)
	if err != nil {
		handleError(w, err)
		return
	}

	resp := SignResponse{
		KeyName:  req.KeyName,
		Format:   string(result.Format),
		Envelope: result.Encoded,
	}
	if result.Envelope != nil {
		resp.Fingerprint = result.Envelope.Fingerprint
	}
	writeJSON(w, resp, http.StatusOK)
}

// VerifyHandler handles POST /api/v1/verify requests.
// Invalid signatures are a verdict, not an error: the response reports
// Valid false with the failure reason, and only malformed requests and
// envelope parse failures surface as HTTP errors.
func (h *HandlerContext) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	opts := &verification.Options{
		CheckTrust:     req.CheckTrust,
		RequireTrusted: req.RequireTrusted,
	}

	var (
		result *verification.Result
		err    error
	)
	if req.Format == formatJWS {
		result, _, err = h.Verifier.VerifyJWS(r.Context(), string(req.Envelope), opts)
	} else {
		result, err = h.Verifier.Verify(r.Context(), req.Data, req.Envelope, opts)
	}
	if err != nil {
		handleError(w, err)
		return
	}

	resp := VerifyResponse{
		Valid:        result.Valid,
		Reason:       string(result.Reason),
		Detail:       result.Detail,
		TrustChecked: result.TrustChecked,
		Trusted:      result.Trusted,
		TrustReason:  result.TrustReason,
	}
	if result.Envelope != nil {
		resp.KeyName = result.Envelope.KeyName
		resp.Fingerprint = result.Envelope.Fingerprint
	}
	writeJSON(w, resp, http.StatusOK)
}
