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

package envelope

import (
	"crypto"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jeremyhahn/go-signet/pkg/types"
)

// jwsAlgorithms are the JOSE algorithm names accepted when parsing.
var jwsAlgorithms = []string{"RS256", "PS256", "ES256", "ES384", "ES512", "EdDSA"}

// SigningMethodForScheme maps a signature scheme to its JOSE signing
// method.
func SigningMethodForScheme(scheme types.SignatureScheme) (jwt.SigningMethod, error) {
	var name string
	switch scheme {
	case types.SchemeRSAPKCS1SHA256:
		name = "RS256"
	case types.SchemeRSAPSSSHA256:
		name = "PS256"
	case types.SchemeECDSASHA256:
		name = "ES256"
	case types.SchemeECDSASHA384:
		name = "ES384"
	case types.SchemeECDSASHA512:
		name = "ES512"
	case types.SchemeEd25519:
		name = "EdDSA"
	default:
		return nil, fmt.Errorf("%w: no JOSE algorithm for scheme %q", types.ErrUnsupportedAlgorithm, scheme)
	}

	method := jwt.GetSigningMethod(name)
	if method == nil {
		return nil, fmt.Errorf("%w: JOSE algorithm %s not registered", types.ErrUnsupportedAlgorithm, name)
	}
	return method, nil
}

// SignJWS produces a compact JWS over the claims using the private
// key. The kid header carries the signing key's fingerprint so
// verifiers can resolve the public key without out-of-band context.
func SignJWS(signer crypto.Signer, scheme types.SignatureScheme, claims jwt.Claims, kid string) (string, error) {
	method, err := SigningMethodForScheme(scheme)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(method, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}

	signed, err := token.SignedString(signer)
	if err != nil {
		return "", fmt.Errorf("envelope: signing JWS: %w", err)
	}
	return signed, nil
}

// ParseJWS verifies a compact JWS against the public key and returns
// the token with its claims. An expired token reports ReasonExpired;
// every other failure maps to ReasonInvalidSignature.
func ParseJWS(tokenString string, publicKey crypto.PublicKey) (*jwt.Token, jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return publicKey, nil
	}, jwt.WithValidMethods(jwsAlgorithms))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, nil, types.NewIntegrityError(types.ReasonExpired,
				"JWS has expired",
				fmt.Errorf("%w: %v", types.ErrEnvelopeExpired, err))
		}
		return nil, nil, types.NewIntegrityError(types.ReasonInvalidSignature,
			"JWS did not verify",
			fmt.Errorf("%w: %v", types.ErrMalformedEnvelope, err))
	}
	return token, claims, nil
}

// ExtractKID reads the kid header without verifying the signature,
// letting verifiers resolve the key before checking it.
func ExtractKID(tokenString string) (string, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return "", types.NewIntegrityError(types.ReasonMalformed,
			"JWS does not parse",
			fmt.Errorf("%w: %v", types.ErrMalformedEnvelope, err))
	}

	kid, ok := token.Header["kid"].(string)
	if !ok {
		return "", nil
	}
	return kid, nil
}
