// Package jwtprovider verifies bearer tokens as JWTs and extracts a
// tenant ID claim, grounded on golang-jwt/jwt/v5's static-key parsing
// (as opposed to the heavier OIDC-discovery stack used elsewhere in the
// ecosystem, which this module has no need for — see DESIGN.md).
package jwtprovider

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cdpfleet/cdpfleet/internal/cdperr"
)

// Provider verifies HMAC- or RSA-signed JWTs and reads the tenant ID
// from a configurable claim name.
type Provider struct {
	keyFunc   jwt.Keyfunc
	claimName string
}

// New constructs a Provider. key is either a []byte (HMAC) or an
// *rsa.PublicKey (RS256); claimName defaults to "tenant_id" if empty.
func New(key any, claimName string) *Provider {
	if claimName == "" {
		claimName = "tenant_id"
	}
	return &Provider{
		keyFunc:   func(*jwt.Token) (any, error) { return key, nil },
		claimName: claimName,
	}
}

// Verify implements tenant.Verifier.
func (p *Provider) Verify(_ context.Context, bearerToken string) (string, error) {
	if bearerToken == "" {
		return "", cdperr.New(cdperr.KindAuthMissing, "jwtprovider.Verify", nil)
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(bearerToken, claims, p.keyFunc,
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512", "RS256", "RS384", "RS512"}))
	if err != nil {
		return "", cdperr.New(cdperr.KindAuthInvalid, "jwtprovider.Verify", err)
	}

	raw, ok := claims[p.claimName]
	if !ok {
		return "", cdperr.New(cdperr.KindAuthInvalid, "jwtprovider.Verify",
			fmt.Errorf("missing %q claim", p.claimName))
	}
	tenantID, ok := raw.(string)
	if !ok || tenantID == "" {
		return "", cdperr.New(cdperr.KindAuthInvalid, "jwtprovider.Verify",
			fmt.Errorf("%q claim is not a non-empty string", p.claimName))
	}
	return tenantID, nil
}
