// Package tenant identifies the caller of the external API, per
// spec.md §6 ("Tenant identification"). It is deliberately pluggable: a
// fixed-zero-tenant Verifier for local development and a JWT-backed one
// for anything that needs real multi-tenancy.
package tenant

import "context"

// Verifier extracts a tenant ID from an inbound bearer token. A non-nil
// error means the token was missing or invalid and the caller should
// respond with the error's cdperr.Kind-mapped status.
type Verifier interface {
	Verify(ctx context.Context, bearerToken string) (tenantID string, err error)
}
