// Package devfixed provides a Verifier for local development and tests:
// every token, including an empty one, resolves to the same fixed
// tenant ID so a single-tenant deployment never needs a real identity
// provider wired in.
package devfixed

import (
	"context"

	"github.com/cdpfleet/cdpfleet/internal/ids"
)

// Provider implements tenant.Verifier by always returning ids.ZeroTenantID.
type Provider struct{}

// New constructs a Provider.
func New() *Provider { return &Provider{} }

// Verify implements tenant.Verifier.
func (Provider) Verify(context.Context, string) (string, error) {
	return ids.ZeroTenantID, nil
}
