// Package registry is the split session registry of spec.md §3/§4: an
// authoritative relational store (relstore) kept consistent with a fast
// in-memory coordination store (memstore) through the write ordering
// spec.md §4.2/§4.3 specify. It is the single place that ordering lives,
// so callers (the orchestrator, the reaper, the relay) never have to
// reason about relstore/memstore interleaving themselves.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cdpfleet/cdpfleet/internal/registry/memstore"
	"github.com/cdpfleet/cdpfleet/internal/registry/relstore"
)

// ErrSessionNotFound is returned by TakeRoute/GetRoute when no routing
// entry exists for a session — either it never existed, or it has
// already been closed.
var ErrSessionNotFound = errors.New("session not found")

// Registry composes the relational and in-memory stores.
type Registry struct {
	rel *relstore.Queries
	mem *memstore.Store
}

// New constructs a Registry over an already-opened relational Queries and
// memstore Store.
func New(rel *relstore.Queries, mem *memstore.Store) *Registry {
	return &Registry{rel: rel, mem: mem}
}

// CreateSession performs spec.md §4.2 steps 4-5: insert the relational
// row, then pipeline-write the routing/detail/activity entries. The
// relational row is written *first* so that any observer who sees the
// routing entry is guaranteed a matching row (spec.md §4.2 "Ordering
// rationale").
func (r *Registry) CreateSession(ctx context.Context, sessionID, tenantID, workerHost, clientID string, detail memstore.Detail) error {
	if err := r.rel.InsertSession(ctx, sessionID, tenantID, workerHost, clientID); err != nil {
		return fmt.Errorf("insert relational row: %w", err)
	}
	if err := r.mem.WriteSession(ctx, sessionID, workerHost, detail); err != nil {
		return fmt.Errorf("write in-memory entries: %w", err)
	}
	return nil
}

// TakeRoute performs the close protocol's step 1: read-and-delete the
// routing entry. Returns ErrSessionNotFound if it was already absent,
// which callers treat as the idempotent no-op case (spec.md §4.3).
func (r *Registry) TakeRoute(ctx context.Context, sessionID string) (workerHost string, err error) {
	workerHost, err = r.mem.TakeRoute(ctx, sessionID)
	if errors.Is(err, memstore.ErrNotFound) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("take route: %w", err)
	}
	return workerHost, nil
}

// FinalizeClose performs the close protocol's steps 4-5: delete the
// detail/activity entries, then mark the relational row closed. The
// relational update is last so that a crash between step 1 and here
// leaves a row the reaper (or a later pass) can still converge
// (spec.md §4.3).
func (r *Registry) FinalizeClose(ctx context.Context, sessionID string) error {
	if err := r.mem.DeleteSessionVolatile(ctx, sessionID); err != nil {
		return fmt.Errorf("delete volatile entries: %w", err)
	}
	if err := r.rel.MarkClosed(ctx, sessionID); err != nil {
		return fmt.Errorf("mark closed: %w", err)
	}
	return nil
}

// GetRoute resolves a session's worker host without consuming the
// routing entry, used by the relay.
func (r *Registry) GetRoute(ctx context.Context, sessionID string) (string, error) {
	workerHost, err := r.mem.GetRoute(ctx, sessionID)
	if errors.Is(err, memstore.ErrNotFound) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get route: %w", err)
	}
	return workerHost, nil
}

// GetDetail resolves a session's (browserGuid, port), used by the relay
// after the routing entry is found.
func (r *Registry) GetDetail(ctx context.Context, sessionID string) (memstore.Detail, error) {
	detail, err := r.mem.GetDetail(ctx, sessionID)
	if errors.Is(err, memstore.ErrNotFound) {
		return memstore.Detail{}, ErrSessionNotFound
	}
	if err != nil {
		return memstore.Detail{}, fmt.Errorf("get detail: %w", err)
	}
	return detail, nil
}

// Touch updates a session's activity timestamp to now.
func (r *Registry) Touch(ctx context.Context, sessionID string) error {
	return r.mem.Touch(ctx, sessionID)
}

// ListSessions returns a tenant's sessions from the relational store
// only, ordered by createdAt descending (spec.md §4.2 "listSessions").
func (r *Registry) ListSessions(ctx context.Context, tenantID string) ([]relstore.Session, error) {
	return r.rel.ListByTenant(ctx, tenantID)
}

// IdleSessionIDs returns session IDs from the activity set whose score is
// at or below idleCutoff (spec.md §4.5 step 2).
func (r *Registry) IdleSessionIDs(ctx context.Context, idleCutoff time.Time) ([]string, error) {
	return r.mem.IdleSince(ctx, idleCutoff.Unix())
}

// StaleActiveSessionIDs returns session IDs from the relational store
// whose status is active and createdAt predates now-absoluteTimeout
// (spec.md §4.5 step 3).
func (r *Registry) StaleActiveSessionIDs(ctx context.Context, absoluteTimeout time.Duration) ([]string, error) {
	return r.rel.StaleActiveBeyond(ctx, absoluteTimeout)
}

// Stats returns the counts used to populate gauges.
func (r *Registry) Stats(ctx context.Context) (activeSessions int64, activeWorkers int64, err error) {
	activeSessions, err = r.rel.CountActive(ctx)
	if err != nil {
		return 0, 0, err
	}
	activeWorkers, err = r.mem.WorkerCount(ctx)
	if err != nil {
		return 0, 0, err
	}
	return activeSessions, activeWorkers, nil
}

// Mem exposes the underlying memstore for components (scheduler, worker
// self-registration) that operate on the load set directly rather than
// through session-oriented methods.
func (r *Registry) Mem() *memstore.Store { return r.mem }
