// Package scheduler implements spec.md §4.1's pickWorker contract: a
// least-loaded-worker selection that stays correct across multiple
// stateless gateway replicas, not just multiple goroutines in one
// process, by delegating the read-check-increment to memstore's atomic
// script rather than holding a Go-level lock.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/cdpfleet/cdpfleet/internal/cdperr"
	"github.com/cdpfleet/cdpfleet/internal/registry/memstore"
)

// Scheduler picks and releases worker capacity.
type Scheduler struct {
	mem     *memstore.Store
	maxLoad int
}

// New constructs a Scheduler. maxLoad is the per-worker session cap; 0
// means uncapped, per spec.md §4.1's optional maxLoad parameter.
func New(mem *memstore.Store, maxLoad int) *Scheduler {
	return &Scheduler{mem: mem, maxLoad: maxLoad}
}

// PickWorker atomically selects and reserves capacity on the
// least-loaded worker. A *cdperr.Error with Kind KindNoCapacity is
// returned when every worker is at or above maxLoad, or none are
// registered (spec.md §4.1 "pickWorker(maxLoad?) -> workerHost | none").
func (s *Scheduler) PickWorker(ctx context.Context) (string, error) {
	workerHost, err := s.mem.PickWorker(ctx, s.maxLoad)
	if errors.Is(err, memstore.ErrNoCapacity) {
		return "", cdperr.New(cdperr.KindNoCapacity, "scheduler.PickWorker", err)
	}
	if err != nil {
		return "", cdperr.New(cdperr.KindTransient, "scheduler.PickWorker", err)
	}
	return workerHost, nil
}

// Release reverses a successful PickWorker, used on any failure path
// after scheduling (worker RPC failure) and by the close protocol.
func (s *Scheduler) Release(ctx context.Context, workerHost string) error {
	if err := s.mem.DecrementLoad(ctx, workerHost); err != nil {
		return fmt.Errorf("release worker load: %w", err)
	}
	return nil
}

// RegisterWorker self-registers a worker at score 0 if absent, per
// spec.md §4.6's "Self-registration" note.
func (s *Scheduler) RegisterWorker(ctx context.Context, workerHost string) error {
	return s.mem.RegisterWorker(ctx, workerHost)
}

// DeregisterWorker removes a worker from scheduling consideration.
func (s *Scheduler) DeregisterWorker(ctx context.Context, workerHost string) error {
	return s.mem.DeregisterWorker(ctx, workerHost)
}
