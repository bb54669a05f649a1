// Package reaper implements the gateway's idle/absolute-timeout sweep,
// spec.md §4.5: a single background task started at boot, ticking every
// passInterval, that unions idle and stale-active session IDs and
// closes each, in the ticker-loop idiom of the teacher's heartbeatLoop.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/cdpfleet/cdpfleet/internal/metrics"
	"github.com/cdpfleet/cdpfleet/internal/registry"
)

// defaultPassInterval is spec.md §4.5's fixed 30-second cadence.
const defaultPassInterval = 30 * time.Second

// Closer performs the close protocol; satisfied by *gwservice.SessionService.
type Closer interface {
	CloseSession(ctx context.Context, sessionID, reason string) error
}

// Reaper owns the periodic idle/absolute timeout pass.
type Reaper struct {
	reg             *registry.Registry
	closer          Closer
	idleTimeout     time.Duration
	absoluteTimeout time.Duration
	passInterval    time.Duration
}

// New constructs a Reaper. passInterval of 0 selects the spec default.
func New(reg *registry.Registry, closer Closer, idleTimeout, absoluteTimeout, passInterval time.Duration) *Reaper {
	if passInterval <= 0 {
		passInterval = defaultPassInterval
	}
	return &Reaper{
		reg:             reg,
		closer:          closer,
		idleTimeout:     idleTimeout,
		absoluteTimeout: absoluteTimeout,
		passInterval:    passInterval,
	}
}

// Run blocks ticking passes until ctx is cancelled. A per-pass panic or
// error never terminates the loop, per spec.md §4.5 "Fault tolerance".
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.passInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.safePass(ctx)
		}
	}
}

func (r *Reaper) safePass(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("reaper: pass panicked", "recovered", rec)
		}
	}()
	r.pass(ctx)
}

func (r *Reaper) pass(ctx context.Context) {
	metrics.ReaperPassesTotal.Inc()

	idleCutoff := time.Now().Add(-r.idleTimeout)
	idleIDs, err := r.reg.IdleSessionIDs(ctx, idleCutoff)
	if err != nil {
		slog.Error("reaper: idle scan failed", "error", err)
		idleIDs = nil
	}

	staleIDs, err := r.reg.StaleActiveSessionIDs(ctx, r.absoluteTimeout)
	if err != nil {
		slog.Error("reaper: absolute scan failed", "error", err)
		staleIDs = nil
	}

	// Union normalized to the session ID's textual form, per spec.md §9
	// "Observed source ambiguity" — both sources already yield that form
	// here, so deduplication is a plain set union.
	cause := make(map[string]string, len(idleIDs)+len(staleIDs))
	for _, id := range idleIDs {
		cause[id] = "idle"
	}
	for _, id := range staleIDs {
		if _, already := cause[id]; !already {
			cause[id] = "absolute"
		}
	}

	for sessionID, why := range cause {
		if err := r.closer.CloseSession(ctx, sessionID, why+"_reaper"); err != nil {
			slog.Warn("reaper: close failed for session", "session_id", sessionID, "error", err)
			continue
		}
		metrics.ReaperClosedTotal.WithLabelValues(why).Inc()
	}
}
