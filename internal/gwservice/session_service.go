// Package gwservice implements the gateway's session lifecycle
// operations of spec.md §4.2/§4.3, in the shape of the teacher's
// service.TerminalService: a thin struct wired over the registry,
// scheduler, and worker client, exposing one method per operation.
package gwservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cdpfleet/cdpfleet/internal/cdperr"
	"github.com/cdpfleet/cdpfleet/internal/ids"
	"github.com/cdpfleet/cdpfleet/internal/metrics"
	"github.com/cdpfleet/cdpfleet/internal/registry"
	"github.com/cdpfleet/cdpfleet/internal/registry/memstore"
	"github.com/cdpfleet/cdpfleet/internal/registry/relstore"
	"github.com/cdpfleet/cdpfleet/internal/scheduler"
	"github.com/cdpfleet/cdpfleet/internal/workerclient"
)

// SessionService implements createSession/listSessions/closeSession.
type SessionService struct {
	reg        *registry.Registry
	sched      *scheduler.Scheduler
	workers    *workerclient.Client
	publicHost string
}

// New constructs a SessionService.
func New(reg *registry.Registry, sched *scheduler.Scheduler, workers *workerclient.Client, publicGatewayHost string) *SessionService {
	return &SessionService{reg: reg, sched: sched, workers: workers, publicHost: publicGatewayHost}
}

// CreateSessionResult is the response shape of spec.md §4.2's createSession.
type CreateSessionResult struct {
	SessionID  string
	ConnectURL string
}

// CreateSession implements spec.md §4.2's 6-step ordering: pick a
// worker, ask it to launch a browser, persist the relational row, then
// write the volatile routing/detail/activity entries last.
func (s *SessionService) CreateSession(ctx context.Context, tenantID, clientID string) (CreateSessionResult, error) {
	sessionID := ids.NewSessionID()

	workerHost, err := s.sched.PickWorker(ctx)
	if err != nil {
		if cdperr.KindOf(err) == cdperr.KindNoCapacity {
			metrics.SchedulerNoCapacityTotal.Inc()
		}
		return CreateSessionResult{}, err // already a *cdperr.Error with KindNoCapacity
	}

	launch, err := s.workers.NewBrowser(ctx, workerHost, sessionID)
	if err != nil {
		s.releaseQuietly(ctx, workerHost)
		return CreateSessionResult{}, cdperr.New(cdperr.KindWorkerUnavailable, "createSession", err)
	}

	if err := s.reg.CreateSession(ctx, sessionID, tenantID, workerHost, clientID, memstore.Detail{
		BrowserGUID: launch.BrowserID,
		Port:        launch.Port,
	}); err != nil {
		if delErr := s.workers.DeleteBrowser(ctx, workerHost, sessionID); delErr != nil {
			slog.Warn("createSession: compensating browser delete failed", "session_id", sessionID, "error", delErr)
		}
		s.releaseQuietly(ctx, workerHost)
		return CreateSessionResult{}, cdperr.New(cdperr.KindTransient, "createSession", err)
	}

	metrics.SessionsCreatedTotal.Inc()
	return CreateSessionResult{
		SessionID:  sessionID,
		ConnectURL: fmt.Sprintf("ws://%s/session/%s", s.publicHost, sessionID),
	}, nil
}

func (s *SessionService) releaseQuietly(ctx context.Context, workerHost string) {
	if err := s.sched.Release(ctx, workerHost); err != nil {
		slog.Warn("compensating decrement failed", "worker_host", workerHost, "error", err)
	}
}

// ListSessions implements spec.md §4.2's listSessions: relational store
// only, scoped to tenantID, newest first.
func (s *SessionService) ListSessions(ctx context.Context, tenantID string) ([]relstore.Session, error) {
	return s.reg.ListSessions(ctx, tenantID)
}

// CloseSession implements the close protocol of spec.md §4.3. It is
// idempotent: a second call on an already-closed session observes the
// missing routing entry at step 1 and returns nil without side effects.
func (s *SessionService) CloseSession(ctx context.Context, sessionID, reason string) error {
	workerHost, err := s.reg.TakeRoute(ctx, sessionID)
	if err != nil {
		if err == registry.ErrSessionNotFound {
			return nil
		}
		return cdperr.New(cdperr.KindTransient, "closeSession", err)
	}

	if err := s.workers.DeleteBrowser(ctx, workerHost, sessionID); err != nil {
		slog.Warn("closeSession: worker delete failed", "session_id", sessionID, "worker_host", workerHost, "error", err)
	}

	s.releaseQuietly(ctx, workerHost)

	if err := s.reg.FinalizeClose(ctx, sessionID); err != nil {
		slog.Error("closeSession: finalize failed, will be picked up by reaper", "session_id", sessionID, "error", err)
		return cdperr.New(cdperr.KindTransient, "closeSession", err)
	}

	metrics.SessionsClosedTotal.WithLabelValues(reason).Inc()
	return nil
}
