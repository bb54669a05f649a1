// Package gwrelay is the gateway-side leg of the two-hop CDP relay,
// spec.md §4.4. It accepts a client WebSocket, resolves the session's
// worker via the registry, dials the worker's proxy endpoint, and pumps
// frames in both directions through internal/relay, grounded on
// ws_watch_events.go's Accept/resolve/pump/close shape.
package gwrelay

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/cdpfleet/cdpfleet/internal/cdperr"
	"github.com/cdpfleet/cdpfleet/internal/metrics"
	"github.com/cdpfleet/cdpfleet/internal/registry"
	"github.com/cdpfleet/cdpfleet/internal/relay"
)

// state names the relay instance's position in spec.md §4.4's state
// machine: Accepting -> Resolving -> Connecting -> Relaying -> Closing -> Closed.
type state int

const (
	stateAccepting state = iota
	stateResolving
	stateConnecting
	stateRelaying
	stateClosing
	stateClosed
)

// touchThrottle is the activity-update coalescing interval of spec.md
// §4.4 ("at most one update per second per session").
const touchThrottle = time.Second

// Closer performs the close protocol; satisfied by *gwservice.SessionService.
type Closer interface {
	CloseSession(ctx context.Context, sessionID, reason string) error
}

// Handler serves the gateway's WS /session/{id} endpoint.
type Handler struct {
	reg    *registry.Registry
	closer Closer
}

// New constructs a Handler.
func New(reg *registry.Registry, closer Closer) *Handler {
	return &Handler{reg: reg, closer: closer}
}

// ServeSession implements the relay contract for a single session ID,
// called by the mux route for /session/{id}.
func (h *Handler) ServeSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	rl := &relayInstance{
		state:     stateAccepting,
		reg:       h.reg,
		closer:    h.closer,
		sessionID: sessionID,
	}
	rl.serve(w, r)
}

// relayInstance is one client<->worker tunnel. The closeOnce guard
// ensures closeSession is invoked at most once regardless of which
// pump (or external caller) observes termination first, per spec.md
// §4.4 "Teardown".
type relayInstance struct {
	mu        sync.Mutex
	state     state
	reg       *registry.Registry
	closer    Closer
	sessionID string

	closeOnce sync.Once
}

func (rl *relayInstance) setState(s state) {
	rl.mu.Lock()
	rl.state = s
	rl.mu.Unlock()
}

func (rl *relayInstance) serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientConn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("gwrelay: accept failed", "session_id", rl.sessionID, "error", err)
		return
	}
	defer clientConn.CloseNow()

	metrics.WSConnectionsActive.WithLabelValues("client").Inc()
	defer metrics.WSConnectionsActive.WithLabelValues("client").Dec()

	rl.setState(stateResolving)
	workerHost, err := rl.reg.GetRoute(ctx, rl.sessionID)
	if err != nil {
		rl.closeClient(ctx, clientConn, cdperr.WSCloseCode(cdperr.KindUnknownSession), "unknown session")
		return
	}

	detail, err := rl.reg.GetDetail(ctx, rl.sessionID)
	if err != nil {
		rl.closeClient(ctx, clientConn, cdperr.WSCloseCode(cdperr.KindTargetMissing), "target missing")
		return
	}
	_ = detail // detail is resolved worker-side; the gateway only needs workerHost to dial the proxy.

	rl.setState(stateConnecting)
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	workerURL := fmt.Sprintf("ws://%s/proxy/%s", workerHost, rl.sessionID)
	workerConn, _, err := websocket.Dial(dialCtx, workerURL, nil)
	cancel()
	if err != nil {
		rl.closeClient(ctx, clientConn, cdperr.WSCloseCode(cdperr.KindTargetMissing), "worker unreachable")
		return
	}
	defer workerConn.CloseNow()

	metrics.WSConnectionsActive.WithLabelValues("worker").Inc()
	defer metrics.WSConnectionsActive.WithLabelValues("worker").Dec()

	rl.setState(stateRelaying)

	lastTouch := make(chan struct{}, 1)
	go rl.touchLoop(context.Background(), lastTouch)

	pumpErr := relay.Pump(ctx, clientConn, workerConn, func(direction string) {
		metrics.WSMessagesTotal.WithLabelValues(direction).Inc()
		select {
		case lastTouch <- struct{}{}:
		default:
		}
	})
	close(lastTouch)

	rl.setState(stateClosing)
	if pumpErr != nil {
		slog.Debug("gwrelay: pump ended", "session_id", rl.sessionID, "error", pumpErr)
	}

	rl.triggerClose("tunnel")
	rl.setState(stateClosed)
}

// touchLoop coalesces per-frame activity signals to at most one
// registry write per touchThrottle interval, per spec.md §4.4's
// optional refinement.
func (rl *relayInstance) touchLoop(ctx context.Context, signal <-chan struct{}) {
	ticker := time.NewTicker(touchThrottle)
	defer ticker.Stop()

	pending := false
	for {
		select {
		case _, ok := <-signal:
			if !ok {
				return
			}
			pending = true
		case <-ticker.C:
			if pending {
				pending = false
				if err := rl.reg.Touch(ctx, rl.sessionID); err != nil {
					slog.Debug("gwrelay: touch failed", "session_id", rl.sessionID, "error", err)
				}
			}
		}
	}
}

func (rl *relayInstance) closeClient(ctx context.Context, conn *websocket.Conn, code int, reason string) {
	rl.setState(stateClosing)
	_ = conn.Close(websocket.StatusCode(code), reason)
	rl.setState(stateClosed)
}

// triggerClose invokes the close protocol exactly once for this relay
// instance.
func (rl *relayInstance) triggerClose(reason string) {
	rl.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rl.closer.CloseSession(ctx, rl.sessionID, reason); err != nil {
			slog.Warn("gwrelay: closeSession failed", "session_id", rl.sessionID, "error", err)
		}
	})
}
