// Package wrelay is the worker-side leg of the two-hop CDP relay,
// spec.md §4.7: symmetric to gwrelay but terminating at the local
// browser's CDP endpoint, resolved through wbrowser's table instead of
// the shared registry.
package wrelay

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/cdpfleet/cdpfleet/internal/cdperr"
	"github.com/cdpfleet/cdpfleet/internal/metrics"
	"github.com/cdpfleet/cdpfleet/internal/relay"
	"github.com/cdpfleet/cdpfleet/internal/wbrowser"
)

// Handler serves the worker's WS /proxy/{id} endpoint.
type Handler struct {
	browsers *wbrowser.Manager
}

// New constructs a Handler.
func New(browsers *wbrowser.Manager) *Handler {
	return &Handler{browsers: browsers}
}

// ServeProxy implements the relay contract for a single session ID.
func (h *Handler) ServeProxy(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx := r.Context()

	proc, ok := h.browsers.Lookup(sessionID)
	if !ok {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close(websocket.StatusCode(cdperr.WSCloseCode(cdperr.KindUnknownSession)), "unknown session")
		return
	}

	clientConn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("wrelay: accept failed", "session_id", sessionID, "error", err)
		return
	}
	defer clientConn.CloseNow()

	metrics.WSConnectionsActive.WithLabelValues("gateway").Inc()
	defer metrics.WSConnectionsActive.WithLabelValues("gateway").Dec()

	browserURL := fmt.Sprintf("ws://127.0.0.1:%d/devtools/browser/%s", proc.Port, proc.BrowserGUID)
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	browserConn, _, err := websocket.Dial(dialCtx, browserURL, nil)
	cancel()
	if err != nil {
		_ = clientConn.Close(websocket.StatusCode(cdperr.WSCloseCode(cdperr.KindTargetMissing)), "browser unreachable")
		return
	}
	defer browserConn.CloseNow()

	metrics.WSConnectionsActive.WithLabelValues("browser").Inc()
	defer metrics.WSConnectionsActive.WithLabelValues("browser").Dec()

	pumpErr := relay.Pump(ctx, clientConn, browserConn, func(direction string) {
		metrics.WSMessagesTotal.WithLabelValues(direction).Inc()
	})
	if pumpErr != nil {
		slog.Debug("wrelay: pump ended", "session_id", sessionID, "error", pumpErr)
	}

	// Safety net against orphaned processes (spec.md §4.7): the tunnel
	// ending, for any reason, also tears down the local browser.
	h.browsers.CloseBrowser(sessionID)
}
