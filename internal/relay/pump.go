// Package relay implements the bidirectional frame pump shared by both
// hops of the two-hop CDP WebSocket relay (spec.md §4.4 gateway<->worker
// and §4.7 worker<->browser), grounded on the Accept/Read/Write/Close
// idiom of ws_watch_events.go, generalized from a single-direction
// stream to two independent pump goroutines.
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/coder/websocket"
)

// Pump relays frames between two already-connected WebSocket conns in
// both directions until either side closes or ctx is cancelled. It
// returns the error that ended the pump, or nil on a clean close by
// either side.
func Pump(ctx context.Context, a, b *websocket.Conn, onFrame func(direction string)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- pumpOneWay(ctx, a, b, "a_to_b", onFrame) }()
	go func() { errCh <- pumpOneWay(ctx, b, a, "b_to_a", onFrame) }()

	first := <-errCh
	cancel()
	second := <-errCh

	if isCleanClose(first) {
		first = nil
	}
	if isCleanClose(second) {
		second = nil
	}
	if first != nil {
		return first
	}
	return second
}

func pumpOneWay(ctx context.Context, src, dst *websocket.Conn, direction string, onFrame func(string)) error {
	for {
		typ, data, err := src.Read(ctx)
		if err != nil {
			return fmt.Errorf("read %s: %w", direction, err)
		}
		if onFrame != nil {
			onFrame(direction)
		}
		if err := dst.Write(ctx, typ, data); err != nil {
			return fmt.Errorf("write %s: %w", direction, err)
		}
	}
}

// isCleanClose reports whether err represents a normal/expected
// WebSocket termination rather than a genuine transport failure.
func isCleanClose(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var closeErr websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return true
		}
	}
	return false
}
