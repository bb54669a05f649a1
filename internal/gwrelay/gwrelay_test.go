package gwrelay_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cdpfleet/cdpfleet/internal/gwrelay"
	"github.com/cdpfleet/cdpfleet/internal/registry"
	"github.com/cdpfleet/cdpfleet/internal/registry/memstore"
	"github.com/cdpfleet/cdpfleet/internal/registry/relstore"
)

type noopCloser struct{ called chan string }

func (c *noopCloser) CloseSession(_ context.Context, sessionID, reason string) error {
	if c.called != nil {
		c.called <- reason
	}
	return nil
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mem := memstore.NewFromClient(rdb)

	db, dialect, err := relstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, relstore.Migrate(db, dialect))

	return registry.New(relstore.NewQueries(db, dialect), mem)
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestServeSession_UnknownSessionClosesWith4404(t *testing.T) {
	reg := newTestRegistry(t)
	closer := &noopCloser{}
	handler := gwrelay.New(reg, closer)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeSession(w, r, "never-existed")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv.URL), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	_, _, err = conn.Read(ctx)
	var closeErr websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	require.Equal(t, websocket.StatusCode(4404), closeErr.Code)
}

func TestServeSession_UnreachableWorkerClosesWith1011(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.CreateSession(context.Background(), "sess-1", "tenant-1", "worker-unreachable.invalid:1", "", memstore.Detail{BrowserGUID: "g", Port: 1}))

	closer := &noopCloser{}
	handler := gwrelay.New(reg, closer)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeSession(w, r, "sess-1")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv.URL), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	_, _, err = conn.Read(ctx)
	var closeErr websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	require.Equal(t, websocket.StatusCode(1011), closeErr.Code)
}

func TestServeSession_TunnelEndTriggersClose(t *testing.T) {
	reg := newTestRegistry(t)

	workerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		defer conn.CloseNow()
		_ = conn.Close(websocket.StatusNormalClosure, "done")
	}))
	defer workerSrv.Close()
	workerHost := strings.TrimPrefix(workerSrv.URL, "http://")

	require.NoError(t, reg.CreateSession(context.Background(), "sess-2", "tenant-1", workerHost, "", memstore.Detail{BrowserGUID: "g", Port: 1}))

	closer := &noopCloser{called: make(chan string, 1)}
	handler := gwrelay.New(reg, closer)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeSession(w, r, "sess-2")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(srv.URL), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	select {
	case reason := <-closer.called:
		require.Equal(t, "tunnel", reason)
	case <-time.After(3 * time.Second):
		t.Fatal("closeSession was never called")
	}
}
