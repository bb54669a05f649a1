package wserver_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cdpfleet/cdpfleet/internal/util/testutil"
	"github.com/cdpfleet/cdpfleet/internal/wconfig"
	"github.com/cdpfleet/cdpfleet/internal/wserver"
)

func TestServer_SelfRegistersAndDeregistersOnShutdown(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &wconfig.Config{
		Addr:           "127.0.0.1:18189",
		RedisURL:       "redis://" + mr.Addr() + "/0",
		WorkerHost:     "127.0.0.1:18189",
		BrowserBin:     "chromium",
		LaunchTimeout:  time.Second,
		ShutdownGrace:  time.Second,
		PortRangeStart: 19500,
		PortRangeEnd:   19600,
	}

	server, err := wserver.NewServer(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ctx) }()

	base := "http://" + cfg.Addr
	testutil.RequireEventually(t, func() bool {
		resp, err := http.Get(base + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, "server should start accepting connections")

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	score, err := rdb.ZScore(context.Background(), "workers_load", cfg.WorkerHost).Result()
	require.NoError(t, err)
	require.Equal(t, float64(0), score)

	cancel()
	select {
	case err := <-serveErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}

	_, err = rdb.ZScore(context.Background(), "workers_load", cfg.WorkerHost).Result()
	require.ErrorIs(t, err, redis.Nil, "worker must be deregistered from the load set on shutdown")
}
