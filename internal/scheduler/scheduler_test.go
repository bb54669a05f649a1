package scheduler

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cdpfleet/cdpfleet/internal/cdperr"
	"github.com/cdpfleet/cdpfleet/internal/registry/memstore"
)

func newTestScheduler(t *testing.T, maxLoad int) *Scheduler {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(memstore.NewFromClient(rdb), maxLoad)
}

func TestPickWorker_NoWorkersRegistered(t *testing.T) {
	s := newTestScheduler(t, 0)
	_, err := s.PickWorker(context.Background())
	require.Equal(t, cdperr.KindNoCapacity, cdperr.KindOf(err))
}

func TestPickWorker_ThenRelease_AllowsRepick(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler(t, 1)
	require.NoError(t, s.RegisterWorker(ctx, "worker-a"))

	picked, err := s.PickWorker(ctx)
	require.NoError(t, err)
	require.Equal(t, "worker-a", picked)

	_, err = s.PickWorker(ctx)
	require.Equal(t, cdperr.KindNoCapacity, cdperr.KindOf(err))

	require.NoError(t, s.Release(ctx, "worker-a"))

	picked, err = s.PickWorker(ctx)
	require.NoError(t, err)
	require.Equal(t, "worker-a", picked)
}

func TestDeregisterWorker_ExcludesFromScheduling(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler(t, 0)
	require.NoError(t, s.RegisterWorker(ctx, "worker-a"))
	require.NoError(t, s.DeregisterWorker(ctx, "worker-a"))

	_, err := s.PickWorker(ctx)
	require.Equal(t, cdperr.KindNoCapacity, cdperr.KindOf(err))
}
