package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPickWorker_SelectsLowestLoaded(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.RegisterWorker(ctx, "worker-a"))
	require.NoError(t, s.RegisterWorker(ctx, "worker-b"))

	// Load up worker-a so worker-b is strictly lower.
	picked, err := s.PickWorker(ctx, 0)
	require.NoError(t, err)
	require.Contains(t, []string{"worker-a", "worker-b"}, picked)

	second, err := s.PickWorker(ctx, 0)
	require.NoError(t, err)
	require.NotEqual(t, picked, second, "second pick should go to the still-unloaded worker")
}

func TestPickWorker_NoCapacity_EmptySet(t *testing.T) {
	s := newTestStore(t)
	_, err := s.PickWorker(context.Background(), 0)
	require.ErrorIs(t, err, ErrNoCapacity)
}

func TestPickWorker_RespectsMaxLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.RegisterWorker(ctx, "worker-a"))

	_, err := s.PickWorker(ctx, 1)
	require.NoError(t, err)

	_, err = s.PickWorker(ctx, 1)
	require.ErrorIs(t, err, ErrNoCapacity)
}

func TestRegisterWorker_DoesNotResetExistingLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.RegisterWorker(ctx, "worker-a"))
	_, err := s.PickWorker(ctx, 0)
	require.NoError(t, err)

	require.NoError(t, s.RegisterWorker(ctx, "worker-a"))

	load, err := s.WorkerLoad(ctx, "worker-a")
	require.NoError(t, err)
	require.Equal(t, float64(1), load)
}

func TestDecrementLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.RegisterWorker(ctx, "worker-a"))
	_, err := s.PickWorker(ctx, 0)
	require.NoError(t, err)

	require.NoError(t, s.DecrementLoad(ctx, "worker-a"))

	load, err := s.WorkerLoad(ctx, "worker-a")
	require.NoError(t, err)
	require.Equal(t, float64(0), load)
}

func TestDeregisterWorker_RemovesFromScheduling(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.RegisterWorker(ctx, "worker-a"))
	require.NoError(t, s.DeregisterWorker(ctx, "worker-a"))

	_, err := s.PickWorker(ctx, 0)
	require.ErrorIs(t, err, ErrNoCapacity)
}

func TestWorkerCount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.RegisterWorker(ctx, "worker-a"))
	require.NoError(t, s.RegisterWorker(ctx, "worker-b"))

	count, err := s.WorkerCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}
