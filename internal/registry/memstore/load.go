package memstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrNoCapacity is returned by PickWorker when every worker is at or
// above maxLoad, or the load set is empty.
var ErrNoCapacity = errors.New("no worker available")

// pickWorkerScript atomically reads the lowest-scored member of the load
// set, checks it against an optional cap, and increments it — all in one
// round trip so no other gateway replica can observe and act on the same
// minimum between the read and the increment. This is the single
// store-side script spec.md §4.1/§9 requires in place of a
// read-then-write implementation.
var pickWorkerScript = redis.NewScript(`
local top = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if #top == 0 then
	return false
end
local member = top[1]
local score = tonumber(top[2])
if ARGV[1] ~= '' and score >= tonumber(ARGV[1]) then
	return false
end
redis.call('ZINCRBY', KEYS[1], 1, member)
return member
`)

// RegisterWorker adds workerHost to the load set with score 0, but only
// if it is not already present — an existing score must never be reset
// by a worker reconnecting (spec.md §4.6 "Self-registration").
func (s *Store) RegisterWorker(ctx context.Context, workerHost string) error {
	return s.rdb.ZAddNX(ctx, keyWorkersLoad, redis.Z{Score: 0, Member: workerHost}).Err()
}

// DeregisterWorker removes workerHost from the load set.
func (s *Store) DeregisterWorker(ctx context.Context, workerHost string) error {
	return s.rdb.ZRem(ctx, keyWorkersLoad, workerHost).Err()
}

// PickWorker atomically selects the lowest-scored worker, increments its
// score, and returns it. If maxLoad > 0 and the minimum score is already
// >= maxLoad, it returns ErrNoCapacity without mutating anything. A
// maxLoad of 0 means uncapped.
func (s *Store) PickWorker(ctx context.Context, maxLoad int) (string, error) {
	cap := ""
	if maxLoad > 0 {
		cap = fmt.Sprintf("%d", maxLoad)
	}
	res, err := pickWorkerScript.Run(ctx, s.rdb, []string{keyWorkersLoad}, cap).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoCapacity
	}
	if err != nil {
		return "", fmt.Errorf("pick worker: %w", err)
	}
	member, ok := res.(string)
	if !ok || member == "" {
		return "", ErrNoCapacity
	}
	return member, nil
}

// DecrementLoad is the compensating decrement of spec.md §4.1, called on
// every failure path after a successful PickWorker, and from the close
// protocol's teardown step. It must only ever be called once per
// successful increment — callers are responsible for that invariant;
// this method performs a plain decrement with no clamp, matching the
// accepted implementation note in spec.md §4.1.
func (s *Store) DecrementLoad(ctx context.Context, workerHost string) error {
	return s.rdb.ZIncrBy(ctx, keyWorkersLoad, -1, workerHost).Err()
}

// WorkerLoad returns the current score for a worker, or an error if the
// worker is not present in the load set.
func (s *Store) WorkerLoad(ctx context.Context, workerHost string) (float64, error) {
	return s.rdb.ZScore(ctx, keyWorkersLoad, workerHost).Result()
}

// WorkerCount returns the number of workers currently in the load set,
// used to populate the ActiveWorkers gauge.
func (s *Store) WorkerCount(ctx context.Context) (int64, error) {
	return s.rdb.ZCard(ctx, keyWorkersLoad).Result()
}
