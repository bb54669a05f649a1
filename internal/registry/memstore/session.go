package memstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a routing or detail entry does not exist.
var ErrNotFound = errors.New("not found")

// takeRouteScript atomically reads and deletes the routing entry for a
// session, returning the old value (or false if it was already absent)
// in one round trip — mirroring pickWorkerScript's read-check-write
// shape so that two concurrent close attempts for the same session (the
// DELETE endpoint racing the relay's teardown racing the reaper, per
// spec.md §4.3 "safe under concurrent invocation") can never both
// observe the routing entry and both proceed past step 1.
var takeRouteScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], ARGV[1])
if v == false then
	return false
end
redis.call('HDEL', KEYS[1], ARGV[1])
return v
`)

// WriteSession pipelines the routing, detail, and activity entry writes
// of spec.md §4.2 step 5 into a single round trip, so the three entries
// become visible to readers atomically from the client's perspective.
func (s *Store) WriteSession(ctx context.Context, sessionID, workerHost string, detail Detail) error {
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, keySessionMap, sessionID, workerHost)
		pipe.HSet(ctx, sessionDetailKey(sessionID), "browser_guid", detail.BrowserGUID, "port", detail.Port)
		pipe.ZAdd(ctx, keySessionLastActive, redis.Z{Score: float64(now().Unix()), Member: sessionID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("write session entries: %w", err)
	}
	return nil
}

// TakeRoute atomically reads and deletes the routing entry for
// sessionID, returning ErrNotFound if it was already absent — the
// idempotency check of the close protocol's step 1 (spec.md §4.3). Only
// one of any number of concurrent callers for the same session ever
// receives a non-ErrNotFound result.
func (s *Store) TakeRoute(ctx context.Context, sessionID string) (string, error) {
	res, err := takeRouteScript.Run(ctx, s.rdb, []string{keySessionMap}, sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("take route: %w", err)
	}
	workerHost, ok := res.(string)
	if !ok {
		return "", ErrNotFound
	}
	return workerHost, nil
}

// GetRoute reads the routing entry without deleting it, used by the relay
// to resolve which worker to dial.
func (s *Store) GetRoute(ctx context.Context, sessionID string) (string, error) {
	workerHost, err := s.rdb.HGet(ctx, keySessionMap, sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read route: %w", err)
	}
	return workerHost, nil
}

// GetDetail reads the (browserGuid, port) detail entry for a session.
func (s *Store) GetDetail(ctx context.Context, sessionID string) (Detail, error) {
	vals, err := s.rdb.HGetAll(ctx, sessionDetailKey(sessionID)).Result()
	if err != nil {
		return Detail{}, fmt.Errorf("read detail: %w", err)
	}
	if len(vals) == 0 {
		return Detail{}, ErrNotFound
	}
	var port int
	if _, err := fmt.Sscanf(vals["port"], "%d", &port); err != nil {
		return Detail{}, fmt.Errorf("parse detail port: %w", err)
	}
	return Detail{BrowserGUID: vals["browser_guid"], Port: port}, nil
}

// DeleteSessionVolatile pipelines the detail and activity entry deletes
// of the close protocol's step 4 (spec.md §4.3). The routing entry is
// deleted separately by TakeRoute in step 1.
func (s *Store) DeleteSessionVolatile(ctx context.Context, sessionID string) error {
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionDetailKey(sessionID))
		pipe.ZRem(ctx, keySessionLastActive, sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session volatile entries: %w", err)
	}
	return nil
}

// Touch updates the activity entry for sessionID to the current time,
// per the relay's per-frame activity touch (spec.md §4.4).
func (s *Store) Touch(ctx context.Context, sessionID string) error {
	return s.rdb.ZAdd(ctx, keySessionLastActive, redis.Z{Score: float64(now().Unix()), Member: sessionID}).Err()
}

// IdleSince returns all session IDs whose activity score is <= cutoff
// (Unix epoch seconds), for the reaper's idle scan (spec.md §4.5 step 2).
func (s *Store) IdleSince(ctx context.Context, cutoff int64) ([]string, error) {
	return s.rdb.ZRangeByScore(ctx, keySessionLastActive, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff),
	}).Result()
}
