// Package memstore is the Redis-backed in-memory coordination store: the
// worker load set, the session routing/detail/activity entries of
// spec.md §3 and §6 ("In-memory store keys"). It is deliberately thin —
// a typed wrapper around github.com/redis/go-redis/v9 rather than a
// generic cache abstraction, grounded on the teacher's own preference for
// a small typed Conn/Manager pair (internal/hub/workermgr.Manager) over a
// generic registry interface.
package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key names, per spec.md §6 "In-memory store keys".
const (
	keyWorkersLoad       = "workers_load"
	keySessionMap        = "session_map"
	keySessionLastActive = "session_last_active"
)

func sessionDetailKey(sessionID string) string {
	return "session:" + sessionID
}

// Store wraps a Redis client configured for the coordination store.
type Store struct {
	rdb *redis.Client
}

// New parses REDIS_URL and opens a client. It does not eagerly connect;
// the first command establishes the connection pool.
func New(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Store{rdb: redis.NewClient(opts)}, nil
}

// NewFromClient wraps an already-constructed client, primarily for tests
// that point at a local/miniredis instance.
func NewFromClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping verifies connectivity, used by the /healthz handlers.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Detail is the (browserGuid, port) pair recorded for a session by the
// worker-side RPC response.
type Detail struct {
	BrowserGUID string
	Port        int
}

// now is overridden in tests that need deterministic activity timestamps.
var now = func() time.Time { return time.Now() }
