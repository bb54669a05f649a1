package relstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cdpfleet/cdpfleet/internal/registry/relstore"
)

func TestOpen_InMemorySQLite(t *testing.T) {
	db, dialect, err := relstore.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.Equal(t, relstore.DialectSQLite, dialect)
	require.NoError(t, db.Ping())

	var fkEnabled int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled))
	require.Equal(t, 1, fkEnabled)
}

func TestOpen_SQLitePrefix(t *testing.T) {
	_, dialect, err := relstore.Open("sqlite::memory:")
	require.NoError(t, err)
	require.Equal(t, relstore.DialectSQLite, dialect)
}

func TestMigrate_CreatesTableAndIsIdempotent(t *testing.T) {
	db, dialect, err := relstore.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, relstore.Migrate(db, dialect))

	var count int64
	require.NoError(t, db.QueryRow("SELECT count(*) FROM browser_sessions").Scan(&count))
	require.Equal(t, int64(0), count)

	// Running migrations again must be a no-op, not an error.
	require.NoError(t, relstore.Migrate(db, dialect))
}

func newTestQueries(t *testing.T) *relstore.Queries {
	t.Helper()
	db, dialect, err := relstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, relstore.Migrate(db, dialect))
	return relstore.NewQueries(db, dialect)
}

func TestQueries_InsertGetAndList(t *testing.T) {
	q := newTestQueries(t)
	ctx := t.Context()

	require.NoError(t, q.InsertSession(ctx, "sess-1", "tenant-a", "worker-1:9000", ""))
	require.NoError(t, q.InsertSession(ctx, "sess-2", "tenant-a", "worker-2:9000", ""))
	require.NoError(t, q.InsertSession(ctx, "sess-3", "tenant-b", "worker-1:9000", ""))

	got, err := q.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "tenant-a", got.TenantID)
	require.Equal(t, "worker-1:9000", got.WorkerID)
	require.Equal(t, "active", got.Status)
	require.Nil(t, got.EndedAt)

	list, err := q.ListByTenant(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, list, 2)

	active, err := q.CountActive(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), active)
}

func TestQueries_InsertGetSession_ClientIDOptional(t *testing.T) {
	q := newTestQueries(t)
	ctx := t.Context()

	require.NoError(t, q.InsertSession(ctx, "sess-with-client", "tenant-a", "worker-1:9000", "pytest-run-1"))
	require.NoError(t, q.InsertSession(ctx, "sess-without-client", "tenant-a", "worker-1:9000", ""))

	withClient, err := q.GetSession(ctx, "sess-with-client")
	require.NoError(t, err)
	require.NotNil(t, withClient.ClientID)
	require.Equal(t, "pytest-run-1", *withClient.ClientID)

	withoutClient, err := q.GetSession(ctx, "sess-without-client")
	require.NoError(t, err)
	require.Nil(t, withoutClient.ClientID)
}

func TestQueries_InsertSession_DuplicateIDIsRejected(t *testing.T) {
	q := newTestQueries(t)
	ctx := t.Context()

	require.NoError(t, q.InsertSession(ctx, "sess-dup", "tenant-a", "worker-1:9000", ""))
	err := q.InsertSession(ctx, "sess-dup", "tenant-a", "worker-1:9000", "")
	require.Error(t, err)
}

func TestQueries_MarkClosed_IsIdempotent(t *testing.T) {
	q := newTestQueries(t)
	ctx := t.Context()

	require.NoError(t, q.InsertSession(ctx, "sess-1", "tenant-a", "worker-1:9000", ""))
	require.NoError(t, q.MarkClosed(ctx, "sess-1"))

	got, err := q.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "closed", got.Status)
	require.NotNil(t, got.EndedAt)

	active, err := q.CountActive(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), active)

	// A second call against an already-closed row must not error.
	require.NoError(t, q.MarkClosed(ctx, "sess-1"))
}

func TestQueries_StaleActiveBeyond_ExcludesFreshSessions(t *testing.T) {
	q := newTestQueries(t)
	ctx := t.Context()

	require.NoError(t, q.InsertSession(ctx, "sess-fresh", "tenant-a", "worker-1:9000", ""))

	// A session inserted moments ago is never stale against a 1-hour
	// absolute timeout.
	stale, err := q.StaleActiveBeyond(ctx, time.Hour)
	require.NoError(t, err)
	require.NotContains(t, stale, "sess-fresh")

	// Against a zero-duration cutoff every active session is stale.
	stale, err = q.StaleActiveBeyond(ctx, 0)
	require.NoError(t, err)
	require.Contains(t, stale, "sess-fresh")
}
