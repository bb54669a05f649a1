package relstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateSession is returned by InsertSession when session_id already
// exists, which should only happen on a UUIDv7 collision or a caller retry
// racing its own earlier insert.
var ErrDuplicateSession = errors.New("session already exists")

// Session is the authoritative record of one remote-browser lease,
// per spec.md §3 ("Session"). ClientID is a caller-supplied, optional
// free-text correlation label (distinct from TenantID, which comes from
// the auth provider) — grounded on the original Python gateway's
// session_manager.create_session(client_id=...), used there to tag
// parallel test runs for tracing.
type Session struct {
	SessionID    string
	TenantID     string
	WorkerID     string
	ClientID     *string
	CreatedAt    time.Time
	LastActiveAt time.Time
	EndedAt      *time.Time
	Status       string
}

// Queries is a small hand-written query layer over *sql.DB, in the spirit
// of the teacher's generated sqlc Queries type but written by hand since
// no code-generation tool runs as part of this build.
type Queries struct {
	db      *sql.DB
	dialect Dialect
}

// NewQueries wraps db for dialect-aware query execution.
func NewQueries(db *sql.DB, dialect Dialect) *Queries {
	return &Queries{db: db, dialect: dialect}
}

// rebind rewrites a query written with "?" placeholders into the
// dialect's native placeholder syntax ($1, $2, ... for Postgres).
func (q *Queries) rebind(query string) string {
	if q.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// InsertSession inserts a new active session row (spec.md §4.2 step 4).
// clientID is an optional caller-supplied trace label (empty string means
// absent, stored as SQL NULL) grounded on the original gateway's
// create_session(client_id=...).
func (q *Queries) InsertSession(ctx context.Context, sessionID, tenantID, workerID, clientID string) error {
	_, err := q.db.ExecContext(ctx, q.rebind(`
		INSERT INTO browser_sessions (session_id, tenant_id, worker_id, client_id, status)
		VALUES (?, ?, ?, ?, 'active')
	`), sessionID, tenantID, workerID, nullIfEmpty(clientID))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSession
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLite's driver surfaces its own distinct error text, so this
// only fires against the production backend).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// MarkClosed performs the close protocol's step 5: status='closed',
// ended_at=now() where session_id=?. It is safe to call on an
// already-closed row (idempotent no-op by WHERE clause).
func (q *Queries) MarkClosed(ctx context.Context, sessionID string) error {
	_, err := q.db.ExecContext(ctx, q.rebind(`
		UPDATE browser_sessions
		SET status = 'closed', ended_at = CURRENT_TIMESTAMP
		WHERE session_id = ? AND status = 'active'
	`), sessionID)
	if err != nil {
		return fmt.Errorf("mark session closed: %w", err)
	}
	return nil
}

// GetSession reads a single session row by ID.
func (q *Queries) GetSession(ctx context.Context, sessionID string) (Session, error) {
	row := q.db.QueryRowContext(ctx, q.rebind(`
		SELECT session_id, tenant_id, worker_id, client_id, created_at, last_active_at, ended_at, status
		FROM browser_sessions WHERE session_id = ?
	`), sessionID)
	return scanSession(row)
}

// ListByTenant returns all sessions for a tenant ordered by createdAt
// descending (spec.md §4.2 "listSessions").
func (q *Queries) ListByTenant(ctx context.Context, tenantID string) ([]Session, error) {
	rows, err := q.db.QueryContext(ctx, q.rebind(`
		SELECT session_id, tenant_id, worker_id, client_id, created_at, last_active_at, ended_at, status
		FROM browser_sessions WHERE tenant_id = ? ORDER BY created_at DESC
	`), tenantID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var s Session
	var clientID sql.NullString
	var endedAt sql.NullTime
	if err := row.Scan(&s.SessionID, &s.TenantID, &s.WorkerID, &clientID, &s.CreatedAt, &s.LastActiveAt, &endedAt, &s.Status); err != nil {
		if err == sql.ErrNoRows {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	if clientID.Valid {
		s.ClientID = &clientID.String
	}
	if endedAt.Valid {
		s.EndedAt = &endedAt.Time
	}
	return s, nil
}

// StaleActiveBeyond returns session IDs with status='active' whose
// created_at is older than absoluteTimeout, for the reaper's absolute
// timeout scan (spec.md §4.5 step 3).
func (q *Queries) StaleActiveBeyond(ctx context.Context, absoluteTimeout time.Duration) ([]string, error) {
	var cutoffExpr string
	switch q.dialect {
	case DialectPostgres:
		cutoffExpr = fmt.Sprintf("now() - interval '%d seconds'", int(absoluteTimeout.Seconds()))
	default: // sqlite
		cutoffExpr = fmt.Sprintf("strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ', 'now', '-%d seconds')", int(absoluteTimeout.Seconds()))
	}

	rows, err := q.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT session_id FROM browser_sessions
		WHERE status = 'active' AND created_at < %s
	`, cutoffExpr))
	if err != nil {
		return nil, fmt.Errorf("scan stale active sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountActive returns the number of rows with status='active', used to
// populate the ActiveSessions gauge.
func (q *Queries) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM browser_sessions WHERE status = 'active'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return n, nil
}
