// Package relstore is the authoritative relational store for
// browser_sessions rows (spec.md §3, §6 "Relational table
// browser_sessions"). It opens either Postgres (via pgx's database/sql
// driver) for production or SQLite (via modernc.org/sqlite) for local
// development and tests, behind the same *sql.DB-based API, mirroring
// the teacher's internal/hub/db.Open / Migrate split.
package relstore

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "modernc.org/sqlite"              // registers the "sqlite" database/sql driver
)

// Dialect identifies which SQL dialect a DSN resolved to, since goose
// migrations, placeholder syntax, and the stale-session cutoff
// expression differ between them.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// Open opens the relational store for the given DATABASE_URL-style DSN.
// A "sqlite:" prefix (including the bare value ":memory:") selects the
// SQLite driver for local/dev/test use; anything else is treated as a
// Postgres DSN. The pool is bounded per spec.md §5 ("5 base + 10
// overflow"): SetMaxOpenConns(15) as the hard cap, SetMaxIdleConns(5) so
// 5 connections are kept warm as the "base".
func Open(dsn string) (*sql.DB, Dialect, error) {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "sqlite:") {
		path := strings.TrimPrefix(dsn, "sqlite:")
		if path == "" {
			path = ":memory:"
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, "", fmt.Errorf("open sqlite: %w", err)
		}
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil && path != ":memory:" {
			_ = db.Close()
			return nil, "", fmt.Errorf("set wal mode: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
			_ = db.Close()
			return nil, "", fmt.Errorf("enable foreign keys: %w", err)
		}
		// SQLite only supports a single writer at a time.
		db.SetMaxOpenConns(1)
		return db, DialectSQLite, nil
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(15) // 5 base + 10 overflow
	db.SetMaxIdleConns(5)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping postgres: %w", err)
	}
	return db, DialectPostgres, nil
}
