package relstore

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// Migrate runs all pending migrations for the given dialect. The core
// never performs schema migration mechanics beyond table-create-if-missing
// per spec.md §1 ("Non-goals") — this single initial migration is that
// create-if-missing step, not a managed multi-version schema.
func Migrate(db *sql.DB, dialect Dialect) error {
	switch dialect {
	case DialectPostgres:
		goose.SetBaseFS(postgresMigrations)
		if err := goose.SetDialect("postgres"); err != nil {
			return fmt.Errorf("set dialect: %w", err)
		}
		if err := goose.Up(db, "migrations/postgres"); err != nil {
			return fmt.Errorf("run postgres migrations: %w", err)
		}
	case DialectSQLite:
		goose.SetBaseFS(sqliteMigrations)
		if err := goose.SetDialect("sqlite3"); err != nil {
			return fmt.Errorf("set dialect: %w", err)
		}
		if err := goose.Up(db, "migrations/sqlite"); err != nil {
			return fmt.Errorf("run sqlite migrations: %w", err)
		}
	default:
		return fmt.Errorf("unknown dialect: %q", dialect)
	}
	return nil
}
