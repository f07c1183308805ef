package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"planforge/migrations"
)

// OpenSQLite opens (creating if needed) the database at path and applies the
// embedded sqlite migrations. ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, path string, logger zerolog.Logger) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		dsn = "file:" + path
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	m, err := NewMigrator(db, migrations.FS, DialectSQLite, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := m.Apply(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteRunner is the database/sql counterpart of SQLRunner: queries carry
// the same marker line and are logged under it.
type SQLiteRunner struct {
	db     *sql.DB
	q      sqlQuerier
	logger zerolog.Logger
}

func NewSQLiteRunner(db *sql.DB, logger zerolog.Logger) *SQLiteRunner {
	return &SQLiteRunner{db: db, q: db, logger: logger}
}

func (r *SQLiteRunner) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	marker, trimmed, err := ExtractMarker(query)
	if err != nil {
		return nil, err
	}
	r.logger.Debug().Str("sql", marker).Msg("exec")
	res, err := r.q.ExecContext(ctx, trimmed, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("sql", marker).Msg("exec failed")
	}
	return res, err
}

func (r *SQLiteRunner) QueryRow(ctx context.Context, query string, args ...any) RowScanner {
	marker, trimmed, err := ExtractMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	r.logger.Debug().Str("sql", marker).Msg("query_row")
	return loggingRow{row: r.q.QueryRowContext(ctx, trimmed, args...), logger: r.logger, marker: marker}
}

// InTx runs fn against a runner bound to one transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
func (r *SQLiteRunner) InTx(ctx context.Context, fn func(tx *SQLiteRunner) error) error {
	if r.db == nil {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(&SQLiteRunner{q: tx, logger: r.logger}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// IsSQLiteUniqueViolation reports whether err is a UNIQUE constraint failure.
func IsSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
