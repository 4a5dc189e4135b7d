package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Options tune the connection pool.
type Options struct {
	MaxOpenConns  int
	BusyTimeoutMS int
}

// DefaultOptions matches the config defaults.
func DefaultOptions() Options {
	return Options{MaxOpenConns: 4, BusyTimeoutMS: 5000}
}

// DSN builds the go-sqlite3 connection string. Write transactions take the
// RESERVED lock at BEGIN (_txlock=immediate) so concurrent writers queue on
// the busy timeout instead of failing on lock upgrade.
func DSN(path string, opts Options) string {
	if opts.BusyTimeoutMS <= 0 {
		opts.BusyTimeoutMS = DefaultOptions().BusyTimeoutMS
	}
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=%d&_journal_mode=WAL&_txlock=immediate",
		path, opts.BusyTimeoutMS)
}

// Open opens sqlite with sensible defaults.
func Open(path string, opts Options) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", DSN(path, opts))
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = DefaultOptions().MaxOpenConns
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetConnMaxLifetime(0)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return db, nil
}

// DBTX is satisfied by both *sql.DB and *sql.Tx so repositories can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn in a transaction. Any error or panic rolls back.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Savepoint runs fn inside a named savepoint of tx. When fn fails, its writes
// are rolled back and the rest of tx is left intact.
func Savepoint(ctx context.Context, tx DBTX, name string, fn func() error) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to %s: %w", name, rbErr))
		}
		if _, relErr := tx.ExecContext(ctx, "RELEASE "+name); relErr != nil {
			return errors.Join(err, fmt.Errorf("release %s: %w", name, relErr))
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE "+name); err != nil {
		return fmt.Errorf("release %s: %w", name, err)
	}
	return nil
}

// Now returns UTC time truncated to seconds (consistent with SQLite default).
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
