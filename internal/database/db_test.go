package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunMigrationsFromDisk(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	migrations, err := filepath.Abs("migrations")
	require.NoError(t, err)
	require.NoError(t, RunMigrations(dbPath, migrations))
	// second run is a no-op
	require.NoError(t, RunMigrations(dbPath, migrations))

	db, err := Open(dbPath, DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, table := range []string{"accounts", "import_batches", "transactions", "journal_entries", "transaction_matches"} {
		var n int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n), table)
		require.Zero(t, n)
	}
}

func TestEmbeddedMigrationsAndVersion(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	version, dirty, err := SchemaVersion(dbPath)
	require.NoError(t, err)
	require.Zero(t, version)
	require.False(t, dirty)

	require.NoError(t, RunEmbeddedMigrations(dbPath))
	version, dirty, err = SchemaVersion(dbPath)
	require.NoError(t, err)
	require.Equal(t, uint(1), version)
	require.False(t, dirty)
}

func TestWithTxRollsBack(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, RunEmbeddedMigrations(dbPath))
	db, err := Open(dbPath, DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	insert := func(tx *sql.Tx, id string) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO import_batches(id, source, imported_at) VALUES(?, 'test', ?)`, id, Now())
		return err
	}

	boom := errors.New("boom")
	err = WithTx(ctx, db, func(tx *sql.Tx) error {
		require.NoError(t, insert(tx, "a"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.Panics(t, func() {
		_ = WithTx(ctx, db, func(tx *sql.Tx) error {
			require.NoError(t, insert(tx, "b"))
			panic("bad")
		})
	})

	require.NoError(t, WithTx(ctx, db, func(tx *sql.Tx) error { return insert(tx, "c") }))

	var ids []string
	rows, err := db.QueryContext(ctx, `SELECT id FROM import_batches ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []string{"c"}, ids)
}

func TestForeignKeysEnforced(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, RunEmbeddedMigrations(dbPath))
	db, err := Open(dbPath, DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx, `INSERT INTO journal_entries(id, transaction_id, entry_index, account_id, amount, created_at)
		VALUES('e', 'missing', 0, 'missing', '1', ?)`, Now())
	require.Error(t, err)
}

func TestSavepointRollsBackOnlyItsWrites(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, RunEmbeddedMigrations(dbPath))
	db, err := Open(dbPath, DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	insert := func(tx *sql.Tx, id string) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO import_batches(id, source, imported_at) VALUES(?, 'test', ?)`, id, Now())
		return err
	}

	boom := errors.New("boom")
	require.NoError(t, WithTx(ctx, db, func(tx *sql.Tx) error {
		require.NoError(t, insert(tx, "a"))
		err := Savepoint(ctx, tx, "row", func() error {
			require.NoError(t, insert(tx, "b"))
			return boom
		})
		require.ErrorIs(t, err, boom)
		return Savepoint(ctx, tx, "row", func() error { return insert(tx, "c") })
	}))

	var ids []string
	rows, err := db.QueryContext(ctx, `SELECT id FROM import_batches ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []string{"a", "c"}, ids)
}
