// Package dbtest opens throwaway migrated databases for tests.
package dbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/jaskledger/internal/database"
)

// Open creates a migrated database in a temp dir and closes it on cleanup.
// It returns the handle and the file path.
func Open(t testing.TB) (*sql.DB, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.RunEmbeddedMigrations(dbPath))

	db, err := database.Open(dbPath, database.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, dbPath
}
