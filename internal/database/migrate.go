package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

func migrateURL(dbPath string) string {
	return fmt.Sprintf("sqlite3://%s?_foreign_keys=on", dbPath)
}

// RunMigrations applies all up migrations found at path.
func RunMigrations(dbPath, migrationsPath string) error {
	m, err := migrate.New(
		fmt.Sprintf("file://%s", migrationsPath),
		migrateURL(dbPath),
	)
	if err != nil {
		return err
	}
	return up(m)
}

// RunEmbeddedMigrations applies the migrations compiled into the binary.
func RunEmbeddedMigrations(dbPath string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dbPath))
	if err != nil {
		return err
	}
	return up(m)
}

// SchemaVersion reports the applied migration version of the database.
func SchemaVersion(dbPath string) (version uint, dirty bool, err error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return 0, false, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dbPath))
	if err != nil {
		return 0, false, err
	}
	defer m.Close()
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func up(m *migrate.Migrate) error {
	defer m.Close()
	err := m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
