package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog/log"
)

// withMigrate runs fn against the migrations in path on a single connection
// taken from db. The connection goes back to the pool afterwards; db stays
// open.
func withMigrate(db *sql.DB, path string, fn func(m *migrate.Migrate) error) error {
	ctx := context.Background()
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("migration connection: %w", err)
	}

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		conn.Close()
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+path, "postgres", driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("load migrations from %s: %w", path, err)
	}
	defer m.Close()

	return fn(m)
}

// RunMigrations applies every pending migration.
func RunMigrations(db *sql.DB, path string) error {
	return withMigrate(db, path, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
		version, _, _ := m.Version()
		log.Info().Uint("version", version).Msg("database schema up to date")
		return nil
	})
}

// RollbackMigration reverts the last applied migration.
func RollbackMigration(db *sql.DB, path string) error {
	return withMigrate(db, path, func(m *migrate.Migrate) error {
		if err := m.Steps(-1); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		return nil
	})
}

// GetMigrationVersion reports the applied version, 0 when none.
func GetMigrationVersion(db *sql.DB, path string) (version uint, dirty bool, err error) {
	err = withMigrate(db, path, func(m *migrate.Migrate) error {
		var verr error
		version, dirty, verr = m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			version, dirty = 0, false
			return nil
		}
		if verr != nil {
			return fmt.Errorf("migration version: %w", verr)
		}
		return nil
	})
	return version, dirty, err
}
