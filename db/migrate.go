package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies versioned database migrations using golang-migrate over
// the embedded migrations directory. Idempotent and safe to run multiple times.
//
// Migration files follow the naming convention:
//
//	000001_description.up.sql   - applies the migration
//	000001_description.down.sql - reverts the migration
func RunMigrations(dbx *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := postgres.WithInstance(dbx, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	version, dirty, vErr := m.Version()
	if vErr != nil && !errors.Is(vErr, migrate.ErrNilVersion) {
		slog.Warn("could not read current migration version", slog.Any("err", vErr), slog.String("component", "db_migrate"))
	}
	if dirty {
		return fmt.Errorf("database is in dirty migration state at version %d; manual intervention required", version)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Debug("migrations already up to date", slog.Uint64("version", uint64(version)), slog.String("component", "db_migrate"))
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	newVersion, _, _ := m.Version()
	slog.Info("migrations applied", slog.Uint64("version", uint64(newVersion)), slog.String("component", "db_migrate"))
	return nil
}
