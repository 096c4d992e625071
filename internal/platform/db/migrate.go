package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Migrate applies every pending up migration found in files. A database that is
// already current is not an error.
func Migrate(dsn string, files fs.FS, logger *slog.Logger) error {
	m, closeDB, err := newMigrator(dsn, files)
	if err != nil {
		return err
	}
	defer closeDB()

	err = m.Up()
	sourceErr, dbErr := m.Close()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("platform/db: migrate up: %w", err)
	}
	if sourceErr != nil {
		return fmt.Errorf("platform/db: migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("platform/db: migration database: %w", dbErr)
	}

	if logger != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no new migrations to apply")
		} else {
			logger.Info("database migrations applied")
		}
	}
	return nil
}

// MigrateDown rolls back the given number of steps.
func MigrateDown(dsn string, files fs.FS, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("platform/db: steps must be positive")
	}
	m, closeDB, err := newMigrator(dsn, files)
	if err != nil {
		return err
	}
	defer closeDB()
	defer m.Close()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("platform/db: migrate down: %w", err)
	}
	return nil
}

func newMigrator(dsn string, files fs.FS) (*migrate.Migrate, func(), error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("platform/db: open migration db: %w", err)
	}
	closeDB := func() { _ = sqlDB.Close() }
	if err := sqlDB.Ping(); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("platform/db: ping migration db: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("platform/db: migration driver: %w", err)
	}
	source, err := iofs.New(files, ".")
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("platform/db: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("platform/db: migrate instance: %w", err)
	}
	return m, closeDB, nil
}
