package db

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const migrationsTable = "schema_migrations"

// Migrate applies every pending up migration in fsys. The driver holds a
// Postgres advisory lock while it runs, so instances starting together
// apply each version once.
func (db *DB) Migrate(fsys fs.FS) (err error) {
	// golang-migrate speaks database/sql; it gets its own connection so
	// closing the driver leaves the pool alone.
	sqlDB := stdlib.OpenDB(*db.pool.Config().ConnConfig)

	driver, err := pgxmigrate.WithInstance(sqlDB, &pgxmigrate.Config{
		MigrationsTable: migrationsTable,
	})
	if err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("initialize migration driver: %w", err)
	}

	source, err := iofs.New(fsys, ".")
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("load migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		_ = source.Close()
		_ = driver.Close()
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err == nil {
			err = errors.Join(srcErr, dbErr)
		}
	}()

	version, dirty, verr := m.Version()
	switch {
	case errors.Is(verr, migrate.ErrNilVersion):
		db.logger.Info("no migrations applied yet")
	case verr != nil:
		return fmt.Errorf("read migration version: %w", verr)
	case dirty:
		// A dirty version means a previous run failed halfway; refuse to
		// guess which statements landed.
		return fmt.Errorf("migration %d is dirty, fix the schema and force the version", version)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	if version, _, err := m.Version(); err == nil {
		db.logger.Info("database schema up to date", zap.Uint("version", version))
	}
	return nil
}
