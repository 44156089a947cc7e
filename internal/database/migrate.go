// Package database runs versioned SQL migrations against the postgres
// knowledge store. SQLite deployments skip this and rely on the ORM's
// auto-migration instead.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"appforge/internal/logging"
)

// Status is the current migration state.
type Status struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	Applied bool `json:"applied"`
}

// Runner applies migrations from a directory to a postgres database.
type Runner struct {
	migrate *migrate.Migrate
	db      *sql.DB
	log     *zap.Logger
}

// NewRunner opens the database and prepares the migration source.
func NewRunner(databaseURL, migrationsPath string) (*Runner, error) {
	if databaseURL == "" {
		return nil, errors.New("database url is required")
	}
	if migrationsPath == "" {
		migrationsPath = "migrations"
	}
	absPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		return nil, fmt.Errorf("resolve migrations path: %w", err)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+absPath, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	return &Runner{migrate: m, db: db, log: logging.L().Named("migrate")}, nil
}

// Up applies all pending migrations.
func (r *Runner) Up() error {
	if err := r.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.log.Info("database is up to date")
			return nil
		}
		return fmt.Errorf("migrate up: %w", err)
	}
	version, dirty, _ := r.migrate.Version()
	r.log.Info("migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// Rollback reverts the most recent migration.
func (r *Runner) Rollback() error {
	if err := r.migrate.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.log.Info("nothing to roll back")
			return nil
		}
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Force overrides the recorded version to recover a dirty state.
func (r *Runner) Force(version int) error {
	if err := r.migrate.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	r.log.Warn("migration version forced", zap.Int("version", version))
	return nil
}

// Status reports the current version.
func (r *Runner) Status() (Status, error) {
	version, dirty, err := r.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return Status{}, nil
		}
		return Status{}, err
	}
	return Status{Version: version, Dirty: dirty, Applied: version > 0}, nil
}

// Close releases the source and the database connection.
func (r *Runner) Close() error {
	srcErr, dbErr := r.migrate.Close()
	if srcErr != nil {
		return fmt.Errorf("close source: %w", srcErr)
	}
	return dbErr
}
