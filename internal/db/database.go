// Package db wraps the GORM database connection used by the knowledge
// store. Postgres in production; sqlite for local development and tests.
package db

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"appforge/pkg/models"
)

// Database wraps the GORM database instance.
type Database struct {
	DB *gorm.DB
}

// New opens a database connection. A non-empty postgresDSN selects
// postgres; otherwise sqlitePath is used (":memory:" is valid for
// tests).
func New(postgresDSN, sqlitePath string) (*Database, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var (
		db  *gorm.DB
		err error
	)
	if postgresDSN != "" {
		db, err = gorm.Open(postgres.Open(postgresDSN), gormConfig)
	} else {
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if postgresDSN != "" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
		}
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	database := &Database{DB: db}
	if err := database.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return database, nil
}

// Migrate applies the GORM auto-migrations for all persisted models.
// Versioned SQL migrations (cmd/migrate) remain the source of truth for
// production postgres; auto-migration keeps sqlite development setups
// in sync without a separate step.
func (d *Database) Migrate() error {
	return d.DB.AutoMigrate(
		&models.Project{},
		&models.KnowledgeEntry{},
	)
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
