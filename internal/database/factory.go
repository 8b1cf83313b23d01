package database

import (
	"errors"
	"fmt"

	"gsbak/internal/config"
	"gsbak/internal/database/migrations"
	"gsbak/internal/gs"
)

// NewStoreFromConfig opens the account store described by the storage
// config and brings its schema up to date. A database that is behind the
// known schema is migrated in place; dirty or ahead states are errors.
func NewStoreFromConfig(cfg config.StorageConfig) (gs.Store, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db_path required for account store")
	}
	return openStore(cfg.DBPath)
}

func openStore(path string) (gs.Store, error) {
	store, err := NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}

	if err := store.ensureSchema(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// ensureSchema checks the migration status and applies pending migrations
// when the database is merely behind.
func (s *SQLiteStore) ensureSchema() error {
	err := migrations.CheckDBMigrationStatus(s.db)
	if err == nil {
		return nil
	}
	if !errors.Is(err, migrations.ErrNeedsMigration) {
		return fmt.Errorf("database schema check: %w", err)
	}
	if err := migrations.MigrateUp(s.db); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}
