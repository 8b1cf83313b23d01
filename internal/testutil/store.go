package testutil

import (
	"testing"

	"gsbak/internal/database"
	"gsbak/internal/database/migrations"
	"gsbak/internal/gs"
)

// NewTestStore returns a migrated in-memory account store, closed when the
// test finishes.
func NewTestStore(t *testing.T) gs.Store {
	t.Helper()

	db, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("OpenConnection() error = %v", err)
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		t.Fatalf("MigrateUp() error = %v", err)
	}

	store := database.NewSQLiteStoreFromDB(db)
	t.Cleanup(func() { store.Close() })
	return store
}
