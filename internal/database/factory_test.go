package database

import (
	"path/filepath"
	"testing"

	"gsbak/internal/config"
)

func TestNewStoreFromConfig(t *testing.T) {
	t.Run("creates and migrates a fresh database", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "gsbak.db")
		store, err := NewStoreFromConfig(config.StorageConfig{DBPath: dbPath})
		if err != nil {
			t.Fatalf("NewStoreFromConfig() error = %v", err)
		}
		defer store.Close()

		// Schema applied: listing must work on the empty database.
		recs, err := store.ListAccounts()
		if err != nil {
			t.Fatalf("ListAccounts() error = %v", err)
		}
		if len(recs) != 0 {
			t.Errorf("len(ListAccounts()) = %d, want 0", len(recs))
		}
	})

	t.Run("reopens an existing database", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "gsbak.db")
		cfg := config.StorageConfig{DBPath: dbPath}

		store, err := NewStoreFromConfig(cfg)
		if err != nil {
			t.Fatalf("NewStoreFromConfig() error = %v", err)
		}
		rec := testRecord("id-1", "Alice", "p1")
		if err := store.CreateAccount(rec); err != nil {
			t.Fatalf("CreateAccount() error = %v", err)
		}
		store.Close()

		reopened, err := NewStoreFromConfig(cfg)
		if err != nil {
			t.Fatalf("NewStoreFromConfig() reopen error = %v", err)
		}
		defer reopened.Close()

		got, err := reopened.GetAccountByID("id-1")
		if err != nil {
			t.Fatalf("GetAccountByID() error = %v", err)
		}
		if got == nil {
			t.Fatal("record lost across reopen")
		}
	})

	t.Run("requires db_path", func(t *testing.T) {
		if _, err := NewStoreFromConfig(config.StorageConfig{}); err == nil {
			t.Fatal("NewStoreFromConfig() expected error for empty db_path, got nil")
		}
	})
}
