package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gsbak/internal/gs"
	"gsbak/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements the gs.Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite store.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Wait for locks instead of failing when another gsbak process holds
	// the file briefly.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

const accountColumns = `id, label, player_id, advertising_id, device_token, app_set_id, ssaid,
	backup_dir, data_owner, data_group, cache_mode, prefs_mode,
	service_email, service_password, created_at, last_restored_at, last_restored`

// scanAccount reads one account row into a model struct.
func scanAccount(row interface{ Scan(...any) error }) (*model.AccountRecord, error) {
	var rec model.AccountRecord
	var lastRestoredAt sql.NullTime
	err := row.Scan(
		&rec.ID, &rec.Label, &rec.PlayerID, &rec.AdvertisingID, &rec.DeviceToken,
		&rec.AppSetID, &rec.SSAID, &rec.BackupDir, &rec.DataOwner, &rec.DataGroup,
		&rec.CacheMode, &rec.PrefsMode, &rec.ServiceEmail, &rec.ServicePassword,
		&rec.CreatedAt, &lastRestoredAt, &rec.LastRestored,
	)
	if err != nil {
		return nil, err
	}
	if lastRestoredAt.Valid {
		rec.LastRestoredAt = lastRestoredAt.Time
	}
	return &rec, nil
}

// CreateAccount persists a new account record.
func (s *SQLiteStore) CreateAccount(rec *model.AccountRecord) error {
	if err := s.insertAccount(s.db, rec); err != nil {
		return fmt.Errorf("creating account record: %w", err)
	}
	return nil
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) insertAccount(e execer, rec *model.AccountRecord) error {
	var lastRestoredAt sql.NullTime
	if !rec.LastRestoredAt.IsZero() {
		lastRestoredAt = sql.NullTime{Time: rec.LastRestoredAt, Valid: true}
	}
	_, err := e.Exec(`INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Label, rec.PlayerID, rec.AdvertisingID, rec.DeviceToken,
		rec.AppSetID, rec.SSAID, rec.BackupDir, rec.DataOwner, rec.DataGroup,
		rec.CacheMode, rec.PrefsMode, rec.ServiceEmail, rec.ServicePassword,
		rec.CreatedAt, lastRestoredAt, rec.LastRestored,
	)
	return err
}

// GetAccountByID returns the record with the given ID, or nil if absent.
func (s *SQLiteStore) GetAccountByID(id string) (*model.AccountRecord, error) {
	rec, err := scanAccount(s.db.QueryRow(
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding account by id: %w", err)
	}
	return rec, nil
}

// GetAccountByLabel returns the record with the given label, or nil if absent.
func (s *SQLiteStore) GetAccountByLabel(label string) (*model.AccountRecord, error) {
	rec, err := scanAccount(s.db.QueryRow(
		`SELECT `+accountColumns+` FROM accounts WHERE label = ? ORDER BY created_at LIMIT 1`, label))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding account by label: %w", err)
	}
	return rec, nil
}

// FindAccountByPlayerID returns the record holding the given primary
// identifier, or nil if absent.
func (s *SQLiteStore) FindAccountByPlayerID(playerID string) (*model.AccountRecord, error) {
	rec, err := scanAccount(s.db.QueryRow(
		`SELECT `+accountColumns+` FROM accounts WHERE player_id = ?`, playerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding account by player id: %w", err)
	}
	return rec, nil
}

// ListAccounts returns all records ordered by creation time.
func (s *SQLiteStore) ListAccounts() ([]*model.AccountRecord, error) {
	rows, err := s.db.Query(`SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var result []*model.AccountRecord
	for rows.Next() {
		rec, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account row: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return result, nil
}

// UpdateAccount rewrites the mutable fields of an existing record.
func (s *SQLiteStore) UpdateAccount(rec *model.AccountRecord) error {
	res, err := s.db.Exec(`UPDATE accounts SET
		label = ?, advertising_id = ?, device_token = ?, app_set_id = ?, ssaid = ?,
		service_email = ?, service_password = ?
		WHERE id = ?`,
		rec.Label, rec.AdvertisingID, rec.DeviceToken, rec.AppSetID, rec.SSAID,
		rec.ServiceEmail, rec.ServicePassword, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating account record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating account record: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("updating account record: no record with id %s", rec.ID)
	}
	return nil
}

// MarkRestored clears the last-restored marker on every record and sets it
// on the given record along with the restore timestamp, in a single
// transaction.
func (s *SQLiteStore) MarkRestored(id string, at time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE accounts SET last_restored = 0`); err != nil {
		return fmt.Errorf("clearing restored markers: %w", err)
	}

	res, err := tx.Exec(
		`UPDATE accounts SET last_restored = 1, last_restored_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("setting restored marker: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting restored marker: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("setting restored marker: no record with id %s", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ReplaceAccount deletes the record with oldID and inserts rec, in a single
// transaction.
func (s *SQLiteStore) ReplaceAccount(oldID string, rec *model.AccountRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM accounts WHERE id = ?`, oldID); err != nil {
		return fmt.Errorf("deleting replaced record: %w", err)
	}
	if err := s.insertAccount(tx, rec); err != nil {
		return fmt.Errorf("inserting replacement record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// DeleteAccount removes a record.
func (s *SQLiteStore) DeleteAccount(id string) error {
	if _, err := s.db.Exec(`DELETE FROM accounts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting account record: %w", err)
	}
	return nil
}

// CreateOperation records the start of a mutating CLI operation.
func (s *SQLiteStore) CreateOperation(operation, parameters string) (*model.Operation, error) {
	startedAt := time.Now()
	res, err := s.db.Exec(
		`INSERT INTO operations (operation, parameters, status, started_at)
		VALUES (?, ?, 'running', ?)`,
		operation, parameters, startedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return &model.Operation{
		ID:         id,
		Operation:  operation,
		Parameters: parameters,
		Status:     "running",
		StartedAt:  startedAt,
	}, nil
}

// FinishOperation stamps the operation's final status and finish time.
func (s *SQLiteStore) FinishOperation(id int64, status string) error {
	_, err := s.db.Exec(
		`UPDATE operations SET status = ?, finished_at = ? WHERE id = ?`,
		status, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

// ListOperations returns the most recent operations, newest first.
func (s *SQLiteStore) ListOperations(limit int) ([]*model.Operation, error) {
	rows, err := s.db.Query(
		`SELECT id, operation, parameters, status, started_at, finished_at
		FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var result []*model.Operation
	for rows.Next() {
		var op model.Operation
		var finishedAt sql.NullTime
		if err := rows.Scan(&op.ID, &op.Operation, &op.Parameters, &op.Status,
			&op.StartedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning operation row: %w", err)
		}
		if finishedAt.Valid {
			op.FinishedAt = finishedAt.Time
		}
		result = append(result, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return result, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteStore implements gs.Store interface
var _ gs.Store = (*SQLiteStore)(nil)
