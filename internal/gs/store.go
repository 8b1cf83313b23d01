package gs

import (
	"time"

	"gsbak/internal/model"
)

// Store provides an interface for account-record and operation persistence.
// All methods are implemented with appropriate transaction handling.
type Store interface {
	// Account records

	// CreateAccount persists a new account record.
	// Fails if a record with the same PlayerID already exists.
	CreateAccount(rec *model.AccountRecord) error

	// GetAccountByID returns the record with the given ID, or nil if absent.
	GetAccountByID(id string) (*model.AccountRecord, error)

	// GetAccountByLabel returns the record with the given label, or nil if absent.
	GetAccountByLabel(label string) (*model.AccountRecord, error)

	// FindAccountByPlayerID returns the record holding the given primary
	// identifier, or nil if absent. Used for the duplicate check at backup time.
	FindAccountByPlayerID(playerID string) (*model.AccountRecord, error)

	// ListAccounts returns all records ordered by creation time.
	ListAccounts() ([]*model.AccountRecord, error)

	// UpdateAccount rewrites the mutable fields of an existing record
	// (label, credentials, identifiers).
	UpdateAccount(rec *model.AccountRecord) error

	// MarkRestored clears the last-restored marker on every record and sets
	// it on the given record along with the restore timestamp, in a single
	// transaction. At most one record carries the marker at any time.
	MarkRestored(id string, at time.Time) error

	// ReplaceAccount deletes the record with oldID and inserts rec, in a
	// single transaction. Used when a backup overwrites an existing record
	// for the same primary identifier.
	ReplaceAccount(oldID string, rec *model.AccountRecord) error

	// DeleteAccount removes a record.
	DeleteAccount(id string) error

	// Operations

	// CreateOperation records the start of a mutating CLI operation,
	// assigning it an auto-increment ID.
	CreateOperation(operation, parameters string) (*model.Operation, error)

	// FinishOperation stamps the operation's final status and finish time.
	FinishOperation(id int64, status string) error

	// ListOperations returns the most recent operations, newest first.
	ListOperations(limit int) ([]*model.Operation, error)

	// Close closes the underlying connection.
	Close() error
}
