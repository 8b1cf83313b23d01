package gs

import "errors"

var (
	// ErrNotFound is returned when no account record matches the given
	// ID or label.
	ErrNotFound = errors.New("account record not found")

	// ErrDamagedBackup is returned when a record's backup directory is
	// missing one of its expected subdirectories. Restore refuses to touch
	// the device in this state.
	ErrDamagedBackup = errors.New("damaged backup: expected subdirectories missing")
)
