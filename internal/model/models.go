package model

import "time"

// AccountRecord represents one captured account snapshot: the identifiers
// extracted from the target app plus everything needed to put the app's data
// directories back exactly as they were.
type AccountRecord struct {
	ID    string // UUID
	Label string // Human-readable name chosen at backup time

	// Identity. PlayerID is mandatory and unique across records; the
	// others default to the "not present" sentinel, never to "".
	PlayerID      string
	AdvertisingID string
	DeviceToken   string
	AppSetID      string
	SSAID         string // 16 lowercase hex characters when present

	// Filesystem metadata captured at backup time. The target app will not
	// start under wrong ownership, so these are reapplied verbatim on restore.
	BackupDir string // On-device directory holding the copied data
	DataOwner string // e.g. "u0_a217"
	DataGroup string
	CacheMode string // Octal string as reported by stat, e.g. "771"
	PrefsMode string

	// Optional linked-service credentials, stored in plain text.
	ServiceEmail    string
	ServicePassword string

	CreatedAt      time.Time
	LastRestoredAt time.Time // Zero until the record is first restored
	LastRestored   bool      // At most one record carries this marker
}

// Operation is a persisted record of one CLI invocation that mutated state.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string // "running", "success" or "error"
	StartedAt  time.Time
	FinishedAt time.Time // Zero while running
}
