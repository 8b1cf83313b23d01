package gs

import (
	"context"

	"gsbak/internal/model"
)

// AndroidIDStore mutates and queries the OS-level per-package Android ID
// store on the device.
type AndroidIDStore interface {
	// Set writes the 16-hex identifier for a package and verifies the write.
	Set(ctx context.Context, pkg, value string) error

	// Current returns the identifier currently stored for a package, or the
	// "not present" sentinel if the package has no entry.
	Current(ctx context.Context, pkg string) (string, error)

	// Inspect reports the store's on-device state for diagnostics.
	Inspect(ctx context.Context) (*StoreInfo, error)
}

// StoreInfo describes how the identifier store presents itself on the
// current build.
type StoreInfo struct {
	Encoding          string // "text", "binary" or "absent"
	ConvertersPresent bool   // both format converters installed
	SQLStorePresent   bool   // settings database exists
}

// Service is the orchestration layer that sequences device, identifier-store
// and record-keeping operations for the CLI. Operations are not safe for
// concurrent invocation; the caller serializes backup/restore requests.
type Service struct {
	store     Store
	device    Device
	ids       AndroidIDStore
	exec      Executor
	spool     Spool
	vault     Vault
	encryptor Encryptor
	logger    Logger
	clock     Clock
	idgen     IDGenerator

	backupRoot  string
	user        int
	syncExclude []string
	syncWorkers int
}

// ServiceConfig carries the collaborators and settings for a Service.
// Spool, Vault and Encryptor may be nil when the sync feature is unused.
type ServiceConfig struct {
	Store     Store
	Device    Device
	IDs       AndroidIDStore
	Exec      Executor
	Spool     Spool
	Vault     Vault
	Encryptor Encryptor
	Logger    Logger
	Clock     Clock
	IDGen     IDGenerator

	BackupRoot  string   // On-device directory holding per-record backups
	User        int      // Android user whose identifier store is managed
	SyncExclude []string // Patterns excluded from sync archives
	SyncWorkers int      // Concurrent vault uploads; defaults to 1
}

// NewService creates a Service. Logger, Clock and IDGen default to
// NopLogger, RealClock and UUIDGenerator when nil.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = NewNopLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if cfg.IDGen == nil {
		cfg.IDGen = UUIDGenerator{}
	}
	if cfg.SyncWorkers < 1 {
		cfg.SyncWorkers = 1
	}
	return &Service{
		store:       cfg.Store,
		device:      cfg.Device,
		ids:         cfg.IDs,
		exec:        cfg.Exec,
		spool:       cfg.Spool,
		vault:       cfg.Vault,
		encryptor:   cfg.Encryptor,
		logger:      cfg.Logger,
		clock:       cfg.Clock,
		idgen:       cfg.IDGen,
		backupRoot:  cfg.BackupRoot,
		user:        cfg.User,
		syncExclude: cfg.SyncExclude,
		syncWorkers: cfg.SyncWorkers,
	}
}

// Lookup resolves an account record by ID first, then by label.
// Returns ErrNotFound if neither matches.
func (s *Service) Lookup(idOrLabel string) (*model.AccountRecord, error) {
	rec, err := s.store.GetAccountByID(idOrLabel)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec, err = s.store.GetAccountByLabel(idOrLabel)
		if err != nil {
			return nil, err
		}
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}
