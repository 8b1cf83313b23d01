// Package app wires configuration into a ready-to-use service and tracks
// one CLI invocation from construction to Close.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"gsbak/internal/android"
	"gsbak/internal/config"
	"gsbak/internal/database"
	"gsbak/internal/encryption"
	"gsbak/internal/gs"
	"gsbak/internal/intercept"
	"gsbak/internal/model"
	"gsbak/internal/shell"
	"gsbak/internal/spool"
	"gsbak/internal/ssaid"
	"gsbak/internal/vault"
)

// GSBakApp is the application layer between the CLI and the Service.
// It constructs all dependencies from config, exposes the high-level
// operations, and manages the store lifecycle on Close.
type GSBakApp struct {
	cfg     *config.Config
	store   gs.Store
	device  *android.Manager
	vault   gs.Vault
	service *gs.Service
	op      *CLIOperation
	logFile *os.File
}

// NewGSBakApp creates a fully wired GSBakApp from the given config.
// operation and parameters identify the CLI command being run, for the
// history log. The caller must call Close when done.
func NewGSBakApp(cfg *config.Config, operation, parameters string) (*GSBakApp, error) {
	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.Log.Path, opID, cfg.Log.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	exec, err := shell.NewExecutorFromConfig(cfg.Device)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating executor: %w", err)
	}
	device := android.NewManager(exec)
	log := &slogAdapter{l: logger}

	store, err := database.NewStoreFromConfig(cfg.Storage)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening account store: %w", err)
	}

	sp, err := spool.NewSpoolFromConfig(cfg.Storage)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating spool: %w", err)
	}

	v, err := vault.NewVaultFromConfig(context.Background(), cfg.Vault)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	svc := gs.NewService(gs.ServiceConfig{
		Store:       store,
		Device:      device,
		IDs:         ssaid.NewManager(device, log, cfg.Device.User),
		Exec:        exec,
		Spool:       sp,
		Vault:       v,
		Encryptor:   enc,
		Logger:      log,
		BackupRoot:  cfg.Storage.BackupRoot,
		User:        cfg.Device.User,
		SyncExclude: cfg.Sync.Exclude,
		SyncWorkers: cfg.Sync.Workers,
	})

	return &GSBakApp{
		cfg:     cfg,
		store:   store,
		device:  device,
		vault:   v,
		service: svc,
		op:      NewCLIOperation(operation, parameters),
		logFile: logFile,
	}, nil
}

// persistOperation saves the operation to the database, giving it an
// auto-increment ID. Only mutating commands call this.
func (a *GSBakApp) persistOperation() error {
	if a.op.Persisted() {
		return nil
	}
	dbOp, err := a.store.CreateOperation(a.op.Operation, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = dbOp.ID
	return nil
}

// MarkFailed records that the tracked operation ended in error.
func (a *GSBakApp) MarkFailed() {
	a.op.Status = "error"
}

// Backup captures the current account state under the given label.
func (a *GSBakApp) Backup(ctx context.Context, label string, force bool) (*gs.BackupResult, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	return a.service.Backup(ctx, label, force)
}

// Restore puts a record's captured state back onto the device.
func (a *GSBakApp) Restore(ctx context.Context, idOrLabel string) (*model.AccountRecord, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	return a.service.Restore(ctx, idOrLabel)
}

// List returns all account records.
func (a *GSBakApp) List() ([]*model.AccountRecord, error) {
	return a.service.List()
}

// Show resolves one record by ID or label.
func (a *GSBakApp) Show(idOrLabel string) (*model.AccountRecord, error) {
	return a.service.Get(idOrLabel)
}

// Edit updates a record's label and credentials.
func (a *GSBakApp) Edit(idOrLabel string, fields gs.EditFields) (*model.AccountRecord, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	return a.service.Edit(idOrLabel, fields)
}

// Delete removes a record and, unless keepFiles is set, its backup files.
func (a *GSBakApp) Delete(ctx context.Context, idOrLabel string, keepFiles bool) error {
	if err := a.persistOperation(); err != nil {
		return err
	}
	return a.service.Delete(ctx, idOrLabel, keepFiles)
}

// Export pulls a record's backup tree into a host directory.
func (a *GSBakApp) Export(ctx context.Context, idOrLabel, destDir string) (*model.AccountRecord, error) {
	return a.service.Export(ctx, idOrLabel, destDir, a.cfg.Sync.Exclude)
}

// Sync stages and uploads record archives to the vault.
func (a *GSBakApp) Sync(ctx context.Context, ids []string) (*gs.SyncResult, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	return a.service.Sync(ctx, ids)
}

// Fetch downloads and extracts an archive from the vault.
func (a *GSBakApp) Fetch(ctx context.Context, name, outDir, passphrase string) error {
	return a.service.Fetch(ctx, name, outDir, passphrase)
}

// CurrentSSAID reads the Android ID stored for the target package.
func (a *GSBakApp) CurrentSSAID(ctx context.Context) (string, error) {
	return a.service.CurrentSSAID(ctx)
}

// SetSSAID writes the Android ID for the target package.
func (a *GSBakApp) SetSSAID(ctx context.Context, value string) error {
	if err := a.persistOperation(); err != nil {
		return err
	}
	return a.service.SetSSAID(ctx, value)
}

// AdCacheShow reads the staged interceptor entry from the device.
func (a *GSBakApp) AdCacheShow(ctx context.Context) (intercept.Entry, error) {
	data, err := a.device.ReadFile(ctx, android.AdCachePath)
	if err != nil {
		return intercept.Entry{}, fmt.Errorf("reading interceptor cache: %w", err)
	}
	return intercept.ParseEntry(string(data)), nil
}

// AdCacheWrite stages a record's identifiers for the interceptor.
func (a *GSBakApp) AdCacheWrite(ctx context.Context, idOrLabel string) error {
	if err := a.persistOperation(); err != nil {
		return err
	}
	rec, err := a.service.Get(idOrLabel)
	if err != nil {
		return err
	}
	return a.service.WriteAdCache(ctx, rec)
}

// AdCacheInvalidate removes the staged interceptor entry.
func (a *GSBakApp) AdCacheInvalidate(ctx context.Context) error {
	if err := a.persistOperation(); err != nil {
		return err
	}
	return a.service.InvalidateAdCache(ctx)
}

// Status probes the device and reports the tool's working state.
func (a *GSBakApp) Status(ctx context.Context) (*gs.StatusReport, error) {
	return a.service.Status(ctx)
}

// History returns the most recent persisted operations, newest first.
func (a *GSBakApp) History(limit int) ([]*model.Operation, error) {
	return a.service.History(limit)
}

// Close finalizes the tracked operation and releases all resources.
func (a *GSBakApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if err := a.store.FinishOperation(a.op.ID, a.op.Status); err != nil {
			firstErr = fmt.Errorf("finishing operation: %w", err)
		}
	}

	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing account store: %w", err)
	}

	// The ssh vault holds a live connection; the others have no Close.
	if closer, ok := a.vault.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing vault: %w", err)
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

// Init creates the config file, data directories and, for age encryption,
// the key pair. It refuses to overwrite an existing config.
func Init(configPath string, cfg *config.Config, passphrase string) error {
	if err := config.Init(configPath, cfg); err != nil {
		return err
	}

	// Opening the store creates and migrates the database.
	store, err := database.NewStoreFromConfig(cfg.Storage)
	if err != nil {
		return fmt.Errorf("initializing account store: %w", err)
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("closing account store: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if enc != nil && !enc.IsConfigured() {
		if err := enc.Setup(passphrase); err != nil {
			return fmt.Errorf("generating encryption keys: %w", err)
		}
	}
	return nil
}
