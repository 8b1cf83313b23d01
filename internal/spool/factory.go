package spool

import (
	"fmt"

	"gsbak/internal/config"
	"gsbak/internal/gs"
)

// NewSpoolFromConfig creates a Spool based on the storage config type.
func NewSpoolFromConfig(cfg config.StorageConfig) (gs.Spool, error) {
	maxSize := cfg.SpoolMaxSize
	if maxSize <= 0 {
		maxSize = config.DefaultSpoolMaxSize
	}

	switch cfg.SpoolType {
	case "memory":
		return NewMemorySpool(maxSize), nil
	case "filesystem", "":
		if cfg.SpoolDir == "" {
			return nil, fmt.Errorf("filesystem spool requires spool_dir to be set")
		}
		return NewFileSystemSpool(cfg.SpoolDir, maxSize)
	default:
		return nil, fmt.Errorf("unknown spool type: %s", cfg.SpoolType)
	}
}
