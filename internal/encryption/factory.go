package encryption

import (
	"fmt"

	"gsbak/internal/config"
	"gsbak/internal/gs"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration type.
// Type "none" disables archive encryption and returns a nil Encryptor.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (gs.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
