package shell

import (
	"context"
	"fmt"
	"strings"

	"gsbak/internal/config"
)

// NewExecutorFromConfig creates an Executor based on the device config type.
func NewExecutorFromConfig(cfg config.DeviceConfig) (Executor, error) {
	switch cfg.Type {
	case "adb", "":
		return NewADBExecutor(cfg.ADBPath, cfg.Serial, cfg.SuPath), nil
	case "su":
		return NewSuExecutor(cfg.SuPath), nil
	default:
		return nil, fmt.Errorf("unknown device type: %s", cfg.Type)
	}
}

// Probe verifies that the executor actually yields a root shell by asking
// for the effective uid. Every mutating operation depends on this.
func Probe(ctx context.Context, e Executor) error {
	out, err := e.Execute(ctx, "id -u")
	if err != nil {
		return fmt.Errorf("probing for root shell: %w", err)
	}
	if strings.TrimSpace(out) != "0" {
		return fmt.Errorf("shell is not root (uid %s)", strings.TrimSpace(out))
	}
	return nil
}
