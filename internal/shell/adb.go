package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ADBExecutor runs commands on a device reachable over adb, elevating each
// one through `su -c`. The adb binary must be on PATH or configured
// explicitly; the device must expose a root-capable su.
type ADBExecutor struct {
	adbPath string
	serial  string
	suPath  string

	// run is swapped out in tests so no real adb is needed.
	run func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)
}

var _ Executor = (*ADBExecutor)(nil)

// NewADBExecutor creates an executor for the device with the given serial.
// An empty serial targets the only connected device; empty binary paths
// fall back to "adb" and "su".
func NewADBExecutor(adbPath, serial, suPath string) *ADBExecutor {
	if adbPath == "" {
		adbPath = "adb"
	}
	if suPath == "" {
		suPath = "su"
	}
	return &ADBExecutor{
		adbPath: adbPath,
		serial:  serial,
		suPath:  suPath,
		run:     runCommand,
	}
}

// Execute runs `adb [-s serial] shell su -c '<command>'` and returns the
// command's stdout with adb's line endings normalized.
func (e *ADBExecutor) Execute(ctx context.Context, command string) (string, error) {
	args := e.buildArgs(command)

	stdout, stderr, err := e.run(ctx, e.adbPath, args...)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &CommandError{
				Command:  command,
				ExitCode: exitErr.ExitCode(),
				Stderr:   normalizeOutput(stderr),
			}
		}
		return "", fmt.Errorf("running adb: %w", err)
	}

	return normalizeOutput(stdout), nil
}

// buildArgs assembles the adb argument list for one elevated command.
func (e *ADBExecutor) buildArgs(command string) []string {
	args := []string{}
	if e.serial != "" {
		args = append(args, "-s", e.serial)
	}
	// The command is single-quoted once for the device-side shell that su
	// spawns; adb shell passes it through verbatim.
	args = append(args, "shell", e.suPath, "-c", Quote(command))
	return args
}

// runCommand is the real process launcher behind the executors.
func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
