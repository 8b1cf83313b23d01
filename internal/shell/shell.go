// Package shell runs commands on the rooted device with superuser
// privilege. It provides the single Execute primitive everything above it
// uses for system-owned paths, with implementations for a device reached
// over adb and for running directly on the device.
package shell

import (
	"context"
	"fmt"
	"strings"
)

// Executor runs one shell command as superuser and returns its captured
// stdout. Executors are blocking and handle one command at a time; a
// non-zero exit status is reported as a *CommandError. Cancelling ctx is
// the only way to abandon a stuck command.
type Executor interface {
	Execute(ctx context.Context, command string) (stdout string, err error)
}

// CommandError describes a shell command that exited non-zero.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command failed with exit code %d: %s", e.ExitCode, e.Command)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Quote wraps s in POSIX single quotes, escaping any embedded single
// quotes, so it passes through `sh -c` as one word.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// normalizeOutput strips the carriage returns adb inserts and the trailing
// newline of command output.
func normalizeOutput(out []byte) string {
	s := strings.ReplaceAll(string(out), "\r\n", "\n")
	return strings.TrimSuffix(s, "\n")
}
