package shell

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// SuExecutor runs commands through a local su binary, for when the tool
// runs on the rooted device itself (e.g. inside a terminal app).
type SuExecutor struct {
	suPath string

	run func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)
}

var _ Executor = (*SuExecutor)(nil)

// NewSuExecutor creates an executor using the given su binary, defaulting
// to "su" on PATH.
func NewSuExecutor(suPath string) *SuExecutor {
	if suPath == "" {
		suPath = "su"
	}
	return &SuExecutor{suPath: suPath, run: runCommand}
}

// Execute runs `su -c <command>` locally and returns the command's stdout.
func (e *SuExecutor) Execute(ctx context.Context, command string) (string, error) {
	stdout, stderr, err := e.run(ctx, e.suPath, "-c", command)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &CommandError{
				Command:  command,
				ExitCode: exitErr.ExitCode(),
				Stderr:   normalizeOutput(stderr),
			}
		}
		return "", fmt.Errorf("running su: %w", err)
	}
	return normalizeOutput(stdout), nil
}
