package gs

import "context"

// Executor runs a shell command with superuser privilege and returns its
// captured stdout. It is the single primitive through which every
// system-owned path on the device is touched; nothing in this module opens
// device files directly.
//
// Executors are blocking and handle one command at a time. A non-zero exit
// status is reported as a *shell.CommandError. Cancelling ctx is the only
// way to abandon a stuck command.
type Executor interface {
	Execute(ctx context.Context, command string) (stdout string, err error)
}
