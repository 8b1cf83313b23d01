// Package intercept models the in-process hook that runs inside the target
// app under the agent's runtime. It rewires the vendor app-set identifier
// lookups to serve whatever the restore tool last staged in the
// cross-process cache file, so the app sees the restored account's
// identifiers instead of the device's real ones.
package intercept

import "time"

// Runtime is the hook surface the hosting process exposes inside the
// target app. FindClass resolves a loaded class by name. The real runtime
// is provided by the agent; tests use fakes.
type Runtime interface {
	FindClass(name string) (Class, error)
}

// Class is one resolved class whose methods can be replaced.
type Class interface {
	Hook(method string, h Handler) error
}

// Invocation is one intercepted call. Proceed runs the original
// implementation and is only consulted when the handler passes through.
type Invocation struct {
	Method  string
	Args    []any
	Proceed func() (any, error)
}

// Handler replaces a hooked method.
type Handler func(inv *Invocation) (any, error)

// Logger is the logging surface available inside the hosting process.
// Satisfied by *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}

// Clock supplies the current time. Injected so cache expiry is testable.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
