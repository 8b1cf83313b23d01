package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// gsbakHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<opID>\t<message>\t<key=value ...>
//
// Every record goes to w (the log file). Warnings and errors are mirrored
// to stderr so a failed best-effort step is never silent; verbose mirrors
// everything.
type gsbakHandler struct {
	w       io.Writer
	stderr  io.Writer
	opID    string
	attrs   []slog.Attr
	minimum slog.Level
	verbose bool
}

func (h *gsbakHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.minimum }

func (h *gsbakHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")

	var line bytes.Buffer
	fmt.Fprintf(&line, "%s\t%s\t%s\t%s", ts, r.Level.String(), h.opID, r.Message)

	// Pre-set attrs, then per-record attrs.
	for _, a := range h.attrs {
		fmt.Fprintf(&line, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&line, "\t%s=%v", a.Key, a.Value)
		return true
	})
	line.WriteByte('\n')

	if _, err := h.w.Write(line.Bytes()); err != nil {
		return err
	}
	if h.stderr != nil && (h.verbose || r.Level >= slog.LevelWarn) {
		h.stderr.Write(line.Bytes())
	}
	return nil
}

func (h *gsbakHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &gsbakHandler{
		w:       h.w,
		stderr:  h.stderr,
		opID:    h.opID,
		attrs:   append(append([]slog.Attr{}, h.attrs...), attrs...),
		minimum: h.minimum,
		verbose: h.verbose,
	}
}

func (h *gsbakHandler) WithGroup(string) slog.Handler { return h }

// newLogger creates a structured logger appending to logPath. Warnings and
// errors are always mirrored to stderr; verbose lowers the threshold to
// debug and mirrors every record. It returns the slog.Logger, the open log
// file (for cleanup), and any error.
func newLogger(logPath, opID string, verbose bool) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	minimum := slog.LevelInfo
	if verbose {
		minimum = slog.LevelDebug
	}
	handler := &gsbakHandler{
		w:       f,
		stderr:  os.Stderr,
		opID:    opID,
		minimum: minimum,
		verbose: verbose,
	}
	return slog.New(handler), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy the gs.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
