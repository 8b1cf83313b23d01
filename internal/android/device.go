package android

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"gsbak/internal/shell"
)

// Executor runs one elevated shell command and returns its stdout. Satisfied
// by the implementations in internal/shell.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// FileStat holds the ownership and permission bits of a device path as
// reported by stat.
type FileStat struct {
	Owner string // e.g. "u0_a217"
	Group string
	Mode  string // octal string, e.g. "771"
}

// writeChunkSize is the raw payload per append command when pushing file
// content. Encoded chunks stay well under the kernel argument size limit.
const writeChunkSize = 32 * 1024

// untarSpoolPath is where pushed archives land before extraction.
const untarSpoolPath = "/data/local/tmp/gsbak_push.tar.gz"

// Manager implements file and process operations on the rooted device in
// terms of the elevated Executor. All paths are device paths; the local
// filesystem is never touched. File content crosses the shell boundary
// base64-encoded, so binary data survives the transport.
type Manager struct {
	exec Executor
}

// NewManager creates a device manager on top of an elevated executor.
func NewManager(exec Executor) *Manager {
	return &Manager{exec: exec}
}

// ForceStop stops every process of the given app package.
func (m *Manager) ForceStop(ctx context.Context, pkg string) error {
	if _, err := m.exec.Execute(ctx, "am force-stop "+shell.Quote(pkg)); err != nil {
		return fmt.Errorf("force-stopping %s: %w", pkg, err)
	}
	return nil
}

// Exists reports whether a path exists.
func (m *Manager) Exists(ctx context.Context, path string) (bool, error) {
	out, err := m.exec.Execute(ctx, fmt.Sprintf("[ -e %s ] && echo 1 || echo 0", shell.Quote(path)))
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", path, err)
	}
	return strings.TrimSpace(out) == "1", nil
}

// IsDir reports whether a path exists and is a directory.
func (m *Manager) IsDir(ctx context.Context, path string) (bool, error) {
	out, err := m.exec.Execute(ctx, fmt.Sprintf("[ -d %s ] && echo 1 || echo 0", shell.Quote(path)))
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", path, err)
	}
	return strings.TrimSpace(out) == "1", nil
}

// List returns the entry names of a directory.
func (m *Manager) List(ctx context.Context, dir string) ([]string, error) {
	out, err := m.exec.Execute(ctx, "ls -1 "+shell.Quote(dir))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// ReadFile returns the content of a device file.
func (m *Manager) ReadFile(ctx context.Context, path string) ([]byte, error) {
	out, err := m.exec.Execute(ctx, "base64 "+shell.Quote(path))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	data, err := base64.StdEncoding.DecodeString(stripWhitespace(out))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return data, nil
}

// WriteFile writes data to a device file with the given octal mode string.
// Content is appended to a temporary sibling in chunks and moved into place,
// so a failed transfer never leaves a partial file at path. An empty mode
// keeps whatever the umask produces.
func (m *Manager) WriteFile(ctx context.Context, path string, data []byte, mode string) error {
	tmp := path + ".gsbak-tmp"
	if _, err := m.exec.Execute(ctx, ": > "+shell.Quote(tmp)); err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	for off := 0; off < len(data); off += writeChunkSize {
		end := off + writeChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := base64.StdEncoding.EncodeToString(data[off:end])
		cmd := fmt.Sprintf("echo %s | base64 -d >> %s", shell.Quote(chunk), shell.Quote(tmp))
		if _, err := m.exec.Execute(ctx, cmd); err != nil {
			m.removeQuiet(ctx, tmp)
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	if mode != "" {
		if _, err := m.exec.Execute(ctx, fmt.Sprintf("chmod %s %s", shell.Quote(mode), shell.Quote(tmp))); err != nil {
			m.removeQuiet(ctx, tmp)
			return fmt.Errorf("setting mode on %s: %w", path, err)
		}
	}
	if _, err := m.exec.Execute(ctx, fmt.Sprintf("mv %s %s", shell.Quote(tmp), shell.Quote(path))); err != nil {
		m.removeQuiet(ctx, tmp)
		return fmt.Errorf("moving %s into place: %w", path, err)
	}
	return nil
}

// CopyFile copies a single device file.
func (m *Manager) CopyFile(ctx context.Context, src, dst string) error {
	if _, err := m.exec.Execute(ctx, fmt.Sprintf("cp %s %s", shell.Quote(src), shell.Quote(dst))); err != nil {
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	return nil
}

// CopyDir recursively copies a directory; dst is the resulting path.
func (m *Manager) CopyDir(ctx context.Context, src, dst string) error {
	if _, err := m.exec.Execute(ctx, fmt.Sprintf("cp -r %s %s", shell.Quote(src), shell.Quote(dst))); err != nil {
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	return nil
}

// Move renames a path. Within one filesystem this is atomic.
func (m *Manager) Move(ctx context.Context, src, dst string) error {
	if _, err := m.exec.Execute(ctx, fmt.Sprintf("mv %s %s", shell.Quote(src), shell.Quote(dst))); err != nil {
		return fmt.Errorf("moving %s to %s: %w", src, dst, err)
	}
	return nil
}

// RemoveTree deletes a path recursively. Missing paths are not an error.
func (m *Manager) RemoveTree(ctx context.Context, path string) error {
	if _, err := m.exec.Execute(ctx, "rm -rf "+shell.Quote(path)); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// MkdirAll creates a directory and any missing parents.
func (m *Manager) MkdirAll(ctx context.Context, path string) error {
	if _, err := m.exec.Execute(ctx, "mkdir -p "+shell.Quote(path)); err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	return nil
}

// Chown changes ownership; ownerGroup is "owner:group".
func (m *Manager) Chown(ctx context.Context, path, ownerGroup string, recursive bool) error {
	flag := ""
	if recursive {
		flag = "-R "
	}
	if _, err := m.exec.Execute(ctx, fmt.Sprintf("chown %s%s %s", flag, shell.Quote(ownerGroup), shell.Quote(path))); err != nil {
		return fmt.Errorf("changing owner of %s: %w", path, err)
	}
	return nil
}

// Chmod changes permission bits; mode is an octal string.
func (m *Manager) Chmod(ctx context.Context, path, mode string, recursive bool) error {
	flag := ""
	if recursive {
		flag = "-R "
	}
	if _, err := m.exec.Execute(ctx, fmt.Sprintf("chmod %s%s %s", flag, shell.Quote(mode), shell.Quote(path))); err != nil {
		return fmt.Errorf("changing mode of %s: %w", path, err)
	}
	return nil
}

// Stat returns ownership and permission bits for a path. toybox is invoked
// explicitly because some shells alias stat to an incompatible applet.
func (m *Manager) Stat(ctx context.Context, path string) (*FileStat, error) {
	out, err := m.exec.Execute(ctx, "toybox stat -c '%U %G %a' "+shell.Quote(path))
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) != 3 {
		return nil, fmt.Errorf("stat %s: unexpected output %q", path, out)
	}
	return &FileStat{Owner: fields[0], Group: fields[1], Mode: fields[2]}, nil
}

// TarTree returns a gzipped tar of the directory's contents, built on the
// device. Entries matching an exclude pattern are skipped.
func (m *Manager) TarTree(ctx context.Context, dir string, excludes []string) ([]byte, error) {
	var b strings.Builder
	b.WriteString("tar -cz -C " + shell.Quote(dir))
	for _, pat := range excludes {
		b.WriteString(" --exclude=" + shell.Quote(pat))
	}
	b.WriteString(" . | base64")
	out, err := m.exec.Execute(ctx, b.String())
	if err != nil {
		return nil, fmt.Errorf("archiving %s: %w", dir, err)
	}
	data, err := base64.StdEncoding.DecodeString(stripWhitespace(out))
	if err != nil {
		return nil, fmt.Errorf("decoding archive of %s: %w", dir, err)
	}
	return data, nil
}

// UntarTree extracts a gzipped tar into a device directory, creating it
// first if needed.
func (m *Manager) UntarTree(ctx context.Context, dir string, archive []byte) error {
	if err := m.MkdirAll(ctx, dir); err != nil {
		return err
	}
	if err := m.WriteFile(ctx, untarSpoolPath, archive, ""); err != nil {
		return fmt.Errorf("staging archive for %s: %w", dir, err)
	}
	defer m.removeQuiet(ctx, untarSpoolPath)
	if _, err := m.exec.Execute(ctx, fmt.Sprintf("tar -xz -f %s -C %s", shell.Quote(untarSpoolPath), shell.Quote(dir))); err != nil {
		return fmt.Errorf("extracting into %s: %w", dir, err)
	}
	return nil
}

// Run executes an arbitrary tool with quoted arguments and returns its
// stdout. Used for the store conversion utilities and the SQL client.
func (m *Manager) Run(ctx context.Context, name string, args ...string) (string, error) {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		parts = append(parts, shell.Quote(a))
	}
	out, err := m.exec.Execute(ctx, strings.Join(parts, " "))
	if err != nil {
		return "", fmt.Errorf("running %s: %w", name, err)
	}
	return out, nil
}

// SQLite3 runs a statement against a device database through the sqlite3
// CLI and returns its output.
func (m *Manager) SQLite3(ctx context.Context, dbPath, sql string) (string, error) {
	return m.Run(ctx, "sqlite3", dbPath, sql)
}

// AppUID returns the numeric uid assigned to an installed package, read
// from the package registry.
func (m *Manager) AppUID(ctx context.Context, pkg string) (string, error) {
	out, err := m.exec.Execute(ctx, fmt.Sprintf("grep %s %s", shell.Quote("^"+pkg+" "), shell.Quote(PackagesListPath)))
	if err != nil {
		return "", fmt.Errorf("reading package registry: %w", err)
	}
	line := out
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", fmt.Errorf("package %s not in registry", pkg)
	}
	return fields[1], nil
}

// Sync flushes filesystem buffers on the device.
func (m *Manager) Sync(ctx context.Context) error {
	if _, err := m.exec.Execute(ctx, "sync"); err != nil {
		return fmt.Errorf("syncing filesystems: %w", err)
	}
	return nil
}

func (m *Manager) removeQuiet(ctx context.Context, path string) {
	_, _ = m.exec.Execute(ctx, "rm -f "+shell.Quote(path))
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}
