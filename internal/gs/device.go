package gs

import (
	"context"

	"gsbak/internal/android"
)

// Device provides file and process operations on the rooted device. Every
// method is implemented in terms of the Executor; no direct filesystem
// access is involved for device paths.
type Device interface {
	// ForceStop stops the given app package.
	ForceStop(ctx context.Context, pkg string) error

	// Exists reports whether a path exists. A plain "no" is (false, nil);
	// an error means the answer could not be determined.
	Exists(ctx context.Context, path string) (bool, error)

	// IsDir reports whether a path exists and is a directory.
	IsDir(ctx context.Context, path string) (bool, error)

	// ReadFile returns the content of a file. The transfer is binary-safe.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile writes data to a file with the given octal mode string.
	// The write goes to a temporary sibling first and is moved into place,
	// so a failed write never leaves a partial file at path.
	WriteFile(ctx context.Context, path string, data []byte, mode string) error

	// CopyFile copies a single file.
	CopyFile(ctx context.Context, src, dst string) error

	// CopyDir recursively copies a directory; dst is the resulting path.
	CopyDir(ctx context.Context, src, dst string) error

	// Move renames a path. Within one filesystem this is atomic.
	Move(ctx context.Context, src, dst string) error

	// RemoveTree deletes a path recursively. Missing paths are not an error.
	RemoveTree(ctx context.Context, path string) error

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(ctx context.Context, path string) error

	// Chown changes ownership; ownerGroup is "owner:group".
	Chown(ctx context.Context, path, ownerGroup string, recursive bool) error

	// Chmod changes permission bits; mode is an octal string.
	Chmod(ctx context.Context, path, mode string, recursive bool) error

	// Stat returns ownership and permission bits for a path.
	Stat(ctx context.Context, path string) (*android.FileStat, error)

	// TarTree returns a gzipped tar of the directory's contents, built on
	// the device. Entries matching an exclude pattern are skipped.
	TarTree(ctx context.Context, dir string, excludes []string) ([]byte, error)

	// Run executes an arbitrary tool with quoted arguments and returns its
	// stdout. Used for the store conversion utilities and the SQL client.
	Run(ctx context.Context, name string, args ...string) (string, error)

	// AppUID returns the numeric uid assigned to an installed package, or
	// an error when the package registry cannot be read.
	AppUID(ctx context.Context, pkg string) (string, error)

	// Sync forces a filesystem sync.
	Sync(ctx context.Context) error
}

var _ Device = (*android.Manager)(nil)
