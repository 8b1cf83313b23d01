package gs

import (
	"context"
	"io"
)

// Vault provides an interface for off-device archive storage backends.
// Objects are flat, named by the caller, and streamed to support large
// archives without loading them into memory.
type Vault interface {
	// Put stores an object under the given name, replacing any previous
	// object with that name. size is the number of bytes that will be read
	// from r.
	Put(ctx context.Context, name string, r io.Reader, size int64) error

	// Get retrieves an object by name and writes it to w.
	Get(ctx context.Context, name string, w io.Writer) error

	// List returns the names of all stored objects.
	List(ctx context.Context) ([]string, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, name string) error

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}
