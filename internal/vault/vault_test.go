package vault

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gsbak/internal/gs"
)

// both local backends must behave identically through the Vault surface.
func localVaults(t *testing.T) map[string]gs.Vault {
	t.Helper()
	fsVault, err := NewFileSystemVault("test", filepath.Join(t.TempDir(), "vault"))
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	return map[string]gs.Vault{
		"memory":     NewMemoryVault("test"),
		"filesystem": fsVault,
	}
}

func TestVault_PutGet(t *testing.T) {
	ctx := context.Background()
	for name, v := range localVaults(t) {
		t.Run(name, func(t *testing.T) {
			content := "archive-bytes"
			err := v.Put(ctx, "rec-1.tar.gz", strings.NewReader(content), int64(len(content)))
			if err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			var buf bytes.Buffer
			if err := v.Get(ctx, "rec-1.tar.gz", &buf); err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if buf.String() != content {
				t.Errorf("Get() = %q, want %q", buf.String(), content)
			}
		})
	}
}

func TestVault_PutReplaces(t *testing.T) {
	ctx := context.Background()
	for name, v := range localVaults(t) {
		t.Run(name, func(t *testing.T) {
			if err := v.Put(ctx, "rec-1.tar.gz", strings.NewReader("old"), 3); err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			if err := v.Put(ctx, "rec-1.tar.gz", strings.NewReader("new"), 3); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			var buf bytes.Buffer
			if err := v.Get(ctx, "rec-1.tar.gz", &buf); err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if buf.String() != "new" {
				t.Errorf("Get() = %q, want %q", buf.String(), "new")
			}
		})
	}
}

func TestVault_PutSizeMismatch(t *testing.T) {
	ctx := context.Background()
	for name, v := range localVaults(t) {
		t.Run(name, func(t *testing.T) {
			err := v.Put(ctx, "rec-1.tar.gz", strings.NewReader("short"), 100)
			if err == nil {
				t.Fatal("Put() with wrong size expected error, got nil")
			}
			if !strings.Contains(err.Error(), "size mismatch") {
				t.Errorf("Put() error = %v, want size mismatch", err)
			}
		})
	}
}

func TestVault_GetMissing(t *testing.T) {
	ctx := context.Background()
	for name, v := range localVaults(t) {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := v.Get(ctx, "nope.tar.gz", &buf); err == nil {
				t.Fatal("Get() of missing object expected error, got nil")
			}
		})
	}
}

func TestVault_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, v := range localVaults(t) {
		t.Run(name, func(t *testing.T) {
			for _, obj := range []string{"a.tar.gz", "b.tar.gz"} {
				if err := v.Put(ctx, obj, strings.NewReader("x"), 1); err != nil {
					t.Fatalf("Put(%s) error = %v", obj, err)
				}
			}

			names, err := v.List(ctx)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(names) != 2 {
				t.Fatalf("List() = %v, want 2 objects", names)
			}

			if err := v.Delete(ctx, "a.tar.gz"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			// Deleting a missing object is not an error.
			if err := v.Delete(ctx, "a.tar.gz"); err != nil {
				t.Fatalf("Delete() of missing object error = %v", err)
			}

			names, err = v.List(ctx)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(names) != 1 || names[0] != "b.tar.gz" {
				t.Errorf("List() after delete = %v, want [b.tar.gz]", names)
			}
		})
	}
}

func TestVault_RejectsUnsafeNames(t *testing.T) {
	ctx := context.Background()
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}

	for _, name := range []string{"", "../escape", "a/b", ".hidden"} {
		if err := v.Put(ctx, name, strings.NewReader("x"), 1); err == nil {
			t.Errorf("Put(%q) expected error, got nil", name)
		}
	}
}

func TestVault_ValidateSetup(t *testing.T) {
	ctx := context.Background()
	for name, v := range localVaults(t) {
		t.Run(name, func(t *testing.T) {
			if err := v.ValidateSetup(ctx); err != nil {
				t.Errorf("ValidateSetup() error = %v", err)
			}
		})
	}

	t.Run("missing root", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "vault")
		v, err := NewFileSystemVault("test", root)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
		if err := os.RemoveAll(root); err != nil {
			t.Fatalf("RemoveAll() error = %v", err)
		}
		if err := v.ValidateSetup(ctx); err == nil {
			t.Error("ValidateSetup() expected error for missing root, got nil")
		}
	})
}

func TestFileSystemVault_CreatesDirectoryStructure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "vault")
	v, err := NewFileSystemVault("test", root)
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "archives")); err != nil {
		t.Errorf("archive directory not created: %v", err)
	}
	if v.name != "test" {
		t.Errorf("name = %q, want %q", v.name, "test")
	}
}
