package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
}

func TestPackExtract_RoundTrip(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"shared_prefs/com.nebulata.starforge.v2.playerprefs.xml": "<map></map>",
		"cache/save/slot0.dat":                                   "save-bytes",
		"cache/nested/deep/file.bin":                             "deep",
	})
	if err := os.Chmod(filepath.Join(src, "cache/save/slot0.dat"), 0600); err != nil {
		t.Fatalf("Chmod() error = %v", err)
	}

	var buf bytes.Buffer
	if err := Pack(&buf, src, nil); err != nil {
		t.Fatalf("Pack() error = %v", err)
	}

	dest := t.TempDir()
	if err := Extract(&buf, dest, nil); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	for name, want := range map[string]string{
		"shared_prefs/com.nebulata.starforge.v2.playerprefs.xml": "<map></map>",
		"cache/save/slot0.dat":                                   "save-bytes",
		"cache/nested/deep/file.bin":                             "deep",
	} {
		got, err := os.ReadFile(filepath.Join(dest, name))
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", name, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}

	info, err := os.Stat(filepath.Join(dest, "cache/save/slot0.dat"))
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %o, want 0600", info.Mode().Perm())
	}
}

func TestPack_Excludes(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"cache/keep.dat":       "keep",
		"cache/skip.tmp":       "skip",
		"cache/WebView/cookie": "skip-dir",
	})

	var buf bytes.Buffer
	matcher := NewExcludeMatcher([]string{"*.tmp", "cache/WebView"})
	if err := Pack(&buf, src, matcher); err != nil {
		t.Fatalf("Pack() error = %v", err)
	}

	dest := t.TempDir()
	if err := Extract(&buf, dest, nil); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "cache/keep.dat")); err != nil {
		t.Errorf("kept file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "cache/skip.tmp")); err == nil {
		t.Error("excluded file was packed")
	}
	if _, err := os.Stat(filepath.Join(dest, "cache/WebView")); err == nil {
		t.Error("excluded directory was packed")
	}
}

func TestExtract_RejectsPathTraversal(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	if err := tw.WriteHeader(&tar.Header{
		Name:     "../../escape.txt",
		Typeflag: tar.TypeReg,
		Mode:     0644,
		Size:     4,
	}); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}
	if _, err := tw.Write([]byte("evil")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	tw.Close()
	gz.Close()

	dest := filepath.Join(t.TempDir(), "inner")
	err := Extract(&buf, dest, nil)
	if err == nil {
		t.Fatal("Extract() expected error for traversal entry, got nil")
	}
	if !strings.Contains(err.Error(), "escapes destination") {
		t.Errorf("Extract() error = %v, want escape rejection", err)
	}
}

func TestExtract_RejectsEscapingSymlink(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	if err := tw.WriteHeader(&tar.Header{
		Name:     "link",
		Typeflag: tar.TypeSymlink,
		Linkname: "../../outside",
		Mode:     0777,
	}); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}
	tw.Close()
	gz.Close()

	if err := Extract(&buf, filepath.Join(t.TempDir(), "inner"), nil); err == nil {
		t.Fatal("Extract() expected error for escaping symlink, got nil")
	}
}

func TestExtract_BadGzip(t *testing.T) {
	if err := Extract(strings.NewReader("not a gzip stream"), t.TempDir(), nil); err == nil {
		t.Fatal("Extract() expected error for invalid stream, got nil")
	}
}

func TestExcludeMatcher(t *testing.T) {
	matcher := NewExcludeMatcher([]string{
		"*.log",
		"cache/tmp",
		"",
		"# comment",
	})

	tests := []struct {
		path string
		want bool
	}{
		{"debug.log", true},
		{"nested/dir/debug.log", true},
		{"cache/tmp", true},
		{"cache/tmpfile", false},
		{"shared_prefs/settings.xml", false},
	}
	for _, tt := range tests {
		if got := matcher.Match(tt.path); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	var nilMatcher *ExcludeMatcher
	if nilMatcher.Match("anything") {
		t.Error("nil matcher should match nothing")
	}
}

func TestExtract_Excludes(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"cache/keep.dat":       "keep",
		"cache/skip.tmp":       "skip",
		"cache/WebView/cookie": "skip-dir",
	})

	var buf bytes.Buffer
	if err := Pack(&buf, src, nil); err != nil {
		t.Fatalf("Pack() error = %v", err)
	}

	dest := t.TempDir()
	matcher := NewExcludeMatcher([]string{"*.tmp", "cache/WebView"})
	if err := Extract(&buf, dest, matcher); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "cache/keep.dat")); err != nil {
		t.Errorf("kept file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "cache/skip.tmp")); err == nil {
		t.Error("excluded file was extracted")
	}
	if _, err := os.Stat(filepath.Join(dest, "cache/WebView/cookie")); err == nil {
		t.Error("file under excluded directory was extracted")
	}
}

func TestExcludeMatcher_MatchPrefix(t *testing.T) {
	matcher := NewExcludeMatcher([]string{"cache/WebView", "*.tmp"})

	tests := []struct {
		path string
		want bool
	}{
		{"cache/WebView", true},
		{"cache/WebView/cookies/db", true},
		{"cache/keep.dat", false},
		{"nested/file.tmp", true},
	}
	for _, tt := range tests {
		if got := matcher.MatchPrefix(tt.path); got != tt.want {
			t.Errorf("MatchPrefix(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
