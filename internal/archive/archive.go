package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Extract unpacks a gzipped tar stream into destDir. Entry paths are
// validated so that no entry can escape destDir. File modes and
// modification times are preserved; ownership is not. Entries matching
// exclude are skipped; a nil matcher excludes nothing.
func Extract(r io.Reader, destDir string, exclude *ExcludeMatcher) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		target, err := securePath(destDir, hdr.Name)
		if err != nil {
			return err
		}
		if exclude.MatchPrefix(hdr.Name) {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return fmt.Errorf("creating directory %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			if err := extractFile(tr, target, hdr); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := extractSymlink(destDir, target, hdr); err != nil {
				return err
			}
		default:
			// Device nodes, fifos and the like have no business in a
			// game data backup. Skip them.
			continue
		}

		if hdr.Typeflag != tar.TypeSymlink && !hdr.ModTime.IsZero() {
			os.Chtimes(target, hdr.ModTime, hdr.ModTime)
		}
	}
	return nil
}

func extractFile(tr *tar.Reader, target string, hdr *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating parent directory for %s: %w", hdr.Name, err)
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode))
	if err != nil {
		return fmt.Errorf("creating file %s: %w", hdr.Name, err)
	}
	_, err = io.Copy(f, tr)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing file %s: %w", hdr.Name, err)
	}
	return nil
}

func extractSymlink(destDir, target string, hdr *tar.Header) error {
	// The link target must also resolve inside destDir.
	linkDest := hdr.Linkname
	if !filepath.IsAbs(linkDest) {
		linkDest = filepath.Join(filepath.Dir(target), linkDest)
	}
	if _, err := securePath(destDir, strings.TrimPrefix(linkDest, destDir)); err != nil {
		return fmt.Errorf("symlink %s points outside archive: %s", hdr.Name, hdr.Linkname)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating parent directory for %s: %w", hdr.Name, err)
	}
	os.Remove(target)
	if err := os.Symlink(hdr.Linkname, target); err != nil {
		return fmt.Errorf("creating symlink %s: %w", hdr.Name, err)
	}
	return nil
}

// securePath joins name onto destDir and rejects anything that would
// resolve outside it.
func securePath(destDir, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) {
		cleaned = strings.TrimPrefix(cleaned, string(os.PathSeparator))
	}
	target := filepath.Join(destDir, cleaned)
	if target != filepath.Clean(destDir) &&
		!strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry escapes destination: %s", name)
	}
	return target, nil
}

// Pack writes dir as a gzipped tar stream to w. Paths inside the
// archive are relative to dir. Entries matching exclude are skipped;
// a nil matcher excludes nothing.
func Pack(w io.Writer, dir string, exclude *ExcludeMatcher) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if exclude.Match(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return fmt.Errorf("reading symlink %s: %w", rel, err)
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("building header for %s: %w", rel, err)
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.ModTime = info.ModTime().Truncate(time.Second)
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("writing header for %s: %w", rel, err)
		}

		if info.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("opening %s: %w", rel, err)
			}
			_, err = io.Copy(tw, f)
			f.Close()
			if err != nil {
				return fmt.Errorf("archiving %s: %w", rel, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("finalizing gzip stream: %w", err)
	}
	return nil
}
