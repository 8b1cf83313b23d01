// Package archive packs and extracts the gzipped tar archives gsbak moves
// between the device, the local spool and the vault.
package archive

import (
	"path/filepath"
	"strings"
)

// excludePattern is a parsed exclude pattern with its matching strategy.
type excludePattern struct {
	pattern   string
	matchPath bool // true = match against relative path; false = match against basename only
}

// ExcludeMatcher checks archive entry paths against a set of exclude
// patterns. Patterns without '/' match against the entry's basename only.
// Patterns with '/' match against the full slash-normalized relative path.
type ExcludeMatcher struct {
	patterns []excludePattern
}

// NewExcludeMatcher creates an ExcludeMatcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped.
func NewExcludeMatcher(rawPatterns []string) *ExcludeMatcher {
	var patterns []excludePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		patterns = append(patterns, excludePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &ExcludeMatcher{patterns: patterns}
}

// Match reports whether the given relative path should be excluded.
func (m *ExcludeMatcher) Match(relativePath string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}

	// Normalize to forward slashes for consistent matching.
	normalized := filepath.ToSlash(relativePath)
	basename := filepath.Base(relativePath)

	for _, p := range m.patterns {
		var matched bool
		var err error
		if p.matchPath {
			matched, err = filepath.Match(p.pattern, normalized)
		} else {
			matched, err = filepath.Match(p.pattern, basename)
		}
		if err != nil {
			// Malformed pattern, skip it.
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// MatchPrefix reports whether the path or any of its parent directories
// matches an exclude pattern. Used when entries arrive flat, as in a tar
// stream, where excluding a directory must also drop its contents.
func (m *ExcludeMatcher) MatchPrefix(relativePath string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	p := strings.Trim(filepath.ToSlash(relativePath), "/")
	for p != "" && p != "." {
		if m.Match(p) {
			return true
		}
		i := strings.LastIndex(p, "/")
		if i < 0 {
			return false
		}
		p = p[:i]
	}
	return false
}
