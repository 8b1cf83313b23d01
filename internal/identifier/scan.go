package identifier

import (
	"regexp"
	"strings"
)

// scanWindow is the number of characters inspected on each side of the
// package name by the loosest scan strategy.
const scanWindow = 120

var hexToken = regexp.MustCompile(`\b[0-9a-fA-F]{16}\b`)

// ScanSSAID recovers the 16-hex SSAID for pkg from the raw bytes of a
// system identifier store. The store may be the legacy text format or the
// binary encoding; either way the value and the package name survive as
// printable runs, so the scan replaces every non-printable byte with a
// space and then tries three patterns in order:
//
//  1. a 16-hex value immediately following "<pkg>/",
//  2. a 16-hex value immediately preceding "/<pkg>",
//  3. any 16-hex token within a bounded window around the package name.
//
// The first match wins and is returned lowercased. If nothing matches,
// NotPresent is returned; the scan never fails.
func ScanSSAID(raw []byte, pkg string) string {
	if len(raw) == 0 || pkg == "" {
		return NotPresent
	}

	clean := stripNonPrintable(raw)
	quoted := regexp.QuoteMeta(pkg)

	after := regexp.MustCompile(quoted + `/([0-9a-fA-F]{16})\b`)
	if m := after.FindStringSubmatch(clean); m != nil {
		return Normalize(m[1])
	}

	before := regexp.MustCompile(`\b([0-9a-fA-F]{16})/` + quoted)
	if m := before.FindStringSubmatch(clean); m != nil {
		return Normalize(m[1])
	}

	idx := strings.Index(clean, pkg)
	if idx < 0 {
		return NotPresent
	}
	start := idx - scanWindow
	if start < 0 {
		start = 0
	}
	end := idx + len(pkg) + scanWindow
	if end > len(clean) {
		end = len(clean)
	}
	if m := hexToken.FindString(clean[start:end]); m != "" {
		return Normalize(m)
	}

	return NotPresent
}

// stripNonPrintable replaces every byte outside the printable ASCII range
// with a space so the regex strategies see stable token boundaries even in
// binary-encoded stores.
func stripNonPrintable(raw []byte) string {
	b := make([]byte, len(raw))
	for i, c := range raw {
		if c >= 0x20 && c < 0x7f {
			b[i] = c
		} else {
			b[i] = ' '
		}
	}
	return string(b)
}
