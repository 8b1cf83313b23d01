// Package identifier extracts and validates the device and account
// identifiers this tool manages: the primary account identifier and its
// optional companions from the target app's preference file, and the
// per-package SSAID recovered from the system identifier store.
package identifier

import (
	"regexp"
	"strings"
)

// NotPresent is the sentinel stored for any optional identifier that could
// not be extracted. Downstream code compares against this value instead of
// branching on empty strings.
const NotPresent = "N/A"

var androidIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{16}$`)

// IsValidAndroidID reports whether s is a well-formed SSAID value:
// exactly 16 hex characters, either case.
func IsValidAndroidID(s string) bool {
	return androidIDPattern.MatchString(s)
}

// Normalize lowercases an identifier value. All identifiers are stored and
// compared in lowercase.
func Normalize(s string) string {
	return strings.ToLower(s)
}
