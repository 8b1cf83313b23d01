package identifier

import "testing"

func TestIsValidAndroidID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"lowercase hex", "3f2a8b9c0d1e4a5b", true},
		{"uppercase hex", "3F2A8B9C0D1E4A5B", true},
		{"mixed case", "3f2A8b9C0d1E4a5B", true},
		{"all digits", "0123456789012345", true},
		{"all letters", "abcdefabcdefabcd", true},
		{"empty", "", false},
		{"too short", "3f2a8b9c0d1e4a5", false},
		{"too long", "3f2a8b9c0d1e4a5b0", false},
		{"non-hex character", "3f2a8b9c0d1e4a5g", false},
		{"embedded space", "3f2a8b9c d1e4a5b", false},
		{"hex with prefix", "0x2a8b9c0d1e4a5b", false},
		{"unicode digits", "３f2a8b9c0d1e4a5b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidAndroidID(tt.input); got != tt.want {
				t.Errorf("IsValidAndroidID(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("3F2A8B9C0D1E4A5B"); got != "3f2a8b9c0d1e4a5b" {
		t.Errorf("Normalize() = %q, want %q", got, "3f2a8b9c0d1e4a5b")
	}
}
