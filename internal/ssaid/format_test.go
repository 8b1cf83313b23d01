package ssaid

import (
	"bytes"
	"testing"
)

func TestDetectEncoding(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want Encoding
	}{
		{"empty", nil, EncodingAbsent},
		{"abx magic", []byte{0x41, 0x42, 0x58, 0x00, 0x01, 0x02}, EncodingBinary},
		{"xml declaration", []byte("<?xml version='1.0' ?><settings />"), EncodingText},
		{"settings element without declaration", []byte("<settings version=\"-1\"></settings>"), EncodingText},
		{"mostly binary without magic", append([]byte{0x00, 0x01}, bytes.Repeat([]byte{0xfe, 0x03, 0x80}, 200)...), EncodingBinary},
		{"plain ascii garbage", []byte("this is not a settings file at all"), EncodingText},
		{"whitespace heavy text", bytes.Repeat([]byte("word \t\r\n"), 100), EncodingText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectEncoding(tt.raw); got != tt.want {
				t.Errorf("DetectEncoding() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncoding_String(t *testing.T) {
	if EncodingText.String() != "text" || EncodingBinary.String() != "binary" || EncodingAbsent.String() != "absent" {
		t.Error("Encoding.String() mapping broken")
	}
}
