// Package ssaid reads and rewrites the per-user Android ID store. The store
// moved between platform releases: older builds keep a plain XML file, newer
// ones the ABX binary container, and some vendor builds dropped the file in
// favor of a settings database table. The manager handles all three behind
// one Set/Current surface.
package ssaid

import "bytes"

// Encoding classifies the on-device identifier store format for one
// read-modify-write cycle.
type Encoding int

const (
	// EncodingAbsent means no readable store file exists. Writes create a
	// fresh text store.
	EncodingAbsent Encoding = iota
	// EncodingText is the plain XML form.
	EncodingText
	// EncodingBinary is the ABX container form.
	EncodingBinary
)

func (e Encoding) String() string {
	switch e {
	case EncodingText:
		return "text"
	case EncodingBinary:
		return "binary"
	default:
		return "absent"
	}
}

// abxMagic is the four-byte signature of the binary XML container.
var abxMagic = []byte{0x41, 0x42, 0x58, 0x00}

// Classification window for files without magic or markers.
const (
	detectSample    = 512
	binaryThreshold = 0.30
)

// DetectEncoding classifies raw store content. The magic header is
// authoritative. Without it, content carrying XML markers is text, and
// content that is mostly non-printable in its leading window is binary.
// Empty content is absent.
func DetectEncoding(raw []byte) Encoding {
	if len(raw) == 0 {
		return EncodingAbsent
	}
	if bytes.HasPrefix(raw, abxMagic) {
		return EncodingBinary
	}
	if bytes.Contains(raw, []byte("<?xml")) || bytes.Contains(raw, []byte("<settings")) {
		return EncodingText
	}
	sample := raw
	if len(sample) > detectSample {
		sample = sample[:detectSample]
	}
	nonPrintable := 0
	for _, b := range sample {
		if (b < 0x20 && b != '\t' && b != '\n' && b != '\r') || b > 0x7e {
			nonPrintable++
		}
	}
	if float64(nonPrintable) > binaryThreshold*float64(len(sample)) {
		return EncodingBinary
	}
	return EncodingText
}
