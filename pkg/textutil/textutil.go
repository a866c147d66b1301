// Package textutil provides text measurement utilities: whitespace token
// counting, boundary-safe truncation, and binary content detection.
package textutil

import (
	"bytes"
	"io"
	"unicode"
	"unicode/utf8"
)

// BinarySniffLength is the maximum number of bytes scanned for null-byte
// detection. Matches the heuristic used by Git and most editors.
const BinarySniffLength = 8000

// TokenCount returns the number of maximal non-whitespace runs in s.
// Whitespace is any rune for which [unicode.IsSpace] reports true.
// Returns 0 for an empty or all-whitespace string.
func TokenCount(s string) int {
	count := 0
	inToken := false

	for _, r := range s {
		if unicode.IsSpace(r) {
			inToken = false

			continue
		}

		if !inToken {
			inToken = true
			count++
		}
	}

	return count
}

// TruncateRunes returns s truncated to at most maxRunes runes.
// Strings at or under the limit are returned unchanged.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}

	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}

	runes := []rune(s)

	return string(runes[:maxRunes])
}

// TruncateBytes returns s truncated to at most maxBytes bytes without
// splitting a multi-byte rune. Strings at or under the limit are returned
// unchanged.
func TruncateBytes(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}

	if len(s) <= maxBytes {
		return s
	}

	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}

// IsBinary returns true if data contains a null byte within the first
// BinarySniffLength bytes. Empty data is not binary.
func IsBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	sniff := data
	if len(sniff) > BinarySniffLength {
		sniff = sniff[:BinarySniffLength]
	}

	return bytes.IndexByte(sniff, 0) >= 0
}

// BytesReader wraps a byte slice as an [io.ReadCloser].
// The returned closer is a no-op.
func BytesReader(data []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(data))
}
