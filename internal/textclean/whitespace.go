package textclean

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// newlineCollapseThreshold is the newline run length at which a paragraph gap
// collapses to a single line break.
const newlineCollapseThreshold = 3

// NormalizeWhitespace collapses runs of Unicode whitespace into a single
// space, trims leading and trailing whitespace, and collapses runs of three
// or more newlines into one. Runs containing one or two newlines keep them,
// preserving line and paragraph boundaries.
func NormalizeWhitespace(s string) string {
	var b strings.Builder

	b.Grow(len(s))

	inRun := false
	newlines := 0

	for _, r := range s {
		if unicode.IsSpace(r) {
			inRun = true

			if r == '\n' {
				newlines++
			}

			continue
		}

		if inRun {
			// A leading run is trimmed rather than replaced.
			if b.Len() > 0 {
				b.WriteString(runReplacement(newlines))
			}

			inRun = false
			newlines = 0
		}

		b.WriteRune(r)
	}

	// A trailing run is trimmed by never flushing it.
	return b.String()
}

func runReplacement(newlines int) string {
	switch {
	case newlines == 0:
		return " "
	case newlines >= newlineCollapseThreshold:
		return "\n"
	case newlines == 2:
		return "\n\n"
	default:
		return "\n"
	}
}

// NFC normalizes text to Unicode NFC form. Terminal stage of every chain.
func NFC(s string) string {
	return norm.NFC.String(s)
}
