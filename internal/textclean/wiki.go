package textclean

import (
	"regexp"
	"strings"
)

var (
	commentRe    = regexp.MustCompile(`(?s)<!--.*?-->`)
	refSpanRe    = regexp.MustCompile(`(?si)<ref[^>]*?>.*?</ref>`)
	refSelfRe    = regexp.MustCompile(`(?i)<ref[^>]*?/>`)
	extLinkRe    = regexp.MustCompile(`\[(?:https?|ftp)://[^\]\s]+(?:\s+([^\]]*))?\]`)
	headingRe    = regexp.MustCompile(`(?m)^[ \t]*={1,6}[^\n]*?={1,6}[ \t]*$`)
	listMarkerRe = regexp.MustCompile(`(?m)^[*#:;]+[ \t]*`)
	magicWordRe  = regexp.MustCompile(`__[A-Z][A-Z_]*__`)

	// Longest quote runs first so bold-italic is not half-stripped.
	quoteReplacer = strings.NewReplacer("'''''", "", "'''", "", "''", "")
)

// StripWikiMarkup removes MediaWiki markup: comments, <ref> spans, templates
// and tables (wholesale, honoring nesting), internal links (keeping display
// text, dropping namespace-qualified targets), external link brackets
// (keeping labels), section headings, list markers, magic words, and
// bold/italic quote runs.
func StripWikiMarkup(s string) string {
	s = commentRe.ReplaceAllString(s, "")
	s = refSpanRe.ReplaceAllString(s, "")
	s = refSelfRe.ReplaceAllString(s, "")
	s = stripBraced(s, "{{", "}}")
	s = stripBraced(s, "{|", "|}")
	s = replaceInternalLinks(s)
	s = extLinkRe.ReplaceAllString(s, "$1")
	s = headingRe.ReplaceAllString(s, "")
	s = listMarkerRe.ReplaceAllString(s, "")
	s = magicWordRe.ReplaceAllString(s, "")
	s = quoteReplacer.Replace(s)

	return s
}

// stripBraced removes opener..closer spans wholesale, honoring nesting.
// Both delimiters are two ASCII bytes, so byte scanning is UTF-8 safe.
func stripBraced(s, opener, closer string) string {
	if !strings.Contains(s, opener) {
		return s
	}

	var b strings.Builder

	b.Grow(len(s))

	depth := 0

	for i := 0; i < len(s); i++ {
		if strings.HasPrefix(s[i:], opener) {
			depth++
			i++

			continue
		}

		if depth > 0 && strings.HasPrefix(s[i:], closer) {
			depth--
			i++

			continue
		}

		if depth == 0 {
			b.WriteByte(s[i])
		}
	}

	return b.String()
}

func replaceInternalLinks(s string) string {
	if !strings.Contains(s, "[[") {
		return s
	}

	var b strings.Builder

	b.Grow(len(s))

	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], "[[") {
			content, next, ok := scanLink(s, i)
			if ok {
				b.WriteString(renderLink(content))

				i = next

				continue
			}
		}

		b.WriteByte(s[i])
		i++
	}

	return b.String()
}

// scanLink reads a [[...]] span starting at start, honoring nested links.
// Returns the inner content and the index just past the closing brackets;
// ok is false when the span never closes.
func scanLink(s string, start int) (content string, next int, ok bool) {
	depth := 1

	for i := start + 2; i < len(s)-1; i++ {
		switch {
		case s[i] == '[' && s[i+1] == '[':
			depth++
			i++
		case s[i] == ']' && s[i+1] == ']':
			depth--
			if depth == 0 {
				return s[start+2 : i], i + 2, true
			}

			i++
		}
	}

	return "", 0, false
}

// renderLink converts internal link content to display text. Links whose
// target carries a namespace (File:, Category:, interwiki prefixes) are
// dropped wholesale; piped links keep their last segment, bare links their
// target. Nested links inside the kept segment are resolved recursively.
func renderLink(content string) string {
	target, _, piped := strings.Cut(content, "|")
	if strings.Contains(target, ":") {
		return ""
	}

	if !piped {
		return target
	}

	segments := strings.Split(content, "|")

	display := segments[len(segments)-1]
	if display == "" {
		display = target
	}

	return replaceInternalLinks(display)
}
