package textclean

import (
	"strings"

	"golang.org/x/net/html"
)

// skipContentTags are elements whose text content is dropped entirely.
// ref is MediaWiki's citation extension tag; its payload is a citation,
// not prose.
var skipContentTags = map[string]struct{}{
	"script": {},
	"style":  {},
	"ref":    {},
}

// blockTags are elements whose boundaries become newlines so sentences from
// adjacent blocks do not run together.
var blockTags = map[string]struct{}{
	"p":          {},
	"div":        {},
	"br":         {},
	"li":         {},
	"tr":         {},
	"table":      {},
	"h1":         {},
	"h2":         {},
	"h3":         {},
	"h4":         {},
	"h5":         {},
	"h6":         {},
	"blockquote": {},
	"section":    {},
	"article":    {},
}

// StripHTML removes tags, decodes named and numeric entities, and preserves
// textual content. Script, style, and citation payloads are dropped; block
// element boundaries become newlines for later whitespace normalization.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	tokenizer := html.NewTokenizer(strings.NewReader(s))

	var b strings.Builder

	b.Grow(len(s))

	skipDepth := 0

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return b.String()

		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
			}

		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)

			if _, skip := skipContentTags[tag]; skip {
				skipDepth++

				continue
			}

			if _, block := blockTags[tag]; block && skipDepth == 0 {
				b.WriteByte('\n')
			}

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)

			if _, skip := skipContentTags[tag]; skip {
				if skipDepth > 0 {
					skipDepth--
				}

				continue
			}

			if _, block := blockTags[tag]; block && skipDepth == 0 {
				b.WriteByte('\n')
			}

		case html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()

			if _, block := blockTags[string(name)]; block && skipDepth == 0 {
				b.WriteByte('\n')
			}

		case html.CommentToken, html.DoctypeToken:
			// Dropped.
		}
	}
}
