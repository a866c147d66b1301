// Package textclean normalizes acquired text through ordered, pure
// transformation stages. Each stage is a func(string) string; a Cleaner is a
// fixed stage sequence selected per source. Markup removal always precedes
// whitespace normalization, HTML stripping precedes wiki stripping when both
// are selected, and NFC runs last so every cleaned string is in composed form.
package textclean

// Stage is a pure text transformation applied in sequence by a Cleaner.
type Stage func(string) string

// Cleaner applies an ordered sequence of stages.
type Cleaner struct {
	stages []Stage
}

// New creates a Cleaner with the given stages in application order.
func New(stages ...Stage) *Cleaner {
	return &Cleaner{stages: stages}
}

// Clean runs text through all stages in order.
func (c *Cleaner) Clean(text string) string {
	for _, stage := range c.stages {
		text = stage(text)
	}

	return text
}

// NewWikiCleaner builds the chain for MediaWiki dump text: HTML entities,
// comments, and citation payloads first, then wiki markup, then whitespace.
func NewWikiCleaner() *Cleaner {
	return New(StripHTML, StripWikiMarkup, NormalizeWhitespace, NFC)
}

// NewHTMLCleaner builds the chain for scraped web pages.
func NewHTMLCleaner() *Cleaner {
	return New(StripHTML, NormalizeWhitespace, NFC)
}

// NewPlainCleaner builds the chain for already-plain corpus and API text.
func NewPlainCleaner() *Cleaner {
	return New(NormalizeWhitespace, NFC)
}
