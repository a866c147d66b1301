package sprakbanken

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sentence is one <sentence> element of a Korp XML export.
type sentence struct {
	ID    string
	Title string
	Text  string
}

// corpusParser streams <sentence> elements out of a Korp export without
// holding more than one sentence in memory. Tokenized exports carry one
// <w> element per token; plain exports carry character data directly
// inside <sentence>. Both shapes parse.
type corpusParser struct {
	dec *xml.Decoder

	// title is the enclosing <text> element's title attribute, stamped
	// onto every sentence under it.
	title string
}

func newCorpusParser(r io.Reader) *corpusParser {
	return &corpusParser{dec: xml.NewDecoder(r)}
}

// next returns the next sentence, or io.EOF once the export is
// exhausted.
func (p *corpusParser) next() (*sentence, error) {
	for {
		tok, err := p.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}

			return nil, fmt.Errorf("sprakbanken: corpus token: %w", err)
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch se.Name.Local {
		case "text":
			p.title = attr(se, "title")
		case "sentence":
			return p.parseSentence(se)
		}
	}
}

// parseSentence consumes tokens up to </sentence>, joining <w> token
// payloads (or bare character data) with single spaces.
func (p *corpusParser) parseSentence(se xml.StartElement) (*sentence, error) {
	sent := &sentence{ID: attr(se, "id"), Title: p.title}

	var words []string

	inWord := false
	depth := 1

	for depth > 0 {
		tok, err := p.dec.Token()
		if err != nil {
			return nil, fmt.Errorf("sprakbanken: sentence %s truncated: %w", sent.ID, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			inWord = t.Name.Local == "w"
		case xml.EndElement:
			depth--
			inWord = false
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			if inWord || depth == 1 {
				words = append(words, text)
			}
		}
	}

	sent.Text = strings.Join(words, " ")

	return sent, nil
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}

	return ""
}
