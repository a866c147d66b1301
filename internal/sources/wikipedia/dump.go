package wikipedia

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// dumpPage is one <page> element of a pages-articles dump.
type dumpPage struct {
	Title     string
	NS        int
	PageID    int64
	RevID     int64
	Redirect  bool
	Oversized bool
	TextBytes int64
	Text      string
}

// dumpParser streams <page> elements out of a MediaWiki export without
// holding more than one page in memory. Pages whose <text> carries a
// bytes attribute above the cap are skipped at the token level, so an
// outlier page never gets buffered at all.
type dumpParser struct {
	dec          *xml.Decoder
	maxPageBytes int64
}

func newDumpParser(r io.Reader, maxPageBytes int64) *dumpParser {
	return &dumpParser{dec: xml.NewDecoder(r), maxPageBytes: maxPageBytes}
}

// next returns the next page, or io.EOF once the dump is exhausted.
func (p *dumpParser) next() (*dumpPage, error) {
	for {
		tok, err := p.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}

			return nil, fmt.Errorf("wikipedia: dump token: %w", err)
		}

		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "page" {
			continue
		}

		return p.parsePage()
	}
}

func (p *dumpParser) parsePage() (*dumpPage, error) {
	page := &dumpPage{}
	sawID := false

	for {
		tok, err := p.dec.Token()
		if err != nil {
			return nil, fmt.Errorf("wikipedia: dump page truncated: %w", err)
		}

		switch el := tok.(type) {
		case xml.EndElement:
			if el.Name.Local == "page" {
				return page, nil
			}
		case xml.StartElement:
			switch el.Name.Local {
			case "title":
				if err := p.dec.DecodeElement(&page.Title, &el); err != nil {
					return nil, fmt.Errorf("wikipedia: dump title: %w", err)
				}
			case "ns":
				if err := p.dec.DecodeElement(&page.NS, &el); err != nil {
					return nil, fmt.Errorf("wikipedia: dump ns: %w", err)
				}
			case "id":
				// The first <id> under <page> is the page id; revision
				// and contributor ids live deeper and are handled below.
				if sawID {
					if err := p.dec.Skip(); err != nil {
						return nil, fmt.Errorf("wikipedia: dump skip: %w", err)
					}

					continue
				}
				sawID = true
				if err := p.dec.DecodeElement(&page.PageID, &el); err != nil {
					return nil, fmt.Errorf("wikipedia: dump page id: %w", err)
				}
			case "redirect":
				page.Redirect = true
				if err := p.dec.Skip(); err != nil {
					return nil, fmt.Errorf("wikipedia: dump skip: %w", err)
				}
			case "revision":
				if err := p.parseRevision(page); err != nil {
					return nil, err
				}
			default:
				if err := p.dec.Skip(); err != nil {
					return nil, fmt.Errorf("wikipedia: dump skip: %w", err)
				}
			}
		}
	}
}

func (p *dumpParser) parseRevision(page *dumpPage) error {
	sawRevID := false

	for {
		tok, err := p.dec.Token()
		if err != nil {
			return fmt.Errorf("wikipedia: dump revision truncated: %w", err)
		}

		switch el := tok.(type) {
		case xml.EndElement:
			if el.Name.Local == "revision" {
				return nil
			}
		case xml.StartElement:
			switch el.Name.Local {
			case "id":
				if sawRevID {
					if err := p.dec.Skip(); err != nil {
						return fmt.Errorf("wikipedia: dump skip: %w", err)
					}

					continue
				}
				sawRevID = true
				if err := p.dec.DecodeElement(&page.RevID, &el); err != nil {
					return fmt.Errorf("wikipedia: dump revision id: %w", err)
				}
			case "text":
				page.TextBytes = textBytesAttr(el)
				if p.maxPageBytes > 0 && page.TextBytes > p.maxPageBytes {
					page.Oversized = true
					if err := p.dec.Skip(); err != nil {
						return fmt.Errorf("wikipedia: dump skip oversized: %w", err)
					}

					continue
				}
				if err := p.dec.DecodeElement(&page.Text, &el); err != nil {
					return fmt.Errorf("wikipedia: dump text: %w", err)
				}
				if page.TextBytes == 0 {
					page.TextBytes = int64(len(page.Text))
				}
				// Dumps predating the bytes attribute get capped after
				// the fact.
				if p.maxPageBytes > 0 && page.TextBytes > p.maxPageBytes {
					page.Oversized = true
					page.Text = ""
				}
			default:
				if err := p.dec.Skip(); err != nil {
					return fmt.Errorf("wikipedia: dump skip: %w", err)
				}
			}
		}
	}
}

// textBytesAttr reads the bytes="N" attribute MediaWiki stamps on
// revision text, 0 when absent.
func textBytesAttr(el xml.StartElement) int64 {
	for _, attr := range el.Attr {
		if attr.Name.Local != "bytes" {
			continue
		}
		n, err := strconv.ParseInt(attr.Value, 10, 64)
		if err != nil {
			return 0
		}

		return n
	}

	return 0
}
