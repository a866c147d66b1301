package bbc

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// article is the extractable content of one news page.
type article struct {
	Title string
	Text  string
}

// Elements whose subtrees never contribute article prose.
var skipElements = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"nav":      {},
	"header":   {},
	"footer":   {},
	"aside":    {},
	"figure":   {},
	"form":     {},
	"iframe":   {},
}

// extractArticle pulls the headline and body paragraphs out of a page.
// It prefers the <main> landmark, falls back to <article>, then to the
// whole document, so stripped-down fixture pages extract too. A page
// with no paragraph prose yields empty text and is left to the length
// filter downstream.
func extractArticle(body []byte) article {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		// html.Parse recovers from almost anything; a hard error means
		// there is no tree to walk.
		return article{}
	}

	root := findFirst(doc, "main")
	if root == nil {
		root = findFirst(doc, "article")
	}
	if root == nil {
		root = doc
	}

	var out article
	if h1 := findFirst(root, "h1"); h1 != nil {
		out.Title = strings.TrimSpace(nodeText(h1))
	}
	if out.Title == "" {
		if t := findFirst(doc, "title"); t != nil {
			out.Title = strings.TrimSpace(nodeText(t))
		}
	}

	var paragraphs []string
	walkElements(root, "p", func(p *html.Node) {
		if text := strings.TrimSpace(nodeText(p)); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	out.Text = strings.Join(paragraphs, "\n\n")

	return out
}

// extractLinks returns every anchor target on the page, in document
// order, without resolving or filtering them.
func extractLinks(body []byte) []string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var hrefs []string
	walkElements(doc, "a", func(a *html.Node) {
		for _, attr := range a.Attr {
			if attr.Key == "href" && attr.Val != "" {
				hrefs = append(hrefs, attr.Val)

				break
			}
		}
	})

	return hrefs
}

// findFirst returns the first element named tag in depth-first order,
// skipping non-content subtrees.
func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode {
		if n.Data == tag {
			return n
		}
		if _, skip := skipElements[n.Data]; skip {
			return nil
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}

	return nil
}

// walkElements visits every element named tag under n, skipping
// non-content subtrees.
func walkElements(n *html.Node, tag string, visit func(*html.Node)) {
	if n.Type == html.ElementNode {
		if _, skip := skipElements[n.Data]; skip {
			return
		}
		if n.Data == tag {
			visit(n)

			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkElements(c, tag, visit)
	}
}

// nodeText concatenates the text nodes under n, skipping non-content
// subtrees, with single spaces where markup separated runs.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
		case html.ElementNode:
			if _, skip := skipElements[n.Data]; skip {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	return strings.Join(strings.Fields(sb.String()), " ")
}
