package fetch

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipElements is page chrome and machinery excluded from extracted
// text. Company sites bury the useful copy under nav bars, cookie
// forms, and signup asides; none of it belongs in a research prompt.
// Head is walked (the title lives there) but its scripts and styles
// are skipped like everyone else's.
var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
}

// extractHTML parses raw HTML and returns the page title and its
// readable text content.
func extractHTML(raw string) (string, string) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", stripTags(raw)
	}

	var x extractor
	x.walk(doc)
	return x.title, cleanWhitespace(x.text.String())
}

// extractor accumulates title and visible text in one DOM pass.
type extractor struct {
	title string
	text  strings.Builder
}

func (x *extractor) walk(n *html.Node) {
	switch n.Type {
	case html.ElementNode:
		if n.DataAtom == atom.Title {
			if x.title == "" {
				x.title = strings.TrimSpace(textContent(n))
			}
			return
		}
		if skipElements[n.DataAtom] {
			return
		}
		if blockElement(n.DataAtom) && x.text.Len() > 0 {
			x.text.WriteString("\n\n")
		}
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			x.text.WriteString(t)
			x.text.WriteString(" ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		x.walk(c)
	}

	if n.Type == html.ElementNode && (n.DataAtom == atom.Br || n.DataAtom == atom.Li) {
		x.text.WriteString("\n")
	}
}

// textContent concatenates the text of n and all its children.
func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}

// blockElement reports whether a typically renders as a block, which
// earns it a paragraph break in the extracted text.
func blockElement(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Table,
		atom.Tr, atom.Dl, atom.Dd, atom.Dt, atom.Figcaption, atom.Figure,
		atom.Details, atom.Summary, atom.Hr:
		return true
	}
	return false
}

// cleanWhitespace collapses runs of spaces within lines and runs of
// blank lines down to one.
func cleanWhitespace(s string) string {
	var (
		out       []string
		prevBlank bool
	)
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if prevBlank {
				continue
			}
			prevBlank = true
		} else {
			prevBlank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// stripTags recovers text from HTML the parser rejected by taking
// every text token as-is.
func stripTags(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			// EOF and real tokenizer errors end the scan the same way;
			// whatever text was recovered is the result.
			return cleanWhitespace(b.String())
		case html.TextToken:
			b.WriteString(z.Token().Data)
			b.WriteString(" ")
		}
	}
}
