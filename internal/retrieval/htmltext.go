package retrieval

import (
	"strings"

	"golang.org/x/net/html"
)

// ExtractText reduces an HTML document to its visible text. Script and style
// bodies are dropped; whitespace is collapsed. Users paste status pages and
// dashboard exports as evidence, and only the text matters for indexing.
func ExtractText(src string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if b.Len() > 0 {
					b.WriteString(" ")
				}
				b.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return b.String(), nil
}
