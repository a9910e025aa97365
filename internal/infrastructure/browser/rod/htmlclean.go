package rod

import (
	"strings"

	"golang.org/x/net/html"
)

const defaultMaxHTMLSize = 130_000

var (
	tagsToRemove = []string{
		"script", "style", "noscript", "svg", "iframe",
		"link", "meta", "head", "title",
	}
	attrsToRemove = []string{
		"style", "srcset", "sizes", "loading", "decoding", "fetchpriority", "tabindex",
	}
)

// cleanHTML strips markup that carries no form semantics and truncates the
// rest. Keyword classification and the LLM both read the cleaned text, so
// the pass must be lossless for labels, names and placeholders.
func cleanHTML(rawHTML string, maxSize int) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return truncateHTML(rawHTML, maxSize)
	}

	body := findBodyNode(doc)
	if body == nil {
		return truncateHTML(rawHTML, maxSize)
	}

	cleanNode(body)

	var sb strings.Builder
	_ = html.Render(&sb, body)
	return truncateHTML(sb.String(), maxSize)
}

func findBodyNode(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBodyNode(c); b != nil {
			return b
		}
	}
	return nil
}

func cleanNode(n *html.Node) {
	if n.Type == html.CommentNode {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		return
	}
	if n.Type != html.ElementNode {
		return
	}

	for _, tag := range tagsToRemove {
		if n.Data == tag {
			if n.Parent != nil {
				n.Parent.RemoveChild(n)
			}
			return
		}
	}

	n.Attr = filterAttributes(n.Attr)

	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		cleanNode(c)
		c = next
	}
}

func filterAttributes(attrs []html.Attribute) []html.Attribute {
	var kept []html.Attribute
	for _, attr := range attrs {
		if shouldRemoveAttr(attr.Key) {
			continue
		}
		kept = append(kept, attr)
	}
	return kept
}

func shouldRemoveAttr(key string) bool {
	for _, r := range attrsToRemove {
		if key == r {
			return true
		}
	}
	// Keep aria-label: the analyzer reads it for element names.
	if key == "aria-label" {
		return false
	}
	return strings.HasPrefix(key, "data-") || strings.HasPrefix(key, "aria-") || strings.HasPrefix(key, "on")
}

func truncateHTML(s string, maxSize int) string {
	if len(s) > maxSize {
		return s[:maxSize] + "\n<!-- truncated -->"
	}
	return s
}
