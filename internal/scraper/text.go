package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var headingTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

var blockTags = map[string]bool{
	"p": true, "br": true, "div": true, "section": true, "header": true, "footer": true,
}

var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true,
}

// trailingSpaceBeforeNewline collapses runs of whitespace that end in a
// newline down to a single newline.
var trailingSpaceBeforeNewline = regexp.MustCompile(`\s+\n`)

// ExtractText flattens page HTML into plain text preserving coarse structure:
// headings and block elements become line breaks, list items bullet lines. The content root is the first <main>, else the first
// <section>, else <body>.
func ExtractText(pageHTML string) (string, error) {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return "", fmt.Errorf("parsing page html: %w", err)
	}

	root := findFirstElement(doc, "main")
	if root == nil {
		root = findFirstElement(doc, "section")
	}
	if root == nil {
		root = findFirstElement(doc, "body")
	}
	if root == nil {
		root = doc
	}

	var b strings.Builder
	collectText(root, &b)

	text := trailingSpaceBeforeNewline.ReplaceAllString(b.String(), "\n")
	return strings.TrimSpace(text), nil
}

func findFirstElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findFirstElement(child, tag); found != nil {
			return found
		}
	}
	return nil
}

func collectText(n *html.Node, b *strings.Builder) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case html.TextNode:
			if t := strings.TrimSpace(child.Data); t != "" {
				b.WriteString(t)
				b.WriteByte(' ')
			}
		case html.ElementNode:
			tag := strings.ToLower(child.Data)
			if skipTags[tag] {
				continue
			}
			switch {
			case headingTags[tag]:
				b.WriteString("\n\n")
				collectText(child, b)
				b.WriteByte('\n')
			case tag == "li":
				b.WriteString("\n- ")
				collectText(child, b)
			case blockTags[tag]:
				b.WriteByte('\n')
				collectText(child, b)
				b.WriteByte('\n')
			default:
				collectText(child, b)
			}
		}
	}
}
