// Package htmlutil holds small helpers for pulling text out of parsed
// HTML documents.
package htmlutil

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// NodeText returns the concatenated text content of a node and its
// descendants, the way the browser's textContent does.
func NodeText(node *html.Node) string {
	var buffer bytes.Buffer
	nodeTextRecursive(node, &buffer)
	return buffer.String()
}

func nodeTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		nodeTextRecursive(child, buffer)
	}
}

var innerWhitespace = regexp.MustCompile(`\s+`)

// CellText returns the trimmed, whitespace-collapsed text of a selection.
// Rendered table cells frequently carry newlines and indentation from the
// markup, so raw text content is unusable for exact label comparison.
func CellText(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, node := range sel.Nodes {
		nodeTextRecursive(node, &buffer)
	}
	text := strings.TrimSpace(buffer.String())
	return innerWhitespace.ReplaceAllString(text, " ")
}

// CountInputs reports the number of input elements in a document.
func CountInputs(doc *goquery.Document) int {
	return doc.Find("input").Length()
}
