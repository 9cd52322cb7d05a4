// Package page finds the translatable unit under a point in an HTML document.
//
// The locator classifies tags into closed buckets and walks ancestors toward
// the body, preferring semantic paragraph-like elements and falling back to
// size-bounded generic containers.
package page

import (
	"fmt"
	"io"

	"github.com/andybalholm/cascadia"
	"github.com/go-shiori/dom"
	"golang.org/x/net/html"
)

const (
	// SoftCap is the rendered length below which an ambiguous container is
	// accepted as an atomic line.
	SoftCap = 500
	// HardCap is the rendered length at or above which a container is too
	// large to be a paragraph.
	HardCap = 5000
)

// Locate returns the best enclosing translatable element for n, or nil.
// Text nodes start at their parent. Body and html are never returned, and
// anything inside overlay output yields nil.
func Locate(n *html.Node) *html.Node {
	cur := n
	if cur != nil && cur.Type != html.ElementNode {
		cur = cur.Parent
	}

	for ; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if isBoundary(cur) {
			return nil
		}
		if OwnedByOverlay(cur) {
			return nil
		}

		switch ClassifyNode(cur) {
		case BucketBlockSemantic:
			return cur
		case BucketAmbiguousContainer:
			length := TextLength(cur)
			if length == 0 || length >= HardCap {
				continue
			}
			if length < SoftCap {
				return cur
			}
			if blockSemanticChildren(cur) <= 1 {
				return cur
			}
		}
	}
	return nil
}

func isBoundary(n *html.Node) bool {
	switch dom.TagName(n) {
	case "body", "html":
		return true
	}
	return false
}

func blockSemanticChildren(n *html.Node) int {
	count := 0
	for _, child := range dom.Children(n) {
		if ClassifyNode(child) == BucketBlockSemantic {
			count++
		}
	}
	return count
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*html.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Body returns the document's body element, or nil.
func Body(doc *html.Node) *html.Node {
	return dom.QuerySelector(doc, "body")
}

// ElementAt returns the first element under root matching selector.
func ElementAt(root *html.Node, selector string) (*html.Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("compile selector %q: %w", selector, err)
	}
	match := sel.MatchFirst(root)
	if match == nil {
		return nil, fmt.Errorf("no element matches %q", selector)
	}
	return match, nil
}

// Render serializes n back to HTML.
func Render(w io.Writer, n *html.Node) error {
	if err := html.Render(w, n); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}
