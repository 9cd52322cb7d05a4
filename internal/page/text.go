package page

import (
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/dom"
	"golang.org/x/net/html"
)

// OwnerAttr marks every node the overlay subsystem inserts into a page.
const OwnerAttr = "data-glance-owner"

var hiddenTags = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
}

// OwnedByOverlay reports whether n itself carries the overlay marker.
func OwnedByOverlay(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && dom.HasAttribute(n, OwnerAttr)
}

// InsideOverlay reports whether n or any of its ancestors is overlay-owned.
func InsideOverlay(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if OwnedByOverlay(cur) {
			return true
		}
	}
	return false
}

// RenderedText returns the visible text of n with runs of whitespace collapsed
// to one space. Script-like subtrees and overlay output are excluded.
func RenderedText(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	collectText(n, &b)
	return strings.Join(strings.Fields(b.String()), " ")
}

// TextLength is the rune count of RenderedText.
func TextLength(n *html.Node) int {
	return utf8.RuneCountInString(RenderedText(n))
}

func collectText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if _, hidden := hiddenTags[dom.TagName(n)]; hidden {
			return
		}
		if OwnedByOverlay(n) {
			return
		}
	}

	// Block boundaries separate words; inline boundaries do not.
	boundary := n.Type == html.ElementNode && !IsInline(n)
	if boundary {
		b.WriteByte(' ')
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, b)
	}
	if boundary {
		b.WriteByte(' ')
	}
}
