package hover

import (
	"github.com/go-shiori/dom"
	"github.com/google/uuid"
	"golang.org/x/net/html"

	"horse.fit/glance/internal/page"
)

const (
	OverlayClass    = "glance-overlay"
	OverlayOwner    = "overlay"
	OverlayIDAttr   = "data-glance-id"
	LoadingAttr     = "data-loading"
	ActionAttr      = "data-glance-action"
	PartAttr        = "data-glance-part"
	ActionClose     = "close"
	PartText        = "text"
	LoadingText     = "Translating..."
	closeButtonText = "×"
)

// InsertionPoint walks up from anchor through inline elements and returns the
// first element that is not inline.
func InsertionPoint(anchor *html.Node) *html.Node {
	cur := anchor
	if cur != nil && cur.Type != html.ElementNode {
		cur = cur.Parent
	}
	for cur != nil && page.IsInline(cur) && cur.Parent != nil && cur.Parent.Type == html.ElementNode {
		cur = cur.Parent
	}
	return cur
}

// OverlayAfter returns the overlay placed directly after point, if any.
func OverlayAfter(point *html.Node) *html.Node {
	if point == nil {
		return nil
	}
	next := dom.NextElementSibling(point)
	if isOverlay(next) {
		return next
	}
	return nil
}

// Show inserts a fresh overlay directly after the target's insertion point,
// removing the one already there. It returns nil when the anchor is detached.
func Show(target *Target, loading bool) *html.Node {
	if target == nil {
		return nil
	}
	point := InsertionPoint(target.InsertionAnchor)
	if point == nil || point.Parent == nil {
		return nil
	}
	if existing := OverlayAfter(point); existing != nil {
		Close(existing)
	}

	overlay := dom.CreateElement("div")
	dom.SetAttribute(overlay, "class", OverlayClass)
	dom.SetAttribute(overlay, page.OwnerAttr, OverlayOwner)
	dom.SetAttribute(overlay, OverlayIDAttr, uuid.NewString())

	body := dom.CreateElement("div")
	dom.SetAttribute(body, PartAttr, PartText)
	dom.AppendChild(overlay, body)

	closeButton := dom.CreateElement("button")
	dom.SetAttribute(closeButton, "type", "button")
	dom.SetAttribute(closeButton, ActionAttr, ActionClose)
	dom.SetTextContent(closeButton, closeButtonText)
	dom.AppendChild(overlay, closeButton)

	if loading {
		dom.SetAttribute(overlay, LoadingAttr, "true")
		dom.SetTextContent(body, LoadingText)
	}

	point.Parent.InsertBefore(overlay, point.NextSibling)
	return overlay
}

// Update replaces the overlay's text and clears its loading flag.
func Update(overlay *html.Node, text string) {
	if overlay == nil {
		return
	}
	if body := textPart(overlay); body != nil {
		dom.SetTextContent(body, text)
	}
	dom.RemoveAttribute(overlay, LoadingAttr)
}

// Close detaches the overlay from the document.
func Close(overlay *html.Node) {
	if overlay == nil || overlay.Parent == nil {
		return
	}
	overlay.Parent.RemoveChild(overlay)
}

// Text returns the text currently shown by the overlay.
func Text(overlay *html.Node) string {
	if body := textPart(overlay); body != nil {
		return dom.TextContent(body)
	}
	return ""
}

// Loading reports whether the overlay still waits for its first text.
func Loading(overlay *html.Node) bool {
	return overlay != nil && dom.HasAttribute(overlay, LoadingAttr)
}

// closeTarget returns the overlay whose close control contains n.
func closeTarget(n *html.Node) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && dom.GetAttribute(cur, ActionAttr) == ActionClose {
			for owner := cur.Parent; owner != nil; owner = owner.Parent {
				if isOverlay(owner) {
					return owner
				}
			}
			return nil
		}
	}
	return nil
}

func isOverlay(n *html.Node) bool {
	return page.OwnedByOverlay(n) && dom.GetAttribute(n, page.OwnerAttr) == OverlayOwner
}

func textPart(overlay *html.Node) *html.Node {
	if overlay == nil {
		return nil
	}
	for _, child := range dom.Children(overlay) {
		if dom.GetAttribute(child, PartAttr) == PartText {
			return child
		}
	}
	return nil
}
