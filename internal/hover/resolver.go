package hover

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"horse.fit/glance/internal/page"
)

// Kind says where a target's text came from.
type Kind int

const (
	KindSelection Kind = iota + 1
	KindElement
)

func (k Kind) String() string {
	switch k {
	case KindSelection:
		return "selection"
	case KindElement:
		return "element"
	default:
		return "unknown"
	}
}

// Selection is the page's current text selection. Either method may fail
// the way a browser selection range can.
type Selection interface {
	Text() (string, error)
	CommonAncestor() (*html.Node, error)
}

// StaticSelection is a fixed selection value.
type StaticSelection struct {
	Content  string
	Ancestor *html.Node
	Err      error
}

func (s StaticSelection) Text() (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Content, nil
}

func (s StaticSelection) CommonAncestor() (*html.Node, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Ancestor, nil
}

// Target is one resolved translation request. It is rebuilt on every
// resolution attempt.
type Target struct {
	Kind            Kind
	SourceText      string
	DOMAnchor       *html.Node
	InsertionAnchor *html.Node
}

// Resolve picks the current target: a non-empty selection first, then the
// paragraph around the hovered node. It returns nil when neither applies or
// when the candidate sits inside overlay output.
func Resolve(hovered *html.Node, sel Selection) *Target {
	if sel != nil {
		text, err := sel.Text()
		if err != nil {
			return nil
		}
		if text = strings.TrimSpace(text); text != "" {
			return selectionTarget(text, sel)
		}
	}

	if hovered == nil || page.InsideOverlay(hovered) {
		return nil
	}
	el := page.Locate(hovered)
	if el == nil {
		return nil
	}
	text := strings.TrimSpace(page.RenderedText(el))
	if n := utf8.RuneCountInString(text); n == 0 || n >= page.HardCap {
		return nil
	}
	return &Target{
		Kind:            KindElement,
		SourceText:      text,
		DOMAnchor:       el,
		InsertionAnchor: el,
	}
}

func selectionTarget(text string, sel Selection) *Target {
	ancestor, err := sel.CommonAncestor()
	if err != nil || ancestor == nil {
		return nil
	}
	if page.InsideOverlay(ancestor) {
		return nil
	}
	anchor := ancestor
	if anchor.Type != html.ElementNode {
		anchor = anchor.Parent
	}
	if anchor == nil || anchor.Type != html.ElementNode {
		return nil
	}
	return &Target{
		Kind:            KindSelection,
		SourceText:      text,
		DOMAnchor:       ancestor,
		InsertionAnchor: anchor,
	}
}
