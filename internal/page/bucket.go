package page

import (
	"strings"

	"github.com/go-shiori/dom"
	"golang.org/x/net/html"
)

// Bucket is the locator's classification of an element tag.
type Bucket int

const (
	BucketOther Bucket = iota
	BucketBlockSemantic
	BucketInline
	BucketAmbiguousContainer
)

func (b Bucket) String() string {
	switch b {
	case BucketBlockSemantic:
		return "block-semantic"
	case BucketInline:
		return "inline"
	case BucketAmbiguousContainer:
		return "ambiguous-container"
	default:
		return "other"
	}
}

var (
	blockSemanticTags = []string{
		"p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "blockquote",
		"article", "section", "dd", "dt", "figcaption", "pre", "summary",
	}
	inlineTags = []string{
		"span", "a", "em", "strong", "b", "i", "u", "small", "code",
		"mark", "sub", "sup", "abbr", "cite", "q", "s", "label", "font",
	}
	ambiguousContainerTags = []string{
		"div", "td", "th", "caption", "main", "aside", "header", "footer",
		"nav", "dl", "ul", "ol", "table", "tr", "form", "details",
	}

	buckets = buildBuckets()
)

func buildBuckets() map[string]Bucket {
	out := make(map[string]Bucket, len(blockSemanticTags)+len(inlineTags)+len(ambiguousContainerTags))
	for _, tag := range blockSemanticTags {
		out[tag] = BucketBlockSemantic
	}
	for _, tag := range inlineTags {
		out[tag] = BucketInline
	}
	for _, tag := range ambiguousContainerTags {
		out[tag] = BucketAmbiguousContainer
	}
	return out
}

// Classify maps a tag name to its bucket. Unknown tags are BucketOther.
func Classify(tag string) Bucket {
	return buckets[strings.ToLower(strings.TrimSpace(tag))]
}

// ClassifyNode classifies an element node. Non-element nodes are BucketOther.
func ClassifyNode(n *html.Node) Bucket {
	if n == nil || n.Type != html.ElementNode {
		return BucketOther
	}
	return Classify(dom.TagName(n))
}

// IsInline reports whether n is an element in the inline bucket.
func IsInline(n *html.Node) bool {
	return ClassifyNode(n) == BucketInline
}
