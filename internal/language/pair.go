// Package language holds the two languages hover translation moves between.
package language

import "strings"

const (
	Chinese = "zh"
	English = "en"
)

// Pair is the direction of one translation.
type Pair struct {
	Source string `json:"source_lang"`
	Target string `json:"target_lang"`
}

func (p Pair) String() string {
	return p.Source + "->" + p.Target
}

// Other returns the opposite side of the Chinese/English pair. Anything that
// is not Chinese is translated into Chinese.
func Other(code string) string {
	if NormalizeCode(code) == Chinese {
		return English
	}
	return Chinese
}

// PairFrom builds the pair that translates out of source.
func PairFrom(source string) Pair {
	code := NormalizeCode(source)
	if code != Chinese {
		code = English
	}
	return Pair{Source: code, Target: Other(code)}
}

// NormalizeCode returns the lowercase primary subtag of a tag such as
// "zh_Hans" or "en-US". Invalid tags normalize to "".
func NormalizeCode(raw string) string {
	tag := strings.ToLower(strings.TrimSpace(raw))
	if cut := strings.IndexAny(tag, "-_"); cut >= 0 {
		tag = tag[:cut]
	}
	if tag == "" {
		return ""
	}
	for _, r := range tag {
		if r < 'a' || r > 'z' {
			return ""
		}
	}
	return tag
}
