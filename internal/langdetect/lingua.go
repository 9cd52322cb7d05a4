// Package langdetect decides which way a hover translation runs.
package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"

	"horse.fit/glance/internal/language"
)

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// Detect returns "zh" or "en" for text, or "" when it cannot tell.
// Short samples are decided by script alone.
func Detect(text string) string {
	sample := strings.TrimSpace(text)
	if sample == "" {
		return ""
	}

	han, letters := 0, 0
	for _, r := range sample {
		switch {
		case unicode.Is(unicode.Han, r):
			han++
			letters++
		case unicode.IsLetter(r):
			letters++
		}
	}
	if letters == 0 {
		return ""
	}
	if letters < 6 {
		if han*2 >= letters {
			return language.Chinese
		}
		return language.English
	}

	detected, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		if han*2 >= letters {
			return language.Chinese
		}
		return ""
	}
	if detected == lingua.Chinese {
		return language.Chinese
	}
	return language.English
}

// Direction returns the translation pair for text. Undetectable text is
// treated as English.
func Direction(text string) language.Pair {
	return language.PairFrom(Detect(text))
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(lingua.Chinese, lingua.English).
			WithMinimumRelativeDistance(0.1).
			Build()
	})
	return detector
}
