package corroboration

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const minTokenLength = 4

// TitleSimilarity is the Jaccard index over lowercase tokens longer than three characters.
func TitleSimilarity(a, b string) float64 {
	setA := significantTokens(a)
	setB := significantTokens(b)

	intersection := 0
	for word := range setA {
		if _, ok := setB[word]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func significantTokens(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= minTokenLength {
			set[f] = struct{}{}
		}
	}
	return set
}
