package classifier

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var amountExpr = regexp.MustCompile(`(?i)\$\s?(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d+))?\s*(thousand|million|billion|bn|k|m)?\b`)

// normalize lower-cases text, strips diacritics and turns every
// non-alphanumeric rune (including '_' and '-') into a single space.
func normalize(text string) string {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, text)
	if err != nil {
		stripped = text
	}

	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, stripped)

	return strings.Join(strings.Fields(mapped), " ")
}

// document is normalized text prepared for phrase and word lookups.
type document struct {
	padded string
	words  map[string]struct{}
}

func newDocument(text string) document {
	normalized := normalize(text)
	words := map[string]struct{}{}
	for _, w := range strings.Fields(normalized) {
		words[w] = struct{}{}
	}
	return document{padded: " " + normalized + " ", words: words}
}

// has reports whether a normalized term occurs on word boundaries.
func (d document) has(term string) bool {
	if term == "" {
		return false
	}
	if !strings.Contains(term, " ") {
		_, ok := d.words[term]
		return ok
	}
	return strings.Contains(d.padded, " "+term+" ")
}

func (d document) hasAny(terms []string) bool {
	for _, t := range terms {
		if d.has(t) {
			return true
		}
	}
	return false
}

func normalizeAll(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if n := normalize(t); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// extractAmount returns the largest dollar figure mentioned in text.
func extractAmount(text string) float64 {
	var largest float64
	for _, m := range amountExpr.FindAllStringSubmatch(text, -1) {
		whole, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		if m[2] != "" {
			if frac, err := strconv.ParseFloat("0."+m[2], 64); err == nil {
				whole += frac
			}
		}
		switch strings.ToLower(m[3]) {
		case "thousand", "k":
			whole *= 1e3
		case "million", "m":
			whole *= 1e6
		case "billion", "bn":
			whole *= 1e9
		}
		largest = math.Max(largest, whole)
	}
	return largest
}
