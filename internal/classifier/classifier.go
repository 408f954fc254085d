// Package classifier scores text against category keyword dictionaries and
// derives severity, orientation, impact, noise and credibility signals.
package classifier

import (
	"math"
	"strings"

	"EvidenceLedger/internal/canonical"
	"EvidenceLedger/internal/domain"
)

const (
	minConfidence  = 0.35
	maxConfidence  = 0.98
	confidenceBase = 10.0
	confidencePad  = 4.0
	maxRelevance   = 20
)

type compiledDictionary struct {
	phrases []string
	words   []string
}

// Classifier is a rule-based text classifier. It is safe for concurrent use.
type Classifier struct {
	rules        Rules
	dictionaries map[domain.Category]compiledDictionary
	guards       []Guard
	noise        []string
	severe       []string
	moderate     []string
	negative     []string
	positive     []string
}

// New compiles rules into a classifier; empty rules fall back to DefaultRules.
func New(rules Rules) *Classifier {
	if len(rules.Dictionaries) == 0 {
		rules = DefaultRules()
	}
	rules = withDefaults(rules)

	c := &Classifier{
		rules:        rules,
		dictionaries: make(map[domain.Category]compiledDictionary, len(rules.Dictionaries)),
		noise:        normalizeAll(rules.NoisePatterns),
		severe:       normalizeAll(rules.SevereTerms),
		moderate:     normalizeAll(rules.ModerateTerms),
		negative:     normalizeAll(rules.NegativeTerms),
		positive:     normalizeAll(rules.PositiveTerms),
	}
	for cat, dict := range rules.Dictionaries {
		c.dictionaries[cat] = compiledDictionary{
			phrases: normalizeAll(dict.Phrases),
			words:   normalizeAll(dict.Words),
		}
	}
	for _, g := range rules.Guards {
		if phrase := normalize(g.Phrase); phrase != "" {
			g.Phrase = phrase
			c.guards = append(c.guards, g)
		}
	}
	return c
}

// Classify scores text and returns the full classification verdict.
// Empty text yields a classification without a primary category.
func (c *Classifier) Classify(text, sourceDomain string) domain.Classification {
	doc := newDocument(text)
	host := canonical.Hostname(sourceDomain)

	result := domain.Classification{
		Severity:    domain.SeverityMinor,
		Orientation: domain.OrientationMixed,
		Impacts:     map[domain.Category]float64{},
		Credibility: c.credibility(host),
		Scores:      c.score(doc),
		Amount:      extractAmount(text),
	}

	primaryScore := 0
	for _, cat := range domain.Categories {
		if s := result.Scores[cat]; s > primaryScore {
			primaryScore = s
			result.Primary = cat
		}
	}
	if result.Primary != "" {
		result.Confidence = confidence(primaryScore)
		result.Relevance = min(primaryScore, maxRelevance)
	}

	if cat, ok := c.regulatorCategory(host); ok {
		result.Primary = cat
		result.Confidence = math.Max(confidence(result.Scores[cat]), c.rules.OverrideConfidence)
		result.Relevance = max(min(result.Scores[cat], maxRelevance), c.rules.OverrideRelevance)
	}

	for _, cat := range domain.Categories {
		if cat != result.Primary && result.Scores[cat] >= c.rules.SecondaryThreshold {
			result.Secondary = append(result.Secondary, cat)
		}
	}

	result.IsNoise = doc.hasAny(c.noise) && (matchesAny(host, c.rules.LowSignalDomains) || result.Primary == "")
	result.Severity = c.severity(doc)
	result.Orientation = c.orientation(doc)

	if result.Primary != "" {
		magnitude := c.rules.SeverityWeights[result.Severity] * result.Orientation.Sign() * result.Credibility
		result.Impacts[result.Primary] = magnitude
		for _, cat := range result.Secondary {
			result.Impacts[cat] = magnitude * c.rules.SecondaryShare
		}
	}

	return result
}

// Rules exposes the compiled rule set.
func (c *Classifier) Rules() Rules {
	return c.rules
}

func (c *Classifier) score(doc document) map[domain.Category]int {
	scores := make(map[domain.Category]int, len(c.dictionaries))
	for cat, dict := range c.dictionaries {
		total := 0
		for _, p := range dict.phrases {
			if doc.has(p) {
				total += c.rules.PhraseScore
			}
		}
		for _, w := range dict.words {
			if doc.has(w) {
				total += c.rules.WordScore
			}
		}
		scores[cat] = total
	}

	for _, g := range c.guards {
		if !doc.has(g.Phrase) {
			continue
		}
		if g.Zero {
			scores[g.Category] = 0
			continue
		}
		scores[g.Category] = max(scores[g.Category]-g.Penalty, 0)
	}
	return scores
}

func (c *Classifier) severity(doc document) domain.Severity {
	switch {
	case doc.hasAny(c.severe):
		return domain.SeveritySevere
	case doc.hasAny(c.moderate):
		return domain.SeverityModerate
	default:
		return domain.SeverityMinor
	}
}

func (c *Classifier) orientation(doc document) domain.Orientation {
	neg := doc.hasAny(c.negative)
	pos := doc.hasAny(c.positive)
	switch {
	case neg && !pos:
		return domain.OrientationNegative
	case pos && !neg:
		return domain.OrientationPositive
	default:
		return domain.OrientationMixed
	}
}

func (c *Classifier) credibility(host string) float64 {
	switch {
	case host == "":
		return c.rules.DefaultCredit
	case hasSuffixAny(host, c.rules.OfficialSuffixes):
		return c.rules.OfficialCredit
	case matchesAny(host, c.rules.HighCredibility):
		return c.rules.HighCredit
	default:
		return c.rules.DefaultCredit
	}
}

func (c *Classifier) regulatorCategory(host string) (domain.Category, bool) {
	if host == "" {
		return "", false
	}
	for d, cat := range c.rules.RegulatorDomains {
		if matchesDomain(host, d) {
			return cat, true
		}
	}
	return "", false
}

func confidence(score int) float64 {
	p := float64(score)
	value := p / (math.Max(p, confidenceBase) + confidencePad)
	return math.Min(math.Max(value, minConfidence), maxConfidence)
}

func matchesDomain(host, d string) bool {
	d = strings.ToLower(strings.TrimSpace(d))
	if d == "" {
		return false
	}
	return host == d || strings.HasSuffix(host, "."+d)
}

func matchesAny(host string, domains []string) bool {
	for _, d := range domains {
		if matchesDomain(host, d) {
			return true
		}
	}
	return false
}

func hasSuffixAny(host string, suffixes []string) bool {
	for _, s := range suffixes {
		s = strings.ToLower(s)
		if host == strings.TrimPrefix(s, ".") || strings.HasSuffix(host, s) {
			return true
		}
	}
	return false
}

func withDefaults(r Rules) Rules {
	def := DefaultRules()
	if r.SeverityWeights == nil {
		r.SeverityWeights = def.SeverityWeights
	}
	if r.PhraseScore == 0 {
		r.PhraseScore = def.PhraseScore
	}
	if r.WordScore == 0 {
		r.WordScore = def.WordScore
	}
	if r.SecondaryThreshold == 0 {
		r.SecondaryThreshold = def.SecondaryThreshold
	}
	if r.SecondaryShare == 0 {
		r.SecondaryShare = def.SecondaryShare
	}
	if r.OverrideConfidence == 0 {
		r.OverrideConfidence = def.OverrideConfidence
	}
	if r.OverrideRelevance == 0 {
		r.OverrideRelevance = def.OverrideRelevance
	}
	if r.OfficialCredit == 0 {
		r.OfficialCredit = def.OfficialCredit
	}
	if r.HighCredit == 0 {
		r.HighCredit = def.HighCredit
	}
	if r.DefaultCredit == 0 {
		r.DefaultCredit = def.DefaultCredit
	}
	return r
}
