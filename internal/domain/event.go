package domain

import "time"

// Category is one of the fixed reputation dimensions.
type Category string

const (
	CategoryLabor       Category = "labor"
	CategoryEnvironment Category = "environment"
	CategoryPolitics    Category = "politics"
	CategorySocial      Category = "social"
)

// Categories lists every category in tie-break order.
var Categories = []Category{CategoryLabor, CategoryEnvironment, CategoryPolitics, CategorySocial}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Severity grades how serious an event is.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// Orientation describes whether an event reflects well or badly on the organization.
type Orientation string

const (
	OrientationPositive Orientation = "positive"
	OrientationNegative Orientation = "negative"
	OrientationMixed    Orientation = "mixed"
)

// Sign maps the orientation onto +1, -1 or 0.
func (o Orientation) Sign() float64 {
	switch o {
	case OrientationPositive:
		return 1
	case OrientationNegative:
		return -1
	default:
		return 0
	}
}

// Verification is the evidence level of an event. It only ever moves up.
type Verification string

const (
	VerificationUnverified   Verification = "unverified"
	VerificationCorroborated Verification = "corroborated"
	VerificationOfficial     Verification = "official"
)

// Rank orders verification levels; unknown values rank lowest.
func (v Verification) Rank() int {
	switch v {
	case VerificationCorroborated:
		return 1
	case VerificationOfficial:
		return 2
	default:
		return 0
	}
}

// Below lists the levels strictly lower than v.
func (v Verification) Below() []Verification {
	var out []Verification
	for _, level := range []Verification{VerificationUnverified, VerificationCorroborated, VerificationOfficial} {
		if level.Rank() < v.Rank() {
			out = append(out, level)
		}
	}
	return out
}

// Event is the canonical record of one real-world occurrence.
type Event struct {
	ID              string
	OrganizationID  string
	Category        Category
	Title           string
	Description     string
	Severity        Severity
	Orientation     Orientation
	Verification    Verification
	OccurredAt      time.Time
	CategoryImpacts map[Category]float64
	IsIrrelevant    bool
	RelevanceRaw    int
	Confidence      float64
	Amount          float64
	SourceURL       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EventSource is one article backing an Event.
type EventSource struct {
	ID                string
	EventID           string
	OrganizationID    string
	SourceName        string
	CanonicalURL      string
	RegistrableDomain string
	TitleFingerprint  uint64
	Quote             string
	SourceDate        time.Time
	IsPrimary         bool
	DomainOwner       string
	DomainKind        string
}

// Classification is the classifier verdict for a piece of text.
type Classification struct {
	Primary     Category
	Secondary   []Category
	Confidence  float64
	Severity    Severity
	Orientation Orientation
	Impacts     map[Category]float64
	IsNoise     bool
	Credibility float64
	Relevance   int
	Amount      float64
	Scores      map[Category]int
}
