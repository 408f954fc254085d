package domain

import "time"

// Window names an aggregation horizon.
type Window string

const (
	Window24Months Window = "24m"
	Window90Days   Window = "90d"
)

// Since returns the start of the window ending at now.
func (w Window) Since(now time.Time) time.Time {
	switch w {
	case Window90Days:
		return now.AddDate(0, 0, -90)
	default:
		return now.AddDate(0, -24, 0)
	}
}

// LedgerStats aggregates ledger events of one category inside a window.
type LedgerStats struct {
	Violations      int
	Fines           float64
	Sentiment       float64
	SevereIncidents int
	Events          int
	DistinctSources int
	AllTimeEvents   int
	LastYearEvents  int
}

// RecallCounts splits product recalls by class.
type RecallCounts struct {
	ClassI   int
	ClassII  int
	ClassIII int
}

// BaselineInputs is the read-only aggregate view the scoring engine consumes.
type BaselineInputs struct {
	OrganizationID      string
	Window              Window
	Ledger              map[Category]LedgerStats
	DonationsLeft       float64
	DonationsRight      float64
	Lobbying            float64
	EmissionsPercentile float64
	Certifications      int
	Recalls             RecallCounts
	Lawsuits            int
}

// Stats returns the ledger stats of a category, zero when absent.
func (b BaselineInputs) Stats(c Category) LedgerStats {
	if b.Ledger == nil {
		return LedgerStats{}
	}
	return b.Ledger[c]
}

// CategoryBreakdown explains one category score.
type CategoryBreakdown struct {
	Base          float64   `json:"base"`
	WindowDelta   float64   `json:"windowDelta"`
	Value         float64   `json:"value"`
	Confidence    float64   `json:"confidence"`
	EvidenceCount int       `json:"evidenceCount"`
	Reason        string    `json:"reason"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// BrandScore is the persisted scoring output for an organization.
type BrandScore struct {
	OrganizationID string
	Scores         map[Category]float64
	Breakdown      map[Category]CategoryBreakdown
	LastUpdated    time.Time
}

// Job is a coalesced unit of downstream work.
type Job struct {
	Stage     string
	Key       string
	Payload   []byte
	NotBefore time.Time
	Triggers  int
}
