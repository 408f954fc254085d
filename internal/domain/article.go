package domain

import "time"

// Article is a normalized record produced by an upstream provider.
type Article struct {
	Title       string
	Summary     string
	URL         string
	PublishedAt time.Time
	SourceName  string
	RawPayload  []byte
	// Regulatory marks articles from providers configured as official regulator feeds.
	Regulatory bool
}

// Text joins the fields the classifier reads.
func (a Article) Text() string {
	if a.Summary == "" {
		return a.Title
	}
	return a.Title + " " + a.Summary
}

// Organization identifies a tracked company.
type Organization struct {
	ID   string
	Name string
}
