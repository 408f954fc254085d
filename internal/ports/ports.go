package ports

import (
	"context"
	"errors"
	"time"

	"EvidenceLedger/internal/domain"
)

// ErrDuplicate signals a uniqueness constraint violation at the store.
var ErrDuplicate = errors.New("duplicate record")

// ErrNotFound signals a missing record.
var ErrNotFound = errors.New("record not found")

// Provider searches one upstream source for articles about an organization.
type Provider interface {
	Name() string
	Search(ctx context.Context, organizationName string) ([]domain.Article, error)
}

// EventStore persists events and their sources for deduplication and corroboration.
type EventStore interface {
	FindSourceByURL(ctx context.Context, organizationID, canonicalURL string) (domain.EventSource, error)
	FindCandidateEvents(ctx context.Context, organizationID string, category domain.Category, from, to time.Time) ([]domain.Event, error)
	CreateEvent(ctx context.Context, event domain.Event, source domain.EventSource) error
	AddSource(ctx context.Context, source domain.EventSource) error
	CountSources(ctx context.Context, eventID string) (int, error)
	UpgradeVerification(ctx context.Context, eventID string, level domain.Verification) (bool, error)
	ListEvents(ctx context.Context, organizationID string) ([]domain.Event, error)
	PrimarySource(ctx context.Context, eventID string) (domain.EventSource, error)
	UpdateClassification(ctx context.Context, event domain.Event) error
}

// InputsReader loads the aggregated scoring view for one window.
type InputsReader interface {
	BaselineInputs(ctx context.Context, organizationID string, window domain.Window, now time.Time) (domain.BaselineInputs, error)
}

// ScoreStore persists brand scores atomically.
type ScoreStore interface {
	UpsertBrandScore(ctx context.Context, score domain.BrandScore) error
}

// JobQueue accepts coalesced downstream jobs.
type JobQueue interface {
	UpsertJob(ctx context.Context, job domain.Job) error
}

// JobReader loads a pending job by its coalescing key. A missing job is
// ErrNotFound.
type JobReader interface {
	Job(ctx context.Context, stage, key string) (domain.Job, error)
}

// OrganizationStore resolves organizations tracked by the pipeline.
type OrganizationStore interface {
	GetOrganization(ctx context.Context, id string) (domain.Organization, error)
	ListOrganizations(ctx context.Context) ([]domain.Organization, error)
	UpsertOrganization(ctx context.Context, org domain.Organization) error
}
