package usecase

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EvidenceLedger/internal/classifier"
	"EvidenceLedger/internal/corroboration"
	"EvidenceLedger/internal/domain"
	"EvidenceLedger/internal/infrastructure/storage"
	"EvidenceLedger/internal/notify"
	"EvidenceLedger/internal/orchestrator"
	"EvidenceLedger/internal/ports"
	"EvidenceLedger/internal/scoring"
)

var testNow = time.Date(2026, 4, 10, 12, 1, 0, 0, time.UTC)

// staticProvider returns fixed articles per organization name.
type staticProvider struct {
	name     string
	articles map[string][]domain.Article
}

func (p staticProvider) Name() string { return p.name }

func (p staticProvider) Search(_ context.Context, organizationName string) ([]domain.Article, error) {
	return p.articles[organizationName], nil
}

func newTestPipeline(t *testing.T, providers ...ports.Provider) (*Pipeline, *storage.Store) {
	t.Helper()
	store, err := storage.Open(context.Background(), storage.DriverSQLite, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := func() time.Time { return testNow }
	p := NewPipeline(PipelineDeps{
		Orchestrator:  orchestrator.New(providers, orchestrator.Config{}, nil, nil),
		Classifier:    classifier.New(classifier.DefaultRules()),
		Corroboration: corroboration.New(store, corroboration.Config{}, nil, nil),
		Notifier:      notify.New(store, notify.Config{}, clock, nil),
		Scoring:       scoring.NewEngine(scoring.Config{}, nil, nil),
		Events:        store,
		Inputs:        store,
		Scores:        store,
		Organizations: store,
		Concurrency:   2,
		Clock:         clock,
	})
	return p, store
}

func recallArticles() (news, wire []domain.Article) {
	day := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	first := domain.Article{
		Title:       "Acme recalls 20,000 space heaters over fire hazard",
		Summary:     "Consumers are told to stop using the units.",
		URL:         "https://news.example.com/acme-recall",
		PublishedAt: day,
		SourceName:  "example news",
	}
	again := first
	again.URL = "https://news.example.com/acme-recall/?utm_source=rss"

	second := domain.Article{
		Title:       "Acme recalls 20,000 space heaters after fire hazard reports",
		Summary:     "Consumer safety regulators announced the recall on Thursday.",
		URL:         "https://wire.example.org/story/123",
		PublishedAt: day.Add(24 * time.Hour),
		SourceName:  "example wire",
	}
	return []domain.Article{first, again}, []domain.Article{second}
}

func TestIngestCorroboratesAndSchedulesOneJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	news, wire := recallArticles()
	p, store := newTestPipeline(t,
		staticProvider{name: "news", articles: map[string][]domain.Article{"Acme": news}},
		staticProvider{name: "wire", articles: map[string][]domain.Article{"Acme": wire}},
	)
	acme := domain.Organization{ID: "acme", Name: "Acme"}

	report, err := p.Ingest(ctx, nil, acme, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Fetched)
	assert.Equal(t, 2, report.Unique)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Merged)
	// The tracking-param copy of the news story collapses in the batch.
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, map[string]int{corroboration.ReasonDuplicate: 1}, report.SkipReasons)
	assert.Equal(t, report.Fetched, report.Unique+report.Skipped)
	assert.Less(t, report.Impacts[domain.CategorySocial], 0.0)
	require.Len(t, report.Providers, 2)

	events, err := store.ListEvents(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.CategorySocial, events[0].Category)
	assert.Equal(t, domain.VerificationCorroborated, events[0].Verification)

	jobs, err := store.Jobs(ctx, notify.Stage)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, report.Job.Key, jobs[0].Key)
	assert.True(t, strings.HasPrefix(jobs[0].Key, "acme:"))

	// A second pass only sees known sources and touches nothing.
	again, err := p.Ingest(ctx, nil, acme, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, again.Skipped)
	assert.Equal(t, 2, again.SkipReasons[corroboration.ReasonKnownSource])
	assert.Equal(t, 1, again.SkipReasons[corroboration.ReasonDuplicate])
	assert.Empty(t, again.Job.Key)

	jobs, err = store.Jobs(ctx, notify.Stage)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].Triggers)
}

func TestIngestDryRunWritesNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	news, _ := recallArticles()
	p, store := newTestPipeline(t, staticProvider{name: "news", articles: map[string][]domain.Article{"Acme": news}})

	report, err := p.Ingest(ctx, nil, domain.Organization{ID: "acme", Name: "Acme"}, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	events, err := store.ListEvents(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, events)

	jobs, err := store.Jobs(ctx, notify.Stage)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestIngestAllKeepsOrganizationsApart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	news, wire := recallArticles()
	globex := domain.Article{
		Title:       "Globex fined $2 million after chemical spill contaminated river",
		Summary:     "The EPA said pollution reached drinking water.",
		URL:         "https://news.example.com/globex-spill",
		PublishedAt: time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC),
		SourceName:  "example news",
	}
	p, store := newTestPipeline(t,
		staticProvider{name: "news", articles: map[string][]domain.Article{"Acme": news, "Globex": {globex}}},
		staticProvider{name: "wire", articles: map[string][]domain.Article{"Acme": wire}},
	)

	reports, err := p.IngestAll(ctx, []domain.Organization{{ID: "acme", Name: "Acme"}, {ID: "globex", Name: "Globex"}}, Options{})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "acme", reports[0].OrganizationID)
	assert.Equal(t, 1, reports[0].Created)
	assert.Equal(t, "globex", reports[1].OrganizationID)
	assert.Equal(t, 1, reports[1].Created)

	events, err := store.ListEvents(ctx, "globex")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.CategoryEnvironment, events[0].Category)
	assert.InDelta(t, 2_000_000, events[0].Amount, 1e-6)

	jobs, err := store.Jobs(ctx, notify.Stage)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestRecategorizeRewritesClassification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, store := newTestPipeline(t)

	event := domain.Event{
		ID:              "evt-1",
		OrganizationID:  "acme",
		Category:        domain.CategoryLabor,
		Title:           "Acme recalls 20,000 space heaters over fire hazard",
		Description:     "Consumers are told to stop using the units.",
		Severity:        domain.SeverityMinor,
		Orientation:     domain.OrientationMixed,
		Verification:    domain.VerificationCorroborated,
		OccurredAt:      time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		CategoryImpacts: map[domain.Category]float64{domain.CategoryLabor: 0},
		SourceURL:       "https://news.example.com/acme-recall",
		CreatedAt:       testNow,
		UpdatedAt:       testNow,
	}
	source := domain.EventSource{
		ID:                "src-1",
		EventID:           event.ID,
		OrganizationID:    "acme",
		CanonicalURL:      event.SourceURL,
		RegistrableDomain: "example.com",
		SourceDate:        event.OccurredAt,
		IsPrimary:         true,
	}
	require.NoError(t, store.CreateEvent(ctx, event, source))

	dry, err := p.Recategorize(ctx, "acme", Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, dry.Updated)
	unchanged, err := store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryLabor, unchanged.Category)

	report, err := p.Recategorize(ctx, "acme", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Examined)
	assert.Equal(t, 1, report.Updated)

	got, err := store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CategorySocial, got.Category)
	assert.Equal(t, domain.SeverityModerate, got.Severity)
	assert.Equal(t, domain.OrientationNegative, got.Orientation)
	assert.Equal(t, domain.VerificationCorroborated, got.Verification)

	// Running again finds nothing to change.
	report, err = p.Recategorize(ctx, "acme", Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Updated)
}

func TestScoreStoresBrandScore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	news, wire := recallArticles()
	p, store := newTestPipeline(t,
		staticProvider{name: "news", articles: map[string][]domain.Article{"Acme": news}},
		staticProvider{name: "wire", articles: map[string][]domain.Article{"Acme": wire}},
	)
	require.NoError(t, store.UpsertOrganization(ctx, domain.Organization{ID: "acme", Name: "Acme"}))
	require.NoError(t, store.UpsertOrganization(ctx, domain.Organization{ID: "quiet", Name: "Quiet Co"}))

	_, err := p.IngestAll(ctx, []domain.Organization{{ID: "acme", Name: "Acme"}}, Options{})
	require.NoError(t, err)

	dry, err := p.Score(ctx, "acme", Options{DryRun: true})
	require.NoError(t, err)
	assert.Less(t, dry.Scores[domain.CategorySocial], 70.0)
	_, err = store.BrandScore(ctx, "acme")
	require.ErrorIs(t, err, ports.ErrNotFound)

	scores, err := p.ScoreAll(ctx, Options{})
	require.NoError(t, err)
	require.Len(t, scores, 2)

	stored, err := store.BrandScore(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, dry.Scores[domain.CategorySocial], stored.Scores[domain.CategorySocial])
	assert.Equal(t, 70.0, stored.Scores[domain.CategoryLabor])
	assert.Equal(t, 1, stored.Breakdown[domain.CategorySocial].EvidenceCount)

	quiet, err := store.BrandScore(ctx, "quiet")
	require.NoError(t, err)
	for _, c := range domain.Categories {
		assert.Equal(t, 70.0, quiet.Scores[c], c)
	}
}
