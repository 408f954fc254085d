package corroboration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EvidenceLedger/internal/domain"
	"EvidenceLedger/internal/infrastructure/storage"
	"EvidenceLedger/internal/metrics"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *storage.Store, *metrics.Metrics) {
	t.Helper()
	store, err := storage.Open(context.Background(), storage.DriverSQLite, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := metrics.New()
	engine := New(store, cfg, nil, m)
	engine.now = func() time.Time { return time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC) }
	return engine, store, m
}

func recallClassification() domain.Classification {
	return domain.Classification{
		Primary:     domain.CategorySocial,
		Confidence:  0.8,
		Severity:    domain.SeverityModerate,
		Orientation: domain.OrientationNegative,
		Impacts:     map[domain.Category]float64{domain.CategorySocial: -1.8},
		Relevance:   12,
	}
}

func TestTitleSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "Acme recalls space heaters", b: "Acme recalls space heaters", want: 1},
		{name: "short tokens ignored", a: "the cat sat", b: "a dog ran", want: 0},
		{name: "punctuation and case", a: "ACME: Recalls, Heaters!", b: "acme recalls heaters", want: 1},
		{name: "partial", a: "Acme recalls 20,000 space heaters over fire hazard", b: "Acme recalls 20,000 space heaters after fire hazard reports", want: 6.0 / 9.0},
		{name: "empty", a: "", b: "", want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, TitleSimilarity(tc.a, tc.b), 1e-9)
		})
	}
}

func TestSimilarRecallBecomesSourceAndCorroborates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, store, m := newTestEngine(t, Config{})
	day := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	first, err := engine.Resolve(ctx, "acme", domain.Article{
		Title:       "Acme recalls 20,000 space heaters over fire hazard",
		Summary:     "The company said units may overheat.",
		URL:         "https://news.example.com/acme-recall?utm_source=x",
		PublishedAt: day,
		SourceName:  "example",
	}, recallClassification())
	require.NoError(t, err)
	require.Equal(t, ActionCreate, first.Action)
	assert.Equal(t, domain.VerificationUnverified, first.Verification)

	second, err := engine.Resolve(ctx, "acme", domain.Article{
		Title:       "Acme recalls 20,000 space heaters after fire hazard reports",
		URL:         "https://wire.example.org/story/123",
		PublishedAt: day.Add(24 * time.Hour),
		SourceName:  "wire",
	}, recallClassification())
	require.NoError(t, err)
	assert.Equal(t, ActionMerge, second.Action)
	assert.Equal(t, first.EventID, second.EventID)
	assert.Equal(t, domain.VerificationCorroborated, second.Verification)

	events, err := store.ListEvents(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.VerificationCorroborated, events[0].Verification)

	count, err := store.CountSources(ctx, first.EventID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions().WithLabelValues("create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions().WithLabelValues("merge")))
}

func TestSameURLWithTrackingParamsIsSkipped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, store, _ := newTestEngine(t, Config{})
	article := domain.Article{
		Title:       "Acme fined for wage theft",
		URL:         "https://news.example.com/acme-wages/?utm_campaign=a",
		PublishedAt: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	cls := recallClassification()
	cls.Primary = domain.CategoryLabor

	first, err := engine.Resolve(ctx, "acme", article, cls)
	require.NoError(t, err)
	require.Equal(t, ActionCreate, first.Action)

	article.URL = "https://NEWS.example.com/acme-wages?gclid=zzz#comments"
	second, err := engine.Resolve(ctx, "acme", article, cls)
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, second.Action)
	assert.Equal(t, ReasonKnownSource, second.Reason)
	assert.Equal(t, first.EventID, second.EventID)

	events, err := store.ListEvents(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestDissimilarOrDistantArticlesCreateNewEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, store, _ := newTestEngine(t, Config{})
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	cls := recallClassification()

	_, err := engine.Resolve(ctx, "acme", domain.Article{Title: "Acme recalls space heaters over fire hazard", URL: "https://a.example.com/1", PublishedAt: day}, cls)
	require.NoError(t, err)

	far, err := engine.Resolve(ctx, "acme", domain.Article{Title: "Acme recalls space heaters over fire hazard", URL: "https://b.example.com/2", PublishedAt: day.AddDate(0, 0, 5)}, cls)
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, far.Action, "outside the window")

	different, err := engine.Resolve(ctx, "acme", domain.Article{Title: "Acme sued over misleading advertising claims", URL: "https://c.example.com/3", PublishedAt: day}, cls)
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, different.Action)

	events, err := store.ListEvents(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestNoiseAndLowRelevanceAreSkipped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, Config{})
	article := domain.Article{Title: "Acme stock price target raised", URL: "https://fin.example.com/1"}

	noisy := recallClassification()
	noisy.IsNoise = true
	res, err := engine.Resolve(ctx, "acme", article, noisy)
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, res.Action)
	assert.Equal(t, ReasonNoise, res.Reason)

	weak := recallClassification()
	weak.Relevance = 2
	res, err = engine.Resolve(ctx, "acme", article, weak)
	require.NoError(t, err)
	assert.Equal(t, ReasonLowRelevance, res.Reason)

	res, err = engine.Resolve(ctx, "acme", article, domain.Classification{})
	require.NoError(t, err)
	assert.Equal(t, ReasonUnclassified, res.Reason)
}

func TestKeepNoisePersistsIrrelevantEvent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, store, _ := newTestEngine(t, Config{KeepNoise: true})

	noisy := recallClassification()
	noisy.IsNoise = true
	res, err := engine.Resolve(ctx, "acme", domain.Article{Title: "Acme shares rally", URL: "https://fin.example.com/1"}, noisy)
	require.NoError(t, err)
	require.Equal(t, ActionCreate, res.Action)

	event, err := store.GetEvent(ctx, res.EventID)
	require.NoError(t, err)
	assert.True(t, event.IsIrrelevant)
	assert.Equal(t, engine.now(), event.OccurredAt, "missing publish date falls back to now")
}

func TestRegulatoryArticlesAreOfficialAndNeverDowngraded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, store, _ := newTestEngine(t, Config{})
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	cls := recallClassification()

	official, err := engine.Resolve(ctx, "acme", domain.Article{
		Title: "Acme recalls space heaters over fire hazard", URL: "https://www.cpsc.gov/recalls/1", PublishedAt: day, Regulatory: true,
	}, cls)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationOfficial, official.Verification)

	merged, err := engine.Resolve(ctx, "acme", domain.Article{
		Title: "Acme recalls space heaters over fire hazard risk", URL: "https://news.example.com/1", PublishedAt: day,
	}, cls)
	require.NoError(t, err)
	require.Equal(t, ActionMerge, merged.Action)
	assert.Equal(t, domain.VerificationOfficial, merged.Verification)

	event, err := store.GetEvent(ctx, official.EventID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationOfficial, event.Verification)
}

func TestRegulatoryMergeUpgradesToOfficial(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, store, _ := newTestEngine(t, Config{})
	day := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	cls := recallClassification()

	created, err := engine.Resolve(ctx, "acme", domain.Article{Title: "Acme recalls space heaters over fire hazard", URL: "https://news.example.com/1", PublishedAt: day}, cls)
	require.NoError(t, err)

	merged, err := engine.Resolve(ctx, "acme", domain.Article{
		Title: "Acme recalls space heaters over fire hazard", URL: "https://www.cpsc.gov/recalls/1", PublishedAt: day, Regulatory: true,
	}, cls)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationOfficial, merged.Verification)

	event, err := store.GetEvent(ctx, created.EventID)
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationOfficial, event.Verification)
}

func TestApplyTreatsLostRaceAsDuplicate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, store, _ := newTestEngine(t, Config{})
	article := domain.Article{Title: "Acme recalls space heaters", URL: "https://news.example.com/race", PublishedAt: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)}
	cls := recallClassification()

	planA, err := engine.Plan(ctx, "acme", article, cls)
	require.NoError(t, err)
	planB, err := engine.Plan(ctx, "acme", article, cls)
	require.NoError(t, err)

	resA, err := engine.Apply(ctx, planA)
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, resA.Action)

	resB, err := engine.Apply(ctx, planB)
	require.NoError(t, err)
	assert.Equal(t, ActionSkip, resB.Action)
	assert.Equal(t, ReasonDuplicate, resB.Reason)

	events, err := store.ListEvents(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
