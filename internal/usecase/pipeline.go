package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"golang.org/x/sync/errgroup"

	"EvidenceLedger/internal/canonical"
	"EvidenceLedger/internal/classifier"
	"EvidenceLedger/internal/corroboration"
	"EvidenceLedger/internal/domain"
	"EvidenceLedger/internal/notify"
	"EvidenceLedger/internal/orchestrator"
	"EvidenceLedger/internal/ports"
	"EvidenceLedger/internal/scoring"
)

const defaultConcurrency = 4

// PipelineDeps wires all driven adapters into the evidence pipeline.
type PipelineDeps struct {
	Orchestrator  *orchestrator.Orchestrator
	Classifier    *classifier.Classifier
	Corroboration *corroboration.Engine
	Notifier      *notify.Scheduler
	Scoring       *scoring.Engine
	Events        ports.EventStore
	Inputs        ports.InputsReader
	Scores        ports.ScoreStore
	Organizations ports.OrganizationStore
	// Concurrency bounds how many organizations are processed at once.
	Concurrency int
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Options tune a single pipeline invocation.
type Options struct {
	// DryRun computes outcomes without writing events, scores or jobs.
	DryRun bool
}

// IngestReport summarizes one organization pass.
type IngestReport struct {
	OrganizationID string
	Fetched        int
	Unique         int
	Created        int
	Merged         int
	Skipped        int
	SkipReasons    map[string]int
	Providers      []orchestrator.ProviderStatus
	Impacts        map[domain.Category]float64
	Job            domain.Job
}

// RecategorizeReport summarizes a re-classification pass.
type RecategorizeReport struct {
	OrganizationID string
	Examined       int
	Updated        int
	Unclassified   int
}

// Pipeline implements the ingest, recategorize and score workflows.
type Pipeline struct {
	orchestrator  *orchestrator.Orchestrator
	classifier    *classifier.Classifier
	corroboration *corroboration.Engine
	notifier      *notify.Scheduler
	scoring       *scoring.Engine
	events        ports.EventStore
	inputs        ports.InputsReader
	scores        ports.ScoreStore
	organizations ports.OrganizationStore
	concurrency   int
	logger        *slog.Logger
	now           func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Concurrency <= 0 {
		deps.Concurrency = defaultConcurrency
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Pipeline{
		orchestrator:  deps.Orchestrator,
		classifier:    deps.Classifier,
		corroboration: deps.Corroboration,
		notifier:      deps.Notifier,
		scoring:       deps.Scoring,
		events:        deps.Events,
		inputs:        deps.Inputs,
		scores:        deps.Scores,
		organizations: deps.Organizations,
		concurrency:   deps.Concurrency,
		logger:        deps.Logger,
		now:           deps.Clock,
	}
}

// NewRun starts an orchestrator run whose breakers are shared by every
// organization ingested with it.
func (p *Pipeline) NewRun() *orchestrator.Run {
	return p.orchestrator.NewRun()
}

// Ingest fetches, classifies and resolves articles for one organization,
// then schedules a notification for the touched categories.
// Articles of one organization are processed sequentially.
func (p *Pipeline) Ingest(ctx context.Context, run *orchestrator.Run, org domain.Organization, opts Options) (IngestReport, error) {
	if run == nil {
		run = p.NewRun()
	}
	logger := p.logger.With("organization", org.ID)

	fetched := run.FetchAll(ctx, org.Name)
	report := IngestReport{
		OrganizationID: org.ID,
		Fetched:        len(fetched.Articles),
		SkipReasons:    map[string]int{},
		Providers:      fetched.Statuses,
		Impacts:        map[domain.Category]float64{},
	}
	for _, st := range fetched.Statuses {
		if st.State != orchestrator.StateOK {
			logger.Warn("provider degraded", "provider", st.Name, "state", st.State, "error", st.Err)
		}
	}

	seen := make(map[string]struct{}, len(fetched.Articles))
	for _, article := range fetched.Articles {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		key := canonical.Canonicalize(article.URL)
		if _, dup := seen[key]; dup {
			report.Skipped++
			report.SkipReasons[corroboration.ReasonDuplicate]++
			logger.Debug("article skipped", "url", key, "reason", corroboration.ReasonDuplicate)
			continue
		}
		seen[key] = struct{}{}
		report.Unique++

		cls := p.classifier.Classify(article.Text(), sourceDomain(article.URL))

		var (
			res corroboration.Resolution
			err error
		)
		if opts.DryRun {
			var plan corroboration.Plan
			plan, err = p.corroboration.Plan(ctx, org.ID, article, cls)
			res = plan.Resolution
		} else {
			res, err = p.corroboration.Resolve(ctx, org.ID, article, cls)
		}
		if err != nil {
			return report, fmt.Errorf("resolve %s: %w", key, err)
		}

		switch res.Action {
		case corroboration.ActionCreate:
			report.Created++
		case corroboration.ActionMerge:
			report.Merged++
		default:
			report.Skipped++
			report.SkipReasons[res.Reason]++
			logger.Debug("article skipped", "url", key, "reason", res.Reason)
			continue
		}
		for c, impact := range res.Impacts {
			report.Impacts[c] += impact
		}
	}

	if !opts.DryRun && p.notifier != nil && len(report.Impacts) > 0 {
		job, err := p.notifier.Schedule(ctx, org.ID, maps.Clone(report.Impacts))
		if err != nil {
			return report, fmt.Errorf("schedule notification: %w", err)
		}
		report.Job = job
	}

	logger.Info("ingest finished",
		"fetched", report.Fetched,
		"unique", report.Unique,
		"created", report.Created,
		"merged", report.Merged,
		"skipped", report.Skipped,
		"dry_run", opts.DryRun,
	)
	return report, nil
}

// IngestAll ingests organizations in parallel with one shared run.
func (p *Pipeline) IngestAll(ctx context.Context, orgs []domain.Organization, opts Options) ([]IngestReport, error) {
	run := p.NewRun()
	reports := make([]IngestReport, len(orgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, org := range orgs {
		g.Go(func() error {
			report, err := p.Ingest(gctx, run, org, opts)
			reports[i] = report
			if err != nil {
				return fmt.Errorf("ingest %s: %w", org.ID, err)
			}
			return nil
		})
	}
	err := g.Wait()
	return reports, err
}

// Recategorize re-classifies every stored event of an organization and
// rewrites the classifier-derived fields that changed. Verification and
// sources are left untouched.
func (p *Pipeline) Recategorize(ctx context.Context, organizationID string, opts Options) (RecategorizeReport, error) {
	report := RecategorizeReport{OrganizationID: organizationID}

	events, err := p.events.ListEvents(ctx, organizationID)
	if err != nil {
		return report, fmt.Errorf("list events: %w", err)
	}

	for _, event := range events {
		report.Examined++

		host := event.SourceURL
		primary, err := p.events.PrimarySource(ctx, event.ID)
		switch {
		case err == nil && primary.RegistrableDomain != "":
			host = primary.RegistrableDomain
		case err != nil && !errors.Is(err, ports.ErrNotFound):
			return report, fmt.Errorf("primary source %s: %w", event.ID, err)
		}

		text := event.Title
		if event.Description != "" {
			text += " " + event.Description
		}
		cls := p.classifier.Classify(text, sourceDomain(host))
		if cls.Primary == "" {
			report.Unclassified++
			continue
		}
		if !classificationChanged(event, cls) {
			continue
		}

		report.Updated++
		if opts.DryRun {
			continue
		}

		event.Category = cls.Primary
		event.Severity = cls.Severity
		event.Orientation = cls.Orientation
		event.CategoryImpacts = cls.Impacts
		event.RelevanceRaw = cls.Relevance
		event.Confidence = cls.Confidence
		if cls.Amount > 0 {
			event.Amount = cls.Amount
		}
		event.UpdatedAt = p.now().UTC()
		if err := p.events.UpdateClassification(ctx, event); err != nil {
			return report, fmt.Errorf("update %s: %w", event.ID, err)
		}
	}

	p.logger.Info("recategorize finished",
		"organization", organizationID,
		"examined", report.Examined,
		"updated", report.Updated,
		"dry_run", opts.DryRun,
	)
	return report, nil
}

// Score computes and stores the brand score of one organization.
func (p *Pipeline) Score(ctx context.Context, organizationID string, opts Options) (domain.BrandScore, error) {
	now := p.now().UTC()

	in24, err := p.inputs.BaselineInputs(ctx, organizationID, domain.Window24Months, now)
	if err != nil {
		return domain.BrandScore{}, fmt.Errorf("load %s inputs: %w", domain.Window24Months, err)
	}
	in90, err := p.inputs.BaselineInputs(ctx, organizationID, domain.Window90Days, now)
	if err != nil {
		return domain.BrandScore{}, fmt.Errorf("load %s inputs: %w", domain.Window90Days, err)
	}

	score := p.scoring.Score(organizationID, in24, in90, now)
	if opts.DryRun {
		return score, nil
	}
	if err := p.scores.UpsertBrandScore(ctx, score); err != nil {
		return domain.BrandScore{}, fmt.Errorf("store score: %w", err)
	}
	return score, nil
}

// ScoreAll scores every tracked organization in parallel.
func (p *Pipeline) ScoreAll(ctx context.Context, opts Options) ([]domain.BrandScore, error) {
	orgs, err := p.organizations.ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}

	scores := make([]domain.BrandScore, len(orgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, org := range orgs {
		g.Go(func() error {
			score, err := p.Score(gctx, org.ID, opts)
			if err != nil {
				return fmt.Errorf("score %s: %w", org.ID, err)
			}
			scores[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func sourceDomain(raw string) string {
	if d, ok := canonical.RegistrableDomain(raw); ok {
		return d
	}
	return canonical.Hostname(raw)
}

func classificationChanged(event domain.Event, cls domain.Classification) bool {
	if event.Category != cls.Primary || event.Severity != cls.Severity || event.Orientation != cls.Orientation {
		return true
	}
	return !maps.Equal(event.CategoryImpacts, cls.Impacts)
}
