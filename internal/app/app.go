package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"EvidenceLedger/internal/classifier"
	"EvidenceLedger/internal/config"
	"EvidenceLedger/internal/corroboration"
	"EvidenceLedger/internal/domain"
	"EvidenceLedger/internal/infrastructure/httpclient"
	"EvidenceLedger/internal/infrastructure/providers"
	"EvidenceLedger/internal/infrastructure/queue"
	"EvidenceLedger/internal/infrastructure/storage"
	"EvidenceLedger/internal/logging"
	"EvidenceLedger/internal/metrics"
	"EvidenceLedger/internal/notify"
	"EvidenceLedger/internal/orchestrator"
	"EvidenceLedger/internal/ports"
	"EvidenceLedger/internal/scoring"
	"EvidenceLedger/internal/usecase"
)

// Application wires configs to use cases and owns their resources.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *storage.Store
	jobs     *queue.JetStream
	metrics  *metrics.Metrics
	pipeline *usecase.Pipeline
}

// New opens the store, builds providers and assembles the pipeline.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &Application{cfg: cfg, logger: baseLogger, store: store, metrics: metrics.New()}

	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Application) wire(ctx context.Context) error {
	cfg := a.cfg

	rules, err := cfg.Classifier.LoadRules()
	if err != nil {
		return fmt.Errorf("load classifier rules: %w", err)
	}

	client := httpclient.New(&http.Client{Timeout: cfg.Orchestrator.Timeout}, cfg.Retry, a.logger.With("component", "http"))
	built, err := providers.NewRegistry().Build(cfg.Providers, providers.Deps{
		HTTP:   client,
		Logger: a.logger.With("component", "provider"),
	})
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}
	if len(built) == 0 {
		a.logger.Warn("no providers enabled; ingest will fetch nothing")
	}

	var jobs ports.JobQueue = a.store
	if cfg.Queue.Driver == config.QueueNATS {
		a.jobs, err = queue.Connect(ctx, queue.Config{
			URL:         cfg.Queue.URL,
			Stream:      cfg.Queue.Stream,
			Subject:     cfg.Queue.Subject,
			DedupWindow: cfg.Notifications.Bucket,
		}, a.logger.With("component", "queue"))
		if err != nil {
			return fmt.Errorf("connect queue: %w", err)
		}
		jobs = a.jobs
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Orchestrator:  orchestrator.New(built, cfg.Orchestrator, a.logger.With("component", "orchestrator"), a.metrics),
		Classifier:    classifier.New(rules),
		Corroboration: corroboration.New(a.store, cfg.Corroboration, a.logger.With("component", "corroboration"), a.metrics),
		Notifier:      notify.New(jobs, cfg.Notifications, nil, a.metrics),
		Scoring:       scoring.NewEngine(cfg.Scoring, a.logger.With("component", "scoring"), a.metrics),
		Events:        a.store,
		Inputs:        a.store,
		Scores:        a.store,
		Organizations: a.store,
		Concurrency:   cfg.Pipeline.Concurrency,
		Logger:        a.logger.With("component", "pipeline"),
	})
	return nil
}

// Logger returns the base logger.
func (a *Application) Logger() *slog.Logger {
	return a.logger
}

// Pipeline exposes the use cases.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// Organizations resolves the --org/--all selection. Unknown ids are an error.
func (a *Application) Organizations(ctx context.Context, ids []string, all bool) ([]domain.Organization, error) {
	if all {
		return a.store.ListOrganizations(ctx)
	}
	if len(ids) == 0 {
		return nil, errors.New("select organizations with --org or --all")
	}
	orgs := make([]domain.Organization, 0, len(ids))
	for _, id := range ids {
		org, err := a.store.GetOrganization(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("organization %s: %w", id, err)
		}
		orgs = append(orgs, org)
	}
	return orgs, nil
}

// AddOrganization registers or renames a tracked organization.
func (a *Application) AddOrganization(ctx context.Context, org domain.Organization) error {
	if org.ID == "" || org.Name == "" {
		return errors.New("organization id and name are required")
	}
	return a.store.UpsertOrganization(ctx, org)
}

// PushMetrics sends run metrics to the configured Pushgateway, if any.
func (a *Application) PushMetrics(ctx context.Context) error {
	return a.metrics.Push(ctx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job)
}

// Close releases the queue connection and the store.
func (a *Application) Close() error {
	var errs []error
	if a.jobs != nil {
		errs = append(errs, a.jobs.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
