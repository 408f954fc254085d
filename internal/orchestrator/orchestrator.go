// Package orchestrator fans out organization searches to every configured
// provider with per-call timeouts, result caps and a per-run circuit breaker.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"EvidenceLedger/internal/domain"
	"EvidenceLedger/internal/infrastructure/httpclient"
	"EvidenceLedger/internal/metrics"
	"EvidenceLedger/internal/ports"
)

// State is the outcome of one provider call.
type State string

const (
	StateOK      State = "ok"
	StateFailed  State = "failed"
	StateTimeout State = "timeout"
	StateSkipped State = "skipped"
	StateOpen    State = "circuit_open"
)

// Config bounds provider calls.
type Config struct {
	Timeout          time.Duration `yaml:"timeout"`
	MaxResults       int           `yaml:"maxResults"`
	FailureThreshold int           `yaml:"failureThreshold"`
}

// DefaultConfig returns a 20s timeout, 50 results and a breaker after 3 failures.
func DefaultConfig() Config {
	return Config{Timeout: 20 * time.Second, MaxResults: 50, FailureThreshold: 3}
}

// ProviderStatus reports what happened to one provider during FetchAll.
type ProviderStatus struct {
	Name      string
	State     State
	Count     int
	Truncated bool
	Err       string
	Duration  time.Duration
}

// Result is the union of successful provider results plus per-provider statuses.
type Result struct {
	Articles []domain.Article
	Statuses []ProviderStatus
}

// Succeeded counts providers that returned results without error.
func (r Result) Succeeded() int {
	n := 0
	for _, s := range r.Statuses {
		if s.State == StateOK {
			n++
		}
	}
	return n
}

// Orchestrator holds the provider set; all mutable state lives in a Run.
type Orchestrator struct {
	providers []ports.Provider
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New wires providers with call limits; zero config fields use DefaultConfig.
func New(providers []ports.Provider, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Orchestrator {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{providers: providers, cfg: cfg, logger: logger, metrics: m}
}

// Providers returns the number of configured providers.
func (o *Orchestrator) Providers() int {
	return len(o.providers)
}

// Run carries circuit-breaker state for one orchestration run.
type Run struct {
	o        *Orchestrator
	mu       sync.Mutex
	failures map[string]int
}

// NewRun starts a run with every breaker closed.
func (o *Orchestrator) NewRun() *Run {
	return &Run{o: o, failures: map[string]int{}}
}

// FetchAll queries every provider concurrently. A failing provider never aborts the others.
func (r *Run) FetchAll(ctx context.Context, organizationName string) Result {
	providers := r.o.providers
	statuses := make([]ProviderStatus, len(providers))
	batches := make([][]domain.Article, len(providers))

	var wg sync.WaitGroup
	for i, p := range providers {
		if r.open(p.Name()) {
			statuses[i] = ProviderStatus{Name: p.Name(), State: StateOpen}
			r.o.metrics.ObserveFetch(p.Name(), string(StateOpen), 0)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			batches[i], statuses[i] = r.call(ctx, p, organizationName)
		}()
	}
	wg.Wait()

	var result Result
	result.Statuses = statuses
	for _, batch := range batches {
		result.Articles = append(result.Articles, batch...)
	}
	return result
}

func (r *Run) call(ctx context.Context, p ports.Provider, organizationName string) ([]domain.Article, ProviderStatus) {
	callCtx, cancel := context.WithTimeout(ctx, r.o.cfg.Timeout)
	defer cancel()

	status := ProviderStatus{Name: p.Name()}
	start := time.Now()
	articles, err := search(callCtx, p, organizationName)
	status.Duration = time.Since(start)

	switch {
	case err == nil:
		r.reset(p.Name())
		status.State = StateOK
		if len(articles) > r.o.cfg.MaxResults {
			articles = articles[:r.o.cfg.MaxResults]
			status.Truncated = true
		}
		status.Count = len(articles)
	case httpclient.IsClientError(err):
		status.State = StateSkipped
		status.Err = err.Error()
		articles = nil
		r.o.logger.Info("provider rejected request, skipping", "provider", p.Name(), "error", err)
	default:
		status.State = StateFailed
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			status.State = StateTimeout
		}
		status.Err = err.Error()
		articles = nil
		failures := r.fail(p.Name())
		r.o.logger.Warn("provider call failed",
			"provider", p.Name(),
			"state", status.State,
			"consecutive_failures", failures,
			"error", err,
		)
	}

	r.o.metrics.ObserveFetch(p.Name(), string(status.State), status.Duration)
	return articles, status
}

func search(ctx context.Context, p ports.Provider, organizationName string) (articles []domain.Article, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("provider %s panicked: %v", p.Name(), rec)
		}
	}()
	return p.Search(ctx, organizationName)
}

func (r *Run) open(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[name] >= r.o.cfg.FailureThreshold
}

func (r *Run) fail(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[name]++
	return r.failures[name]
}

func (r *Run) reset(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.failures, name)
}
