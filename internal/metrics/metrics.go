// Package metrics holds the Prometheus collectors of a pipeline run.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "evidence"

// Metrics groups collectors registered on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	providerFetches *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	resolutions     *prometheus.CounterVec
	scores          *prometheus.HistogramVec
	largeJumps      *prometheus.CounterVec
	jobs            prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		providerFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fetch_total",
			Help:      "Provider calls by outcome.",
		}, []string{"provider", "state"}),
		providerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_fetch_seconds",
			Help:      "Provider call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"provider"}),
		resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Corroboration outcomes by action.",
		}, []string{"action"}),
		scores: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "score_value",
			Help:      "Published category scores.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}, []string{"category"}),
		largeJumps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_large_jumps_total",
			Help:      "Category recomputes whose window delta exceeded the warning threshold.",
		}, []string{"category"}),
		jobs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_jobs_total",
			Help:      "Coalesced notification job upserts.",
		}),
	}
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveFetch records one provider call.
func (m *Metrics) ObserveFetch(provider, state string, took time.Duration) {
	if m == nil {
		return
	}
	m.providerFetches.WithLabelValues(provider, state).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(took.Seconds())
}

// ObserveResolution records one corroboration outcome.
func (m *Metrics) ObserveResolution(action string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(action).Inc()
}

// ObserveScore records a published category score.
func (m *Metrics) ObserveScore(category string, value float64) {
	if m == nil {
		return
	}
	m.scores.WithLabelValues(category).Observe(value)
}

// IncLargeJump counts a large window delta.
func (m *Metrics) IncLargeJump(category string) {
	if m == nil {
		return
	}
	m.largeJumps.WithLabelValues(category).Inc()
}

// IncJobs counts a notification job upsert.
func (m *Metrics) IncJobs() {
	if m == nil {
		return
	}
	m.jobs.Inc()
}

// ProviderFetches returns the fetch counter, used by tests.
func (m *Metrics) ProviderFetches() *prometheus.CounterVec {
	return m.providerFetches
}

// Resolutions returns the resolution counter, used by tests.
func (m *Metrics) Resolutions() *prometheus.CounterVec {
	return m.resolutions
}

// LargeJumps returns the large-jump counter, used by tests.
func (m *Metrics) LargeJumps() *prometheus.CounterVec {
	return m.largeJumps
}

// Push sends the registry to a Pushgateway. An empty URL is a no-op.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job string) error {
	if m == nil || gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
