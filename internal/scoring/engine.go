// Package scoring turns windowed ledger aggregates into bounded per-category
// brand scores with a composite confidence.
package scoring

import (
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"EvidenceLedger/internal/domain"
	"EvidenceLedger/internal/metrics"
)

const (
	// MaxWindowDelta bounds how far the 90-day window can move the 24-month score.
	MaxWindowDelta = 15.0
	// LargeJumpDelta is the |delta| above which a warning is logged.
	LargeJumpDelta = 12.0

	noIssuesReason = "no significant issues"
)

// Engine computes brand scores. It is safe for concurrent use.
type Engine struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	missing map[string]bool
}

// NewEngine wires the scoring configuration loaded by the caller.
func NewEngine(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger, metrics: m, missing: map[string]bool{}}
}

// Score computes all four categories from the 24-month and 90-day inputs.
func (e *Engine) Score(organizationID string, in24, in90 domain.BaselineInputs, now time.Time) domain.BrandScore {
	score := domain.BrandScore{
		OrganizationID: organizationID,
		Scores:         make(map[domain.Category]float64, len(domain.Categories)),
		Breakdown:      make(map[domain.Category]domain.CategoryBreakdown, len(domain.Categories)),
		LastUpdated:    now,
	}

	for _, c := range domain.Categories {
		long := e.categoryScore(c, in24, true)
		short := e.categoryScore(c, in90, false)

		delta := clamp(short.value-long.value, -MaxWindowDelta, MaxWindowDelta)
		final := clamp(long.value+delta, 0, 100)

		if math.Abs(delta) > LargeJumpDelta {
			e.logger.Warn("large score jump",
				"organization_id", organizationID,
				"category", c,
				"base", round(long.value),
				"recent", round(short.value),
				"window_delta", round(delta),
			)
			e.metrics.IncLargeJump(string(c))
		}

		reason := noIssuesReason
		if len(long.drivers) > 0 {
			reason = strings.Join(long.drivers, ", ")
		}

		stats := in24.Stats(c)
		score.Scores[c] = round(final)
		score.Breakdown[c] = domain.CategoryBreakdown{
			Base:          round(long.value),
			WindowDelta:   round(delta),
			Value:         round(final),
			Confidence:    round(e.confidence(stats, long)),
			EvidenceCount: stats.Events,
			Reason:        reason,
			LastUpdated:   now,
		}
		e.metrics.ObserveScore(string(c), final)
	}

	return score
}

func (e *Engine) categoryScore(c domain.Category, in domain.BaselineInputs, long bool) tally {
	switch c {
	case domain.CategoryLabor:
		return e.labor(in, long)
	case domain.CategoryEnvironment:
		return e.environment(in, long)
	case domain.CategoryPolitics:
		return e.politics(in, long)
	default:
		return e.social(in, long)
	}
}

// confidence blends coverage, recency, corroboration and stability on a 0..100 scale.
func (e *Engine) confidence(stats domain.LedgerStats, t tally) float64 {
	var coverage, recency float64
	if t.expected > 0 {
		coverage = float64(t.present) / float64(t.expected) * 100
	}
	if stats.AllTimeEvents > 0 {
		recency = float64(stats.LastYearEvents) / float64(stats.AllTimeEvents) * 100
	}
	corroboration := math.Min(float64(stats.DistinctSources), 4) / 4 * 100

	value := e.weight("confidence.coverage", 0.40)*coverage +
		e.weight("confidence.recency", 0.30)*recency +
		e.weight("confidence.corroboration", 0.20)*corroboration +
		e.weight("confidence.stability", 0.10)*e.cfg.stability()
	return clamp(value, 0, 100)
}

func (e *Engine) weight(key string, def float64) float64 {
	if v, ok := e.cfg.Weights[key]; ok {
		return v
	}
	e.reportMissing("weight", key, def)
	return def
}

func (e *Engine) cap(key string, def float64) float64 {
	if v, ok := e.cfg.Caps[key]; ok {
		return v
	}
	e.reportMissing("cap", key, def)
	return def
}

func (e *Engine) reportMissing(kind, key string, def float64) {
	e.mu.Lock()
	seen := e.missing[kind+":"+key]
	e.missing[kind+":"+key] = true
	e.mu.Unlock()
	if !seen {
		e.logger.Info("scoring key not configured, using default", "kind", kind, "key", key, "default", def)
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
