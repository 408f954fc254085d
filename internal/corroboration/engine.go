// Package corroboration merges newly classified articles into the event
// ledger, either as a new source of an existing event or as a new event.
package corroboration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"EvidenceLedger/internal/canonical"
	"EvidenceLedger/internal/domain"
	"EvidenceLedger/internal/metrics"
	"EvidenceLedger/internal/ports"
)

// Action is the outcome of resolving one article.
type Action string

const (
	ActionSkip   Action = "skip"
	ActionMerge  Action = "merge"
	ActionCreate Action = "create"
)

// Skip and match reasons.
const (
	ReasonNoise        = "noise"
	ReasonUnclassified = "unclassified"
	ReasonLowRelevance = "low_relevance"
	ReasonKnownSource  = "known_source"
	ReasonDuplicate    = "duplicate"
	ReasonSimilar      = "similar_event"
	ReasonNew          = "new_event"
)

const quoteLimit = 280

// Config holds the matching thresholds.
type Config struct {
	MinRelevance         int     `yaml:"minRelevance"`
	WindowDays           int     `yaml:"windowDays"`
	SimilarityThreshold  float64 `yaml:"similarityThreshold"`
	CorroborationSources int     `yaml:"corroborationSources"`
	// KeepNoise persists noise as irrelevant events instead of skipping it.
	KeepNoise bool `yaml:"keepNoise"`
}

// DefaultConfig returns relevance 4, a ±3 day window, similarity 0.6 and two sources.
func DefaultConfig() Config {
	return Config{MinRelevance: 4, WindowDays: 3, SimilarityThreshold: 0.6, CorroborationSources: 2}
}

// Resolution reports what happened to one article.
type Resolution struct {
	Action     Action
	EventID    string
	Reason     string
	Similarity float64
	// Verification is the event level after the resolution, empty for skips.
	Verification domain.Verification
	Impacts      map[domain.Category]float64
}

// Plan is a resolution computed without writing to the store.
type Plan struct {
	Resolution
	Event    domain.Event
	Source   domain.EventSource
	Official bool
}

// Engine resolves articles against an EventStore.
type Engine struct {
	store   ports.EventStore
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New builds an engine; zero thresholds fall back to DefaultConfig.
func New(store ports.EventStore, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Engine {
	def := DefaultConfig()
	if cfg.MinRelevance <= 0 {
		cfg.MinRelevance = def.MinRelevance
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = def.WindowDays
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.CorroborationSources <= 0 {
		cfg.CorroborationSources = def.CorroborationSources
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, cfg: cfg, logger: logger, metrics: m, now: time.Now}
}

// Resolve plans and applies one article.
func (e *Engine) Resolve(ctx context.Context, organizationID string, article domain.Article, cls domain.Classification) (Resolution, error) {
	plan, err := e.Plan(ctx, organizationID, article, cls)
	if err != nil {
		return Resolution{}, err
	}
	return e.Apply(ctx, plan)
}

// Plan decides skip, merge or create using read-only store calls.
func (e *Engine) Plan(ctx context.Context, organizationID string, article domain.Article, cls domain.Classification) (Plan, error) {
	noise := cls.IsNoise
	switch {
	case noise && !e.cfg.KeepNoise:
		return skip(ReasonNoise, ""), nil
	case cls.Primary == "":
		return skip(ReasonUnclassified, ""), nil
	case !noise && cls.Relevance < e.cfg.MinRelevance:
		return skip(ReasonLowRelevance, ""), nil
	}

	canonicalURL := canonical.Canonicalize(article.URL)
	known, err := e.store.FindSourceByURL(ctx, organizationID, canonicalURL)
	switch {
	case err == nil:
		return skip(ReasonKnownSource, known.EventID), nil
	case !errors.Is(err, ports.ErrNotFound):
		return Plan{}, fmt.Errorf("find source: %w", err)
	}

	now := e.now().UTC()
	occurred := article.PublishedAt.UTC()
	if article.PublishedAt.IsZero() {
		occurred = now
	}
	source := e.newSource(organizationID, canonicalURL, article, occurred)

	if !noise {
		window := time.Duration(e.cfg.WindowDays) * 24 * time.Hour
		candidates, err := e.store.FindCandidateEvents(ctx, organizationID, cls.Primary, occurred.Add(-window), occurred.Add(window))
		if err != nil {
			return Plan{}, fmt.Errorf("find candidates: %w", err)
		}

		var (
			best      domain.Event
			bestScore float64
		)
		for _, candidate := range candidates {
			if score := TitleSimilarity(article.Title, candidate.Title); score > bestScore {
				best, bestScore = candidate, score
			}
		}

		if bestScore > e.cfg.SimilarityThreshold {
			source.EventID = best.ID
			return Plan{
				Resolution: Resolution{
					Action:       ActionMerge,
					EventID:      best.ID,
					Reason:       ReasonSimilar,
					Similarity:   bestScore,
					Verification: best.Verification,
					Impacts:      best.CategoryImpacts,
				},
				Event:    best,
				Source:   source,
				Official: article.Regulatory,
			}, nil
		}
	}

	verification := domain.VerificationUnverified
	if article.Regulatory {
		verification = domain.VerificationOfficial
	}
	event := domain.Event{
		ID:              uuid.NewString(),
		OrganizationID:  organizationID,
		Category:        cls.Primary,
		Title:           article.Title,
		Description:     article.Summary,
		Severity:        cls.Severity,
		Orientation:     cls.Orientation,
		Verification:    verification,
		OccurredAt:      occurred,
		CategoryImpacts: cls.Impacts,
		IsIrrelevant:    noise,
		RelevanceRaw:    cls.Relevance,
		Confidence:      cls.Confidence,
		Amount:          cls.Amount,
		SourceURL:       canonicalURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	source.EventID = event.ID
	source.IsPrimary = true

	return Plan{
		Resolution: Resolution{
			Action:       ActionCreate,
			EventID:      event.ID,
			Reason:       ReasonNew,
			Verification: verification,
			Impacts:      cls.Impacts,
		},
		Event:    event,
		Source:   source,
		Official: article.Regulatory,
	}, nil
}

// Apply writes a plan. Constraint violations from concurrent writers turn into a duplicate skip.
func (e *Engine) Apply(ctx context.Context, plan Plan) (Resolution, error) {
	res, err := e.apply(ctx, plan)
	if err != nil {
		return Resolution{}, err
	}
	e.metrics.ObserveResolution(string(res.Action))
	return res, nil
}

func (e *Engine) apply(ctx context.Context, plan Plan) (Resolution, error) {
	switch plan.Action {
	case ActionCreate:
		if err := e.store.CreateEvent(ctx, plan.Event, plan.Source); err != nil {
			if errors.Is(err, ports.ErrDuplicate) {
				e.logger.Debug("event already exists", "url", plan.Source.CanonicalURL)
				return skip(ReasonDuplicate, "").Resolution, nil
			}
			return Resolution{}, fmt.Errorf("create event: %w", err)
		}
		return plan.Resolution, nil

	case ActionMerge:
		if err := e.store.AddSource(ctx, plan.Source); err != nil {
			if errors.Is(err, ports.ErrDuplicate) {
				e.logger.Debug("source already attached", "event_id", plan.EventID, "url", plan.Source.CanonicalURL)
				return skip(ReasonDuplicate, plan.EventID).Resolution, nil
			}
			return Resolution{}, fmt.Errorf("add source: %w", err)
		}

		res := plan.Resolution
		level, err := e.upgrade(ctx, plan)
		if err != nil {
			return Resolution{}, err
		}
		if level.Rank() > res.Verification.Rank() {
			res.Verification = level
		}
		return res, nil

	default:
		return plan.Resolution, nil
	}
}

// upgrade returns the level the event was raised to, or "" when unchanged.
func (e *Engine) upgrade(ctx context.Context, plan Plan) (domain.Verification, error) {
	target := domain.VerificationCorroborated
	if plan.Official {
		target = domain.VerificationOfficial
	} else {
		if plan.Event.Verification.Rank() >= target.Rank() {
			return "", nil
		}
		count, err := e.store.CountSources(ctx, plan.EventID)
		if err != nil {
			return "", fmt.Errorf("count sources: %w", err)
		}
		if count < e.cfg.CorroborationSources {
			return "", nil
		}
	}

	changed, err := e.store.UpgradeVerification(ctx, plan.EventID, target)
	if err != nil {
		return "", fmt.Errorf("upgrade verification: %w", err)
	}
	if !changed {
		return "", nil
	}
	e.logger.Info("event verification upgraded", "event_id", plan.EventID, "verification", target)
	return target, nil
}

func (e *Engine) newSource(organizationID, canonicalURL string, article domain.Article, occurred time.Time) domain.EventSource {
	domainName, _ := canonical.RegistrableDomain(canonicalURL)
	return domain.EventSource{
		ID:                uuid.NewString(),
		OrganizationID:    organizationID,
		SourceName:        article.SourceName,
		CanonicalURL:      canonicalURL,
		RegistrableDomain: domainName,
		TitleFingerprint:  canonical.TitleFingerprint(article.Title, article.Summary),
		Quote:             truncate(article.Summary, quoteLimit),
		SourceDate:        occurred,
	}
}

func skip(reason, eventID string) Plan {
	return Plan{Resolution: Resolution{Action: ActionSkip, Reason: reason, EventID: eventID}}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
