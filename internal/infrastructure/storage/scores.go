package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"EvidenceLedger/internal/domain"
	"EvidenceLedger/internal/ports"
)

// Fact names stored in organization_facts.
const (
	FactDonationsLeft       = "donations_left"
	FactDonationsRight      = "donations_right"
	FactLobbying            = "lobbying"
	FactEmissionsPercentile = "emissions_percentile"
	FactCertifications      = "certifications"
	FactRecallsClassI       = "recalls_class_i"
	FactRecallsClassII      = "recalls_class_ii"
	FactRecallsClassIII     = "recalls_class_iii"
	FactLawsuits            = "lawsuits"
)

// UpsertBrandScore writes all four categories and the breakdown in one statement.
func (s *Store) UpsertBrandScore(ctx context.Context, score domain.BrandScore) error {
	breakdown, err := json.Marshal(score.Breakdown)
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}

	_, err = exec(ctx, s.db, s.sb.Insert("brand_scores").
		Columns("organization_id", "labor", "environment", "politics", "social", "breakdown", "last_updated").
		Values(score.OrganizationID,
			score.Scores[domain.CategoryLabor],
			score.Scores[domain.CategoryEnvironment],
			score.Scores[domain.CategoryPolitics],
			score.Scores[domain.CategorySocial],
			string(breakdown),
			unix(score.LastUpdated),
		).
		Suffix(`ON CONFLICT (organization_id) DO UPDATE SET
			labor = excluded.labor,
			environment = excluded.environment,
			politics = excluded.politics,
			social = excluded.social,
			breakdown = excluded.breakdown,
			last_updated = excluded.last_updated`))
	if err != nil {
		return fmt.Errorf("upsert brand score: %w", err)
	}
	return nil
}

// BrandScore loads the last published score of an organization.
func (s *Store) BrandScore(ctx context.Context, organizationID string) (domain.BrandScore, error) {
	row, err := s.queryRow(ctx, s.sb.
		Select("labor", "environment", "politics", "social", "breakdown", "last_updated").
		From("brand_scores").
		Where(sq.Eq{"organization_id": organizationID}))
	if err != nil {
		return domain.BrandScore{}, err
	}

	var (
		labor, environment, politics, social float64
		breakdown                            string
		updated                              int64
	)
	if err := row.Scan(&labor, &environment, &politics, &social, &breakdown, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.BrandScore{}, ports.ErrNotFound
		}
		return domain.BrandScore{}, fmt.Errorf("get brand score: %w", err)
	}

	score := domain.BrandScore{
		OrganizationID: organizationID,
		Scores: map[domain.Category]float64{
			domain.CategoryLabor:       labor,
			domain.CategoryEnvironment: environment,
			domain.CategoryPolitics:    politics,
			domain.CategorySocial:      social,
		},
		LastUpdated: fromUnix(updated),
	}
	if err := json.Unmarshal([]byte(breakdown), &score.Breakdown); err != nil {
		return domain.BrandScore{}, fmt.Errorf("decode breakdown: %w", err)
	}
	return score, nil
}

// UpsertFact records an externally loaded figure for one window.
func (s *Store) UpsertFact(ctx context.Context, organizationID, fact string, window domain.Window, value float64) error {
	_, err := exec(ctx, s.db, s.sb.Insert("organization_facts").
		Columns("organization_id", "fact", "horizon", "value", "updated_at").
		Values(organizationID, fact, string(window), value, time.Now().Unix()).
		Suffix("ON CONFLICT (organization_id, fact, horizon) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at"))
	if err != nil {
		return fmt.Errorf("upsert fact: %w", err)
	}
	return nil
}

// BaselineInputs aggregates the ledger and the stored facts of one window.
// Irrelevant events are excluded. A negative moderate or severe event counts
// as a violation and contributes its amount to fines.
func (s *Store) BaselineInputs(ctx context.Context, organizationID string, window domain.Window, now time.Time) (domain.BaselineInputs, error) {
	in := domain.BaselineInputs{
		OrganizationID: organizationID,
		Window:         window,
		Ledger:         map[domain.Category]domain.LedgerStats{},
	}

	events, err := s.ListEvents(ctx, organizationID)
	if err != nil {
		return in, err
	}

	since := window.Since(now)
	lastYear := now.AddDate(-1, 0, 0)
	sentiment := map[domain.Category]float64{}

	for _, e := range events {
		if e.IsIrrelevant || !e.Category.Valid() || e.OccurredAt.After(now) {
			continue
		}
		st := in.Ledger[e.Category]
		st.AllTimeEvents++
		if !e.OccurredAt.Before(lastYear) {
			st.LastYearEvents++
		}
		if !e.OccurredAt.Before(since) {
			st.Events++
			sentiment[e.Category] += e.Orientation.Sign()
			if e.Orientation == domain.OrientationNegative && e.Severity != domain.SeverityMinor {
				st.Violations++
				st.Fines += e.Amount
			}
			if e.Orientation == domain.OrientationNegative && e.Severity == domain.SeveritySevere {
				st.SevereIncidents++
			}
		}
		in.Ledger[e.Category] = st
	}

	for c, st := range in.Ledger {
		if st.Events > 0 {
			st.Sentiment = sentiment[c] / float64(st.Events)
			in.Ledger[c] = st
		}
	}

	if err := s.distinctSources(ctx, organizationID, since, now, in.Ledger); err != nil {
		return in, err
	}
	if err := s.loadFacts(ctx, organizationID, window, &in); err != nil {
		return in, err
	}
	return in, nil
}

func (s *Store) distinctSources(ctx context.Context, organizationID string, since, now time.Time, ledger map[domain.Category]domain.LedgerStats) error {
	rows, err := s.query(ctx, s.sb.
		Select("e.category", "COUNT(DISTINCT s.registrable_domain)").
		From("event_sources s").
		Join("events e ON e.id = s.event_id").
		Where(sq.Eq{"e.organization_id": organizationID, "e.is_irrelevant": 0}).
		Where(sq.GtOrEq{"e.occurred_at": since.Unix()}).
		Where(sq.LtOrEq{"e.occurred_at": now.Unix()}).
		GroupBy("e.category"))
	if err != nil {
		return fmt.Errorf("query distinct sources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return fmt.Errorf("scan distinct sources: %w", err)
		}
		c := domain.Category(category)
		if st, ok := ledger[c]; ok {
			st.DistinctSources = n
			ledger[c] = st
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration: %w", err)
	}
	return nil
}

func (s *Store) loadFacts(ctx context.Context, organizationID string, window domain.Window, in *domain.BaselineInputs) error {
	rows, err := s.query(ctx, s.sb.Select("fact", "value").
		From("organization_facts").
		Where(sq.Eq{"organization_id": organizationID, "horizon": string(window)}))
	if err != nil {
		return fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			fact  string
			value float64
		)
		if err := rows.Scan(&fact, &value); err != nil {
			return fmt.Errorf("scan fact: %w", err)
		}
		switch fact {
		case FactDonationsLeft:
			in.DonationsLeft = value
		case FactDonationsRight:
			in.DonationsRight = value
		case FactLobbying:
			in.Lobbying = value
		case FactEmissionsPercentile:
			in.EmissionsPercentile = value
		case FactCertifications:
			in.Certifications = int(value)
		case FactRecallsClassI:
			in.Recalls.ClassI = int(value)
		case FactRecallsClassII:
			in.Recalls.ClassII = int(value)
		case FactRecallsClassIII:
			in.Recalls.ClassIII = int(value)
		case FactLawsuits:
			in.Lawsuits = int(value)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows iteration: %w", err)
	}
	return nil
}
