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

var eventColumns = []string{
	"id", "organization_id", "category", "title", "description", "severity",
	"orientation", "verification", "occurred_at", "category_impacts",
	"is_irrelevant", "relevance_raw", "confidence", "amount", "source_url",
	"created_at", "updated_at",
}

var sourceColumns = []string{
	"id", "event_id", "organization_id", "source_name", "canonical_url",
	"registrable_domain", "title_fingerprint", "quote", "source_date",
	"is_primary", "domain_owner", "domain_kind",
}

type scanner interface {
	Scan(dest ...any) error
}

// FindSourceByURL returns ports.ErrNotFound when the organization has no source with that URL.
func (s *Store) FindSourceByURL(ctx context.Context, organizationID, canonicalURL string) (domain.EventSource, error) {
	row, err := s.queryRow(ctx, s.sb.Select(sourceColumns...).
		From("event_sources").
		Where(sq.Eq{"organization_id": organizationID, "canonical_url": canonicalURL}).
		Limit(1))
	if err != nil {
		return domain.EventSource{}, err
	}
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EventSource{}, ports.ErrNotFound
	}
	if err != nil {
		return domain.EventSource{}, fmt.Errorf("find source: %w", err)
	}
	return src, nil
}

// FindCandidateEvents lists relevant events of one category inside [from, to].
func (s *Store) FindCandidateEvents(ctx context.Context, organizationID string, category domain.Category, from, to time.Time) ([]domain.Event, error) {
	return s.listEvents(ctx, s.sb.Select(eventColumns...).
		From("events").
		Where(sq.Eq{"organization_id": organizationID, "category": string(category), "is_irrelevant": 0}).
		Where(sq.GtOrEq{"occurred_at": from.Unix()}).
		Where(sq.LtOrEq{"occurred_at": to.Unix()}).
		OrderBy("occurred_at"))
}

// ListEvents returns every event of an organization, oldest first.
func (s *Store) ListEvents(ctx context.Context, organizationID string) ([]domain.Event, error) {
	return s.listEvents(ctx, s.sb.Select(eventColumns...).
		From("events").
		Where(sq.Eq{"organization_id": organizationID}).
		OrderBy("occurred_at", "id"))
}

// GetEvent loads one event by ID.
func (s *Store) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	row, err := s.queryRow(ctx, s.sb.Select(eventColumns...).From("events").Where(sq.Eq{"id": eventID}))
	if err != nil {
		return domain.Event{}, err
	}
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, ports.ErrNotFound
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// CreateEvent inserts the event and its primary source in one transaction.
// A uniqueness conflict on either row yields ports.ErrDuplicate.
func (s *Store) CreateEvent(ctx context.Context, event domain.Event, source domain.EventSource) error {
	impacts, err := json.Marshal(event.CategoryImpacts)
	if err != nil {
		return fmt.Errorf("encode impacts: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = exec(ctx, tx, s.sb.Insert("events").Columns(eventColumns...).Values(
		event.ID, event.OrganizationID, string(event.Category), event.Title, event.Description,
		string(event.Severity), string(event.Orientation), string(event.Verification),
		unix(event.OccurredAt), string(impacts), boolInt(event.IsIrrelevant), event.RelevanceRaw,
		event.Confidence, event.Amount, event.SourceURL, unix(event.CreatedAt), unix(event.UpdatedAt),
	))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if _, err := exec(ctx, tx, s.insertSource(source)); err != nil {
		return fmt.Errorf("insert source: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AddSource attaches a source to an existing event.
func (s *Store) AddSource(ctx context.Context, source domain.EventSource) error {
	if _, err := exec(ctx, s.db, s.insertSource(source)); err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	return nil
}

func (s *Store) insertSource(src domain.EventSource) sq.InsertBuilder {
	return s.sb.Insert("event_sources").Columns(sourceColumns...).Values(
		src.ID, src.EventID, src.OrganizationID, src.SourceName, src.CanonicalURL,
		src.RegistrableDomain, int64(src.TitleFingerprint), src.Quote, unix(src.SourceDate),
		boolInt(src.IsPrimary), nullString(src.DomainOwner), nullString(src.DomainKind),
	)
}

// CountSources returns how many sources back an event.
func (s *Store) CountSources(ctx context.Context, eventID string) (int, error) {
	row, err := s.queryRow(ctx, s.sb.Select("COUNT(*)").From("event_sources").Where(sq.Eq{"event_id": eventID}))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count sources: %w", err)
	}
	return n, nil
}

// Sources lists the sources of an event, primary first.
func (s *Store) Sources(ctx context.Context, eventID string) ([]domain.EventSource, error) {
	rows, err := s.query(ctx, s.sb.Select(sourceColumns...).
		From("event_sources").
		Where(sq.Eq{"event_id": eventID}).
		OrderBy("is_primary DESC", "source_date", "id"))
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var out []domain.EventSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// PrimarySource returns the primary source, or the earliest one when none is flagged.
func (s *Store) PrimarySource(ctx context.Context, eventID string) (domain.EventSource, error) {
	sources, err := s.Sources(ctx, eventID)
	if err != nil {
		return domain.EventSource{}, err
	}
	if len(sources) == 0 {
		return domain.EventSource{}, ports.ErrNotFound
	}
	return sources[0], nil
}

// UpgradeVerification raises an event to level only when it currently sits below it.
// It reports whether a row changed.
func (s *Store) UpgradeVerification(ctx context.Context, eventID string, level domain.Verification) (bool, error) {
	below := level.Below()
	if len(below) == 0 {
		return false, nil
	}
	lower := make([]string, len(below))
	for i, v := range below {
		lower[i] = string(v)
	}

	res, err := exec(ctx, s.db, s.sb.Update("events").
		Set("verification", string(level)).
		Set("updated_at", time.Now().Unix()).
		Where(sq.Eq{"id": eventID, "verification": lower}))
	if err != nil {
		return false, fmt.Errorf("upgrade verification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// UpdateClassification rewrites the classifier-derived fields of an event.
// Verification is left untouched.
func (s *Store) UpdateClassification(ctx context.Context, event domain.Event) error {
	impacts, err := json.Marshal(event.CategoryImpacts)
	if err != nil {
		return fmt.Errorf("encode impacts: %w", err)
	}
	updated := event.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err = exec(ctx, s.db, s.sb.Update("events").
		Set("category", string(event.Category)).
		Set("severity", string(event.Severity)).
		Set("orientation", string(event.Orientation)).
		Set("category_impacts", string(impacts)).
		Set("is_irrelevant", boolInt(event.IsIrrelevant)).
		Set("relevance_raw", event.RelevanceRaw).
		Set("confidence", event.Confidence).
		Set("amount", event.Amount).
		Set("updated_at", updated.Unix()).
		Where(sq.Eq{"id": event.ID}))
	if err != nil {
		return fmt.Errorf("update classification: %w", err)
	}
	return nil
}

func (s *Store) listEvents(ctx context.Context, builder sq.SelectBuilder) ([]domain.Event, error) {
	rows, err := s.query(ctx, builder)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func scanEvent(row scanner) (domain.Event, error) {
	var (
		e                                      domain.Event
		category, severity, orientation, verif string
		occurred, created, updated             int64
		impacts                                string
		irrelevant                             int
	)
	err := row.Scan(&e.ID, &e.OrganizationID, &category, &e.Title, &e.Description, &severity,
		&orientation, &verif, &occurred, &impacts, &irrelevant, &e.RelevanceRaw, &e.Confidence,
		&e.Amount, &e.SourceURL, &created, &updated)
	if err != nil {
		return domain.Event{}, err
	}
	e.Category = domain.Category(category)
	e.Severity = domain.Severity(severity)
	e.Orientation = domain.Orientation(orientation)
	e.Verification = domain.Verification(verif)
	e.OccurredAt = fromUnix(occurred)
	e.CreatedAt = fromUnix(created)
	e.UpdatedAt = fromUnix(updated)
	e.IsIrrelevant = irrelevant != 0
	if impacts != "" {
		if err := json.Unmarshal([]byte(impacts), &e.CategoryImpacts); err != nil {
			return domain.Event{}, fmt.Errorf("decode impacts: %w", err)
		}
	}
	return e, nil
}

func scanSource(row scanner) (domain.EventSource, error) {
	var (
		src         domain.EventSource
		fingerprint int64
		date        int64
		primary     int
		owner, kind sql.NullString
	)
	err := row.Scan(&src.ID, &src.EventID, &src.OrganizationID, &src.SourceName, &src.CanonicalURL,
		&src.RegistrableDomain, &fingerprint, &src.Quote, &date, &primary, &owner, &kind)
	if err != nil {
		return domain.EventSource{}, err
	}
	src.TitleFingerprint = uint64(fingerprint)
	src.SourceDate = fromUnix(date)
	src.IsPrimary = primary != 0
	src.DomainOwner = owner.String
	src.DomainKind = kind.String
	return src, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
