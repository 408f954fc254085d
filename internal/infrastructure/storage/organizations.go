package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"EvidenceLedger/internal/domain"
	"EvidenceLedger/internal/ports"
)

// GetOrganization returns ports.ErrNotFound for unknown IDs.
func (s *Store) GetOrganization(ctx context.Context, id string) (domain.Organization, error) {
	row, err := s.queryRow(ctx, s.sb.Select("id", "name").From("organizations").Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.Organization{}, err
	}
	var org domain.Organization
	if err := row.Scan(&org.ID, &org.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Organization{}, ports.ErrNotFound
		}
		return domain.Organization{}, fmt.Errorf("get organization: %w", err)
	}
	return org, nil
}

// ListOrganizations returns every tracked organization ordered by ID.
func (s *Store) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	rows, err := s.query(ctx, s.sb.Select("id", "name").From("organizations").OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("query organizations: %w", err)
	}
	defer rows.Close()

	var out []domain.Organization
	for rows.Next() {
		var org domain.Organization
		if err := rows.Scan(&org.ID, &org.Name); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		out = append(out, org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// UpsertOrganization creates or renames an organization.
func (s *Store) UpsertOrganization(ctx context.Context, org domain.Organization) error {
	_, err := exec(ctx, s.db, s.sb.Insert("organizations").
		Columns("id", "name", "created_at").
		Values(org.ID, org.Name, time.Now().Unix()).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = excluded.name"))
	if err != nil {
		return fmt.Errorf("upsert organization: %w", err)
	}
	return nil
}
