// Package storage persists the event ledger, scores, jobs and organization
// facts in SQLite or Postgres.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"EvidenceLedger/internal/ports"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store implements every persistence port on a single sql.DB.
type Store struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
}

var (
	_ ports.EventStore        = (*Store)(nil)
	_ ports.ScoreStore        = (*Store)(nil)
	_ ports.InputsReader      = (*Store)(nil)
	_ ports.JobQueue          = (*Store)(nil)
	_ ports.OrganizationStore = (*Store)(nil)
)

// Open connects to the database and applies migrations.
// For sqlite the dsn is a file path.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		db, err = sql.Open("sqlite", sqliteDSN(dsn))
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sql.Open("postgres", dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	store := New(db, driver)
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing connection. Migrations are not applied.
func New(db *sql.DB, driver string) *Store {
	var format sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		format = sq.Dollar
	}
	return &Store{db: db, driver: driver, sb: sq.StatementBuilder.PlaceholderFormat(format)}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS organizations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			category TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL,
			orientation TEXT NOT NULL,
			verification TEXT NOT NULL,
			occurred_at BIGINT NOT NULL,
			category_impacts TEXT NOT NULL DEFAULT '{}',
			is_irrelevant INTEGER NOT NULL DEFAULT 0,
			relevance_raw INTEGER NOT NULL DEFAULT 0,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			amount DOUBLE PRECISION NOT NULL DEFAULT 0,
			source_url TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			UNIQUE (organization_id, source_url)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_org_category_time ON events(organization_id, category, occurred_at)`,
		`CREATE TABLE IF NOT EXISTS event_sources (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL REFERENCES events(id),
			organization_id TEXT NOT NULL,
			source_name TEXT NOT NULL DEFAULT '',
			canonical_url TEXT NOT NULL,
			registrable_domain TEXT NOT NULL DEFAULT '',
			title_fingerprint BIGINT NOT NULL DEFAULT 0,
			quote TEXT NOT NULL DEFAULT '',
			source_date BIGINT NOT NULL,
			is_primary INTEGER NOT NULL DEFAULT 0,
			domain_owner TEXT,
			domain_kind TEXT,
			UNIQUE (event_id, canonical_url),
			UNIQUE (organization_id, canonical_url)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_event_sources_event ON event_sources(event_id)`,
		`CREATE TABLE IF NOT EXISTS brand_scores (
			organization_id TEXT PRIMARY KEY,
			labor DOUBLE PRECISION NOT NULL,
			environment DOUBLE PRECISION NOT NULL,
			politics DOUBLE PRECISION NOT NULL,
			social DOUBLE PRECISION NOT NULL,
			breakdown TEXT NOT NULL,
			last_updated BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			stage TEXT NOT NULL,
			job_key TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '',
			not_before BIGINT NOT NULL,
			triggers INTEGER NOT NULL DEFAULT 1,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (stage, job_key)
		)`,
		`CREATE TABLE IF NOT EXISTS organization_facts (
			organization_id TEXT NOT NULL,
			fact TEXT NOT NULL,
			horizon TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (organization_id, fact, horizon)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// exec runs a built statement on db or tx.
func exec(ctx context.Context, runner sq.ExecerContext, builder sq.Sqlizer) (sql.Result, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build statement: %w", err)
	}
	res, err := runner.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %v", ports.ErrDuplicate, err)
		}
		return nil, err
	}
	return res, nil
}

func (s *Store) query(ctx context.Context, builder sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return s.db.QueryContext(ctx, query, args...)
}

func (s *Store) queryRow(ctx context.Context, builder sq.Sqlizer) (*sql.Row, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return s.db.QueryRowContext(ctx, query, args...), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE")
		}
	}
	return false
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
