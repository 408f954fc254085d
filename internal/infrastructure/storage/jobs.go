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

// UpsertJob inserts a job or, when (stage, key) exists, refreshes its payload
// and counts one more trigger.
func (s *Store) UpsertJob(ctx context.Context, job domain.Job) error {
	_, err := exec(ctx, s.db, s.sb.Insert("jobs").
		Columns("stage", "job_key", "payload", "not_before", "triggers", "updated_at").
		Values(job.Stage, job.Key, string(job.Payload), unix(job.NotBefore), 1, time.Now().Unix()).
		Suffix(`ON CONFLICT (stage, job_key) DO UPDATE SET
			payload = excluded.payload,
			not_before = excluded.not_before,
			triggers = jobs.triggers + 1,
			updated_at = excluded.updated_at`))
	if err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

// Job loads one job by its coalescing key.
func (s *Store) Job(ctx context.Context, stage, key string) (domain.Job, error) {
	row, err := s.queryRow(ctx, s.sb.Select("stage", "job_key", "payload", "not_before", "triggers").
		From("jobs").
		Where(sq.Eq{"stage": stage, "job_key": key}))
	if err != nil {
		return domain.Job{}, err
	}
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, ports.ErrNotFound
	}
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Jobs lists every job of a stage ordered by NotBefore.
func (s *Store) Jobs(ctx context.Context, stage string) ([]domain.Job, error) {
	rows, err := s.query(ctx, s.sb.Select("stage", "job_key", "payload", "not_before", "triggers").
		From("jobs").
		Where(sq.Eq{"stage": stage}).
		OrderBy("not_before", "job_key"))
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func scanJob(row scanner) (domain.Job, error) {
	var (
		job       domain.Job
		payload   string
		notBefore int64
	)
	if err := row.Scan(&job.Stage, &job.Key, &payload, &notBefore, &job.Triggers); err != nil {
		return domain.Job{}, err
	}
	job.Payload = []byte(payload)
	job.NotBefore = fromUnix(notBefore)
	return job, nil
}
