// Package notify coalesces classification outcomes into one downstream
// notification job per organization and time bucket.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"EvidenceLedger/internal/domain"
	"EvidenceLedger/internal/metrics"
	"EvidenceLedger/internal/ports"
)

// Stage is the job stage used for notifications.
const Stage = "notify"

// Config sets the coalescing bucket width.
type Config struct {
	Bucket time.Duration `yaml:"bucket"`
}

// DefaultConfig returns 5-minute buckets.
func DefaultConfig() Config {
	return Config{Bucket: 5 * time.Minute}
}

// Payload is the JSON body of a notification job.
type Payload struct {
	OrganizationID string             `json:"organizationId"`
	Bucket         time.Time          `json:"bucket"`
	Deltas         map[string]float64 `json:"deltas"`
	Categories     []string           `json:"categories"`
}

// Scheduler upserts coalesced jobs. Deltas scheduled into one bucket are
// summed. The pending payload is read back from queues that implement
// ports.JobReader; otherwise the scheduler remembers it in memory.
type Scheduler struct {
	queue   ports.JobQueue
	reader  ports.JobReader
	cfg     Config
	now     func() time.Time
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending map[string]Payload
}

// New builds a scheduler. A nil clock uses time.Now.
func New(queue ports.JobQueue, cfg Config, clock func() time.Time, m *metrics.Metrics) *Scheduler {
	if cfg.Bucket <= 0 {
		cfg.Bucket = DefaultConfig().Bucket
	}
	if clock == nil {
		clock = time.Now
	}
	s := &Scheduler{queue: queue, cfg: cfg, now: clock, metrics: m, pending: map[string]Payload{}}
	if r, ok := queue.(ports.JobReader); ok {
		s.reader = r
	}
	return s
}

// Key returns the coalescing key of an organization at t.
func (s *Scheduler) Key(organizationID string, t time.Time) (string, time.Time) {
	bucket := t.UTC().Truncate(s.cfg.Bucket)
	return fmt.Sprintf("%s:%d", organizationID, bucket.Unix()), bucket
}

// Schedule upserts the job for the current bucket. Calls with no deltas
// schedule nothing and return a zero Job.
func (s *Scheduler) Schedule(ctx context.Context, organizationID string, deltas map[domain.Category]float64) (domain.Job, error) {
	if len(deltas) == 0 {
		return domain.Job{}, nil
	}

	key, bucket := s.Key(organizationID, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := s.pendingPayload(ctx, key)
	if err != nil {
		return domain.Job{}, err
	}
	payload.OrganizationID = organizationID
	payload.Bucket = bucket
	if payload.Deltas == nil {
		payload.Deltas = make(map[string]float64, len(deltas))
	}
	for c, d := range deltas {
		payload.Deltas[string(c)] += d
	}
	payload.Categories = payload.Categories[:0]
	for c := range payload.Deltas {
		payload.Categories = append(payload.Categories, c)
	}
	sort.Strings(payload.Categories)

	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.Job{}, fmt.Errorf("encode payload: %w", err)
	}

	job := domain.Job{
		Stage:     Stage,
		Key:       key,
		Payload:   raw,
		NotBefore: bucket.Add(s.cfg.Bucket),
	}
	if err := s.queue.UpsertJob(ctx, job); err != nil {
		return domain.Job{}, fmt.Errorf("upsert job %s: %w", key, err)
	}
	if s.reader == nil {
		s.remember(key, payload)
	}
	s.metrics.IncJobs()
	return job, nil
}

func (s *Scheduler) pendingPayload(ctx context.Context, key string) (Payload, error) {
	if s.reader == nil {
		p := s.pending[key]
		p.Deltas = maps.Clone(p.Deltas)
		p.Categories = slices.Clone(p.Categories)
		return p, nil
	}
	job, err := s.reader.Job(ctx, Stage, key)
	if errors.Is(err, ports.ErrNotFound) {
		return Payload{}, nil
	}
	if err != nil {
		return Payload{}, fmt.Errorf("load job %s: %w", key, err)
	}
	var payload Payload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return Payload{}, fmt.Errorf("decode job %s: %w", key, err)
	}
	return payload, nil
}

// remember keeps the payload of key and forgets buckets that have closed.
func (s *Scheduler) remember(key string, payload Payload) {
	for k, p := range s.pending {
		if p.Bucket.Before(payload.Bucket) {
			delete(s.pending, k)
		}
	}
	s.pending[key] = payload
}
