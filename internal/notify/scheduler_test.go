package notify

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EvidenceLedger/internal/domain"
	"EvidenceLedger/internal/infrastructure/storage"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time { return c.t }

func TestFivePassesInOneBucketCoalesce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := storage.Open(ctx, storage.DriverSQLite, filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := &fixedClock{t: time.Date(2026, 5, 1, 10, 1, 0, 0, time.UTC)}
	scheduler := New(store, Config{}, clock.now, nil)

	passes := []map[domain.Category]float64{
		{domain.CategoryLabor: -3},
		{domain.CategoryLabor: -3, domain.CategoryEnvironment: -2},
		{domain.CategoryLabor: -3},
		{domain.CategorySocial: 1.5},
		{domain.CategoryLabor: -3},
	}
	var keys []string
	for _, deltas := range passes {
		job, err := scheduler.Schedule(ctx, "acme", deltas)
		require.NoError(t, err)
		keys = append(keys, job.Key)
		clock.t = clock.t.Add(45 * time.Second)
	}

	for _, k := range keys {
		assert.Equal(t, keys[0], k)
	}

	jobs, err := store.Jobs(ctx, Stage)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 5, jobs[0].Triggers)
	assert.Equal(t, time.Date(2026, 5, 1, 10, 5, 0, 0, time.UTC), jobs[0].NotBefore)

	var payload Payload
	require.NoError(t, json.Unmarshal(jobs[0].Payload, &payload))
	assert.Equal(t, "acme", payload.OrganizationID)
	assert.Equal(t, []string{"environment", "labor", "social"}, payload.Categories)
	assert.InDelta(t, -12, payload.Deltas["labor"], 1e-9)
	assert.InDelta(t, -2, payload.Deltas["environment"], 1e-9)
	assert.InDelta(t, 1.5, payload.Deltas["social"], 1e-9)
}

func TestInMemoryCoalescingSumsDeltas(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	queue := &memoryQueue{}
	clock := &fixedClock{t: time.Date(2026, 5, 1, 10, 1, 0, 0, time.UTC)}
	scheduler := New(queue, Config{}, clock.now, nil)

	_, err := scheduler.Schedule(ctx, "acme", map[domain.Category]float64{domain.CategoryLabor: -3})
	require.NoError(t, err)
	_, err = scheduler.Schedule(ctx, "globex", map[domain.Category]float64{domain.CategoryLabor: -7})
	require.NoError(t, err)
	last, err := scheduler.Schedule(ctx, "acme", map[domain.Category]float64{domain.CategoryPolitics: -1})
	require.NoError(t, err)

	var payload Payload
	require.NoError(t, json.Unmarshal(last.Payload, &payload))
	assert.Equal(t, map[string]float64{"labor": -3, "politics": -1}, payload.Deltas)
	assert.Equal(t, []string{"labor", "politics"}, payload.Categories)

	// A closed bucket starts from scratch.
	clock.t = clock.t.Add(5 * time.Minute)
	next, err := scheduler.Schedule(ctx, "acme", map[domain.Category]float64{domain.CategoryLabor: -1})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(next.Payload, &payload))
	assert.Equal(t, map[string]float64{"labor": -1}, payload.Deltas)
}

func TestFailedUpsertDoesNotLeakIntoNextPayload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	queue := &memoryQueue{}
	clock := &fixedClock{t: time.Date(2026, 5, 1, 10, 1, 0, 0, time.UTC)}
	scheduler := New(queue, Config{}, clock.now, nil)

	_, err := scheduler.Schedule(ctx, "acme", map[domain.Category]float64{domain.CategoryLabor: -3})
	require.NoError(t, err)

	queue.err = errors.New("queue down")
	_, err = scheduler.Schedule(ctx, "acme", map[domain.Category]float64{domain.CategoryLabor: -100})
	require.Error(t, err)

	queue.err = nil
	job, err := scheduler.Schedule(ctx, "acme", map[domain.Category]float64{domain.CategoryLabor: -1})
	require.NoError(t, err)
	var payload Payload
	require.NoError(t, json.Unmarshal(job.Payload, &payload))
	assert.InDelta(t, -4, payload.Deltas["labor"], 1e-9)
}

func TestNextBucketSchedulesNewJob(t *testing.T) {
	t.Parallel()

	queue := &memoryQueue{}
	clock := &fixedClock{t: time.Date(2026, 5, 1, 10, 4, 59, 0, time.UTC)}
	scheduler := New(queue, Config{}, clock.now, nil)

	first, err := scheduler.Schedule(context.Background(), "acme", map[domain.Category]float64{domain.CategorySocial: -1})
	require.NoError(t, err)
	clock.t = clock.t.Add(2 * time.Second)
	second, err := scheduler.Schedule(context.Background(), "acme", map[domain.Category]float64{domain.CategorySocial: -1})
	require.NoError(t, err)

	assert.Equal(t, "acme:1777629600", first.Key)
	assert.NotEqual(t, first.Key, second.Key)
	assert.Len(t, queue.jobs, 2)
}

func TestEmptyDeltasScheduleNothing(t *testing.T) {
	t.Parallel()

	queue := &memoryQueue{}
	scheduler := New(queue, Config{}, nil, nil)

	job, err := scheduler.Schedule(context.Background(), "acme", nil)
	require.NoError(t, err)
	assert.Empty(t, job.Key)
	assert.Empty(t, queue.jobs)
}

func TestQueueErrorsAreReturned(t *testing.T) {
	t.Parallel()

	scheduler := New(&memoryQueue{err: errors.New("queue down")}, Config{}, nil, nil)
	_, err := scheduler.Schedule(context.Background(), "acme", map[domain.Category]float64{domain.CategoryLabor: -1})
	assert.ErrorContains(t, err, "queue down")
}

type memoryQueue struct {
	jobs []domain.Job
	err  error
}

func (q *memoryQueue) UpsertJob(_ context.Context, job domain.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}
