package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EvidenceLedger/internal/domain"
	"EvidenceLedger/internal/infrastructure/httpclient"
	"EvidenceLedger/internal/metrics"
	"EvidenceLedger/internal/ports"
)

type fakeProvider struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context, org string) ([]domain.Article, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(ctx context.Context, org string) ([]domain.Article, error) {
	f.calls.Add(1)
	return f.fn(ctx, org)
}

func articles(prefix string, n int) []domain.Article {
	out := make([]domain.Article, n)
	for i := range out {
		out[i] = domain.Article{Title: fmt.Sprintf("%s %d", prefix, i), URL: fmt.Sprintf("https://%s.example/%d", prefix, i)}
	}
	return out
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	t.Parallel()

	good := &fakeProvider{name: "good", fn: func(context.Context, string) ([]domain.Article, error) {
		return articles("good", 2), nil
	}}
	bad := &fakeProvider{name: "bad", fn: func(context.Context, string) ([]domain.Article, error) {
		return nil, errors.New("boom")
	}}
	panicky := &fakeProvider{name: "panicky", fn: func(context.Context, string) ([]domain.Article, error) {
		panic("nil map")
	}}

	m := metrics.New()
	o := New([]ports.Provider{good, bad, panicky}, Config{}, nil, m)
	res := o.NewRun().FetchAll(context.Background(), "Acme")

	require.Len(t, res.Articles, 2)
	require.Len(t, res.Statuses, 3)
	assert.Equal(t, StateOK, res.Statuses[0].State)
	assert.Equal(t, 2, res.Statuses[0].Count)
	assert.Equal(t, StateFailed, res.Statuses[1].State)
	assert.Equal(t, "boom", res.Statuses[1].Err)
	assert.Equal(t, StateFailed, res.Statuses[2].State)
	assert.Contains(t, res.Statuses[2].Err, "panicked")
	assert.Equal(t, 1, res.Succeeded())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderFetches().WithLabelValues("good", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderFetches().WithLabelValues("bad", "failed")))
}

func TestFetchAllCapsResults(t *testing.T) {
	t.Parallel()

	big := &fakeProvider{name: "big", fn: func(context.Context, string) ([]domain.Article, error) {
		return articles("big", 10), nil
	}}
	o := New([]ports.Provider{big}, Config{MaxResults: 4}, nil, nil)
	res := o.NewRun().FetchAll(context.Background(), "Acme")

	assert.Len(t, res.Articles, 4)
	assert.True(t, res.Statuses[0].Truncated)
	assert.Equal(t, 4, res.Statuses[0].Count)
}

func TestFetchAllTimesOutSlowProvider(t *testing.T) {
	t.Parallel()

	slow := &fakeProvider{name: "slow", fn: func(ctx context.Context, _ string) ([]domain.Article, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	fast := &fakeProvider{name: "fast", fn: func(context.Context, string) ([]domain.Article, error) {
		return articles("fast", 1), nil
	}}
	o := New([]ports.Provider{slow, fast}, Config{Timeout: 20 * time.Millisecond}, nil, nil)
	res := o.NewRun().FetchAll(context.Background(), "Acme")

	assert.Equal(t, StateTimeout, res.Statuses[0].State)
	assert.Equal(t, StateOK, res.Statuses[1].State)
	assert.Len(t, res.Articles, 1)
}

func TestRunOpensBreakerAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	flaky := &fakeProvider{name: "flaky", fn: func(context.Context, string) ([]domain.Article, error) {
		return nil, errors.New("upstream down")
	}}
	o := New([]ports.Provider{flaky}, Config{FailureThreshold: 3}, nil, nil)

	run := o.NewRun()
	for i := 0; i < 3; i++ {
		res := run.FetchAll(context.Background(), "Org")
		assert.Equal(t, StateFailed, res.Statuses[0].State)
	}
	res := run.FetchAll(context.Background(), "Org")
	assert.Equal(t, StateOpen, res.Statuses[0].State)
	assert.Equal(t, int32(3), flaky.calls.Load())

	fresh := o.NewRun().FetchAll(context.Background(), "Org")
	assert.Equal(t, StateFailed, fresh.Statuses[0].State)
	assert.Equal(t, int32(4), flaky.calls.Load())
}

func TestRunResetsFailuresOnSuccess(t *testing.T) {
	t.Parallel()

	var n atomic.Int32
	intermittent := &fakeProvider{name: "intermittent", fn: func(context.Context, string) ([]domain.Article, error) {
		if n.Add(1)%3 == 0 {
			return articles("ok", 1), nil
		}
		return nil, errors.New("flap")
	}}
	o := New([]ports.Provider{intermittent}, Config{FailureThreshold: 3}, nil, nil)
	run := o.NewRun()

	for i := 0; i < 6; i++ {
		res := run.FetchAll(context.Background(), "Org")
		assert.NotEqual(t, StateOpen, res.Statuses[0].State, "call %d", i)
	}
}

func TestClientErrorsAreSkippedNotCounted(t *testing.T) {
	t.Parallel()

	forbidden := &fakeProvider{name: "forbidden", fn: func(context.Context, string) ([]domain.Article, error) {
		return nil, fmt.Errorf("search: %w", &httpclient.StatusError{Code: 403, Status: "403 Forbidden"})
	}}
	o := New([]ports.Provider{forbidden}, Config{FailureThreshold: 1}, nil, nil)
	run := o.NewRun()

	for i := 0; i < 3; i++ {
		res := run.FetchAll(context.Background(), "Org")
		assert.Equal(t, StateSkipped, res.Statuses[0].State)
	}
	assert.Equal(t, int32(3), forbidden.calls.Load())
}
