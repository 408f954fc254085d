package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Jitter: 0.5}
}

func getter(url string) RequestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func TestRetryingRecoversFromTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte("ok"))
		}
	}))
	defer server.Close()

	client := New(server.Client(), fastPolicy(3), nil)
	resp, err := client.Do(context.Background(), getter(server.URL))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryingStopsOnClientError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := New(server.Client(), fastPolicy(5), nil)
	_, err := client.Do(context.Background(), getter(server.URL))
	require.Error(t, err)

	assert.True(t, IsClientError(err))
	assert.Equal(t, int32(1), calls.Load())

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
}

func TestRetryingGivesUpAfterAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.Client(), fastPolicy(3), nil)
	_, err := client.Do(context.Background(), getter(server.URL))
	require.Error(t, err)

	assert.False(t, IsClientError(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestIsClientError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsClientError(&StatusError{Code: 404}))
	assert.False(t, IsClientError(&StatusError{Code: 429}))
	assert.False(t, IsClientError(&StatusError{Code: 500}))
	assert.False(t, IsClientError(context.DeadlineExceeded))
}
