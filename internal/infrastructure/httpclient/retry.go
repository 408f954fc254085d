// Package httpclient wraps upstream HTTP calls with bounded exponential
// backoff for transient failures.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds retries of one logical call.
type Policy struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"baseDelay"`
	MaxDelay  time.Duration `yaml:"maxDelay"`
	// Jitter is the randomization factor applied to each delay, 0..1.
	Jitter float64 `yaml:"jitter"`
}

// DefaultPolicy returns three attempts starting at 500ms with 25% jitter.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  5 * time.Second,
		Jitter:    0.25,
	}
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned %s", e.Status)
	}
	return fmt.Sprintf("upstream returned %s: %s", e.Status, e.Body)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// IsClientError reports whether err carries a non-retryable 4xx status.
func IsClientError(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
}

// RequestFunc builds a fresh request for each attempt.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Retrying executes requests with the configured policy.
type Retrying struct {
	client *http.Client
	policy Policy
	logger *slog.Logger
}

// New wires an HTTP client with a retry policy; zero fields fall back to DefaultPolicy.
func New(client *http.Client, policy Policy, logger *slog.Logger) *Retrying {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	def := DefaultPolicy()
	if policy.Attempts <= 0 {
		policy.Attempts = def.Attempts
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = def.BaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = def.MaxDelay
	}
	if policy.Jitter < 0 || policy.Jitter > 1 {
		policy.Jitter = def.Jitter
	}
	return &Retrying{client: client, policy: policy, logger: logger}
}

// Do runs build/send until a 2xx response, a permanent failure or attempt exhaustion.
// The caller owns the returned response body.
func (r *Retrying) Do(ctx context.Context, build RequestFunc) (*http.Response, error) {
	var resp *http.Response

	operation := func() error {
		req, err := build(ctx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}

		res, err := r.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return fmt.Errorf("do request: %w", err)
		}

		if res.StatusCode >= 200 && res.StatusCode < 300 {
			resp = res
			return nil
		}

		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		_ = res.Body.Close()
		statusErr := &StatusError{Code: res.StatusCode, Status: res.Status, Body: string(body)}
		if !statusErr.Transient() {
			return backoff.Permanent(statusErr)
		}
		return statusErr
	}

	notify := func(err error, wait time.Duration) {
		if r.logger != nil {
			r.logger.Debug("retrying upstream call", "error", err, "wait", wait)
		}
	}

	if err := backoff.RetryNotify(operation, r.backoff(ctx), notify); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *Retrying) backoff(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.policy.BaseDelay
	exp.MaxInterval = r.policy.MaxDelay
	exp.RandomizationFactor = r.policy.Jitter
	exp.Multiplier = 2
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.policy.Attempts-1)), ctx)
}
