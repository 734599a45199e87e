package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	horizonerrors "horizon/internal/errors"
	"horizon/internal/logging"
)

// breakerRoundTripper gates requests through a circuit breaker so a down
// backend fails fast instead of stalling every dashboard command on its
// timeout.
type breakerRoundTripper struct {
	next    http.RoundTripper
	breaker *horizonerrors.CircuitBreaker
}

// NewWithCircuitBreaker builds a logging client whose transport is gated by
// a circuit breaker with the default thresholds. name labels the breaker in
// log lines.
func NewWithCircuitBreaker(timeout time.Duration, logger logging.Logger, name string) *http.Client {
	return NewWithCircuitBreakerConfig(timeout, logger, name, horizonerrors.DefaultCircuitBreakerConfig())
}

// NewWithCircuitBreakerConfig is NewWithCircuitBreaker with explicit breaker
// thresholds, used by tests to trip the breaker quickly.
func NewWithCircuitBreakerConfig(timeout time.Duration, logger logging.Logger, name string, config horizonerrors.CircuitBreakerConfig) *http.Client {
	client := New(timeout, logger)
	client.Transport = &breakerRoundTripper{
		next:    client.Transport,
		breaker: horizonerrors.NewCircuitBreaker(name, config),
	}
	return client
}

func (t *breakerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.breaker.Allow(); err != nil {
		return nil, err
	}

	resp, err := t.next.RoundTrip(req)
	switch {
	case errors.Is(err, context.Canceled):
		// The caller hung up; that says nothing about backend health.
		t.breaker.Mark(nil)
	case err != nil:
		t.breaker.Mark(err)
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
		// 4xx is the caller's problem, not an outage.
		t.breaker.Mark(fmt.Errorf("status %d from %s", resp.StatusCode, req.URL.Path))
	default:
		t.breaker.Mark(nil)
	}
	return resp, err
}
