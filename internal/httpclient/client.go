// Package httpclient builds the HTTP clients the REST layer and the chat
// transport share: request logging on every client, circuit-breaker gating
// for the REST surface, and capped body reads.
package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"horizon/internal/logging"
)

type loggingRoundTripper struct {
	base   http.RoundTripper
	logger logging.Logger
}

// New builds an HTTP client with the given timeout and request logging.
func New(timeout time.Duration, logger logging.Logger) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &loggingRoundTripper{
			base:   http.DefaultTransport,
			logger: logging.OrNop(logger),
		},
	}
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start)

	if err != nil {
		t.logger.Debug("%s %s failed after %v: %v", req.Method, req.URL.Path, elapsed, err)
		return nil, err
	}
	t.logger.Debug("%s %s -> %d (%v)", req.Method, req.URL.Path, resp.StatusCode, elapsed)
	return resp, nil
}

// BodyTooLargeError reports a response body over the caller's cap.
type BodyTooLargeError struct {
	Limit int64
}

func (e *BodyTooLargeError) Error() string {
	return fmt.Sprintf("response body larger than %d bytes", e.Limit)
}

// ReadBody drains r up to limit bytes and fails when more are available.
// Every body this client decodes goes through here: a misconfigured base URL
// can point at something that returns arbitrarily large HTML, and that must
// not balloon into an unbounded allocation.
func ReadBody(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &BodyTooLargeError{Limit: limit}
	}
	return data, nil
}
