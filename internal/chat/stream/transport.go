// Package stream implements the chunked transport under the chat session: it
// opens the backend's event-stream endpoint and hands raw body chunks to the
// consumer as they arrive.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"horizon/internal/auth"
	horizonerrors "horizon/internal/errors"
	"horizon/internal/httpclient"
	"horizon/internal/logging"
)

// RefreshTokenHeader is the response header carrying a replacement bearer
// credential. The server may rotate the token on any response, including the
// streaming one.
const RefreshTokenHeader = "X-Horizon-Token"

const errorBodyLimit = 64 * 1024

// Transport opens streaming requests against the backend. Credential
// lifecycle callbacks are injected via auth.Hooks rather than registered
// globally.
type Transport struct {
	baseURL    string
	httpClient *http.Client
	creds      auth.CredentialStore
	hooks      auth.Hooks
	logger     logging.Logger
}

// NewTransport builds a Transport. httpClient may be nil, in which case a
// default client without timeout is used (streams outlive any sane request
// timeout; cancellation happens through the context).
func NewTransport(baseURL string, httpClient *http.Client, creds auth.CredentialStore, hooks auth.Hooks, logger logging.Logger) *Transport {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Transport{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		creds:      creds,
		hooks:      hooks,
		logger:     logging.OrNop(logger),
	}
}

// Stream POSTs body as JSON to path and returns the response body as a lazy,
// finite, non-restartable chunk sequence.
//
// On 401/403 the stored credential is cleared and the session-expired hook
// fires before the call returns an AuthError. Any other non-2xx status maps
// to a TransportError carrying the status text. A refreshed credential in the
// response header is installed, and the refresh hook fired, exactly once per
// response before the first chunk is yielded.
func (t *Transport) Stream(ctx context.Context, path string, body any) (*Reader, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if token := t.creds.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if isAbort(ctx, err) {
			// Abort before headers arrived: an already-drained sequence.
			t.logger.Debug("stream %s aborted before response", path)
			return newAbortedReader(), nil
		}
		t.logger.Debug("stream %s request failed: %v", path, err)
		return nil, horizonerrors.WrapTransport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		failure := horizonerrors.FromResponse(resp.StatusCode, resp.Status)
		if horizonerrors.IsAuth(failure) {
			_ = resp.Body.Close()
			if err := t.creds.Clear(); err != nil {
				t.logger.Warn("clear credentials: %v", err)
			}
			t.hooks.NotifySessionExpired()
			return nil, failure
		}
		detail, _ := httpclient.ReadBody(resp.Body, errorBodyLimit)
		_ = resp.Body.Close()
		t.logger.Debug("stream %s rejected: %s %s", path, resp.Status, detail)
		return nil, failure
	}

	t.adoptRefreshedToken(resp)

	return &Reader{ctx: ctx, body: resp.Body}, nil
}

// adoptRefreshedToken installs a replacement credential from the response
// header. Runs before the Reader is handed out, so the new token is in place
// before the first chunk reaches the consumer.
func (t *Transport) adoptRefreshedToken(resp *http.Response) {
	token := strings.TrimSpace(resp.Header.Get(RefreshTokenHeader))
	if token == "" || token == t.creds.Token() {
		return
	}
	if err := t.creds.Store(token); err != nil {
		t.logger.Warn("store refreshed credential: %v", err)
		return
	}
	t.logger.Debug("adopted refreshed credential from response header")
	t.hooks.NotifyTokenRefreshed(token)
}

func isAbort(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

// Reader yields raw body chunks. It is not safe for concurrent use and cannot
// be restarted once drained.
type Reader struct {
	ctx     context.Context
	body    io.ReadCloser
	buf     [8 * 1024]byte
	done    bool
	aborted bool
}

func newAbortedReader() *Reader {
	return &Reader{done: true, aborted: true}
}

// Next returns the next chunk, or io.EOF when the stream is finished. Abort
// of the request context terminates the sequence silently: Next returns
// io.EOF and Aborted reports true. Any other read failure is a transport
// error.
func (r *Reader) Next() ([]byte, error) {
	if r.done {
		return nil, io.EOF
	}

	n, err := r.body.Read(r.buf[:])
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, r.buf[:n])
		return chunk, nil
	}
	if err == nil {
		return nil, nil
	}

	r.done = true
	_ = r.body.Close()

	if err == io.EOF {
		return nil, io.EOF
	}
	if isAbort(r.ctx, err) {
		r.aborted = true
		return nil, io.EOF
	}
	return nil, horizonerrors.WrapTransport(err)
}

// Aborted reports whether the sequence ended because the context was
// cancelled rather than because the server closed the stream.
func (r *Reader) Aborted() bool {
	return r.aborted
}

// Close releases the underlying connection early.
func (r *Reader) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	return r.body.Close()
}
