package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"horizon/internal/auth"
	horizonerrors "horizon/internal/errors"
	"horizon/internal/httpclient"
	"horizon/internal/logging"
)

// RefreshTokenHeader mirrors the streaming transport: any REST response may
// carry a replacement bearer credential.
const RefreshTokenHeader = "X-Horizon-Token"

const responseBodyLimit = 8 * 1024 * 1024

// Config configures a Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	CacheSize int
	Retry     horizonerrors.RetryConfig
}

// Client talks to the backend REST endpoints. Idempotent reads retry on
// transient failures; mutations never retry automatically.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      auth.CredentialStore
	hooks      auth.Hooks
	logger     logging.Logger
	retry      horizonerrors.RetryConfig

	streamCache *lru.Cache[int64, *ResearchStream]
}

// New builds a Client. The HTTP client is guarded by a circuit breaker so a
// down backend fails fast instead of stalling every dashboard command.
func New(cfg Config, creds auth.CredentialStore, hooks auth.Hooks, logger logging.Logger) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 128
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = horizonerrors.DefaultRetryConfig()
	}

	cache, err := lru.New[int64, *ResearchStream](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create stream cache: %w", err)
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  httpclient.NewWithCircuitBreaker(cfg.Timeout, logger, "horizon-api"),
		creds:       creds,
		hooks:       hooks,
		logger:      logging.OrNop(logger),
		retry:       cfg.Retry,
		streamCache: cache,
	}, nil
}

// SetHTTPClient swaps the underlying HTTP client, used by tests.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// do executes one request and decodes the JSON response into out (when out is
// non-nil). Response-header credential refresh and the 401/403 session
// expiry flow match the streaming transport.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := c.creds.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return horizonerrors.WrapTransport(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if token := strings.TrimSpace(resp.Header.Get(RefreshTokenHeader)); token != "" && token != c.creds.Token() {
		if err := c.creds.Store(token); err != nil {
			c.logger.Warn("store refreshed credential: %v", err)
		} else {
			c.hooks.NotifyTokenRefreshed(token)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		failure := horizonerrors.FromResponse(resp.StatusCode, resp.Status)
		if horizonerrors.IsAuth(failure) {
			if err := c.creds.Clear(); err != nil {
				c.logger.Warn("clear credentials: %v", err)
			}
			c.hooks.NotifySessionExpired()
		}
		return failure
	}

	if out == nil {
		return nil
	}
	data, err := httpclient.ReadBody(resp.Body, responseBodyLimit)
	if err != nil {
		return horizonerrors.WrapTransport(err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// get retries transient failures; the endpoints it serves are all idempotent.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return horizonerrors.Retry(ctx, c.retry, c.logger, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, path, nil, out)
	})
}
