// Package gateway is the HTTP client for the FatturaAnalyzer backend.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/Veraticus/fattura-reconcile/internal/common"
	"github.com/Veraticus/fattura-reconcile/internal/service"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 64 << 10
)

// Config configures a Client.
type Config struct {
	HTTPClient *http.Client
	Progress   ProgressFunc
	BaseURL    string
	Token      string
	Retry      service.RetryOptions
	Timeout    time.Duration
}

// ProgressFunc returns a writer that observes an upload of size bytes.
type ProgressFunc func(size int64, label string) io.Writer

// Client talks to the backend REST API. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	progress   ProgressFunc
	retry      service.RetryOptions
}

var _ service.Gateway = (*Client)(nil)

// New creates a client for cfg.BaseURL. A non-empty token is sent as a bearer
// token on every request.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: api base url", common.ErrMissingConfig)
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: api base url: %w", common.ErrInvalidConfig, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("%w: api base url %q must be http or https", common.ErrInvalidConfig, cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if cfg.Token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		authed := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.Token,
			TokenType:   "Bearer",
		}))
		authed.Timeout = httpClient.Timeout
		httpClient = authed
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		progress:   cfg.Progress,
		retry:      cfg.Retry,
	}, nil
}

// request describes one backend call.
type request struct {
	query       url.Values
	body        any
	upload      *upload
	method      string
	path        string
	contentType string
	enveloped   bool
	// replayable marks a non-GET request that changes nothing on the backend.
	replayable  bool
}

// retryable reports whether r may be sent again after a failure that could
// have happened after the backend applied it.
func (r request) retryable() bool {
	return r.method == http.MethodGet || r.replayable
}

// notSent reports whether err happened before any byte of the request
// reached the backend.
func notSent(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// envelope is the backend's uniform response wrapper.
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// call sends r and decodes the response into out. Reads are retried on any
// transient failure; writes only when the connection was never established.
// For enveloped endpoints it returns the envelope message.
func (c *Client) call(ctx context.Context, r request, out any) (string, error) {
	var payload []byte
	contentType := r.contentType
	switch {
	case r.upload != nil:
		var err error
		payload, contentType, err = r.upload.encode()
		if err != nil {
			return "", err
		}
	case r.body != nil:
		var err error
		payload, err = json.Marshal(r.body)
		if err != nil {
			return "", fmt.Errorf("failed to marshal %s request: %w", r.path, err)
		}
		contentType = "application/json"
	}

	var body []byte
	err := common.WithRetry(ctx, func() error {
		var err error
		body, err = c.send(ctx, r, payload, contentType)
		if err != nil && !r.retryable() && !notSent(err) {
			return &common.RetryableError{Err: err, Retryable: false}
		}
		return err
	}, c.retry)
	if err != nil {
		return "", err
	}

	if !r.enveloped {
		if out == nil || len(body) == 0 {
			return "", nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return "", fmt.Errorf("failed to decode %s response: %w", r.path, err)
		}
		return "", nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("failed to decode %s response: %w", r.path, err)
	}
	if env.Success != nil && !*env.Success {
		return "", &APIError{Method: r.method, Path: r.path, StatusCode: http.StatusOK, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", fmt.Errorf("failed to decode %s data: %w", r.path, err)
		}
	}
	return env.Message, nil
}

// send performs a single attempt and returns the raw response body.
func (c *Client) send(ctx context.Context, r request, payload []byte, contentType string) ([]byte, error) {
	u := c.baseURL.JoinPath(r.path)
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
		if r.upload != nil && c.progress != nil {
			reader = io.TeeReader(reader, c.progress(int64(len(payload)), r.upload.label()))
		}
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	slog.Debug("Backend request", "method", r.method, "path", r.path, "query", u.RawQuery)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s %s: %w", common.ErrBackendUnreachable, r.method, r.path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, classify(r.method, r.path, resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %w", common.ErrBackendUnreachable, r.path, err)
	}
	return body, nil
}

// stream performs a GET and copies the successful response body to w.
func (c *Client) stream(ctx context.Context, path string, query url.Values, w io.Writer) (int64, error) {
	var written int64
	err := common.WithRetry(ctx, func() error {
		body, err := c.send(ctx, request{method: http.MethodGet, path: path, query: query}, nil, "")
		if err != nil {
			return err
		}
		written, err = io.Copy(w, bytes.NewReader(body))
		return err
	}, c.retry)
	return written, err
}
