// Package backend is the HTTP/JSON client for the managed backend's RPC
// endpoints. Every response body is an envelope: {"data": ...} on success or
// {"error": "message"} on failure.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseBody = 1 << 20
)

// APIError is a non-success backend response.
type APIError struct {
	Operation string
	Status    int
	Message   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend %s: %d %s", e.Operation, e.Status, e.Message)
}

// Recorder observes call latency. *observability.Metrics satisfies it.
type Recorder interface {
	BackendCall(operation, status string, d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) BackendCall(string, string, time.Duration) {}

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Recorder   Recorder
	Logger     *slog.Logger
}

// Client calls the backend.
type Client struct {
	base     *url.URL
	apiKey   string
	http     *http.Client
	recorder Recorder
	logger   *slog.Logger
}

// New validates cfg and returns a client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("backend: base url required")
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend: invalid base url %q", cfg.BaseURL)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	c := &Client{base: base, apiKey: cfg.APIKey, http: hc, recorder: cfg.Recorder, logger: cfg.Logger}
	if c.recorder == nil {
		c.recorder = noopRecorder{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

type tokenKey struct{}

// WithAccessToken attaches the caller's bearer token to ctx. Calls made with
// the returned context forward it as the Authorization header.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey{}, token)
}

// AccessToken returns the token attached by WithAccessToken.
func AccessToken(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey{}).(string)
	return tok
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// call performs one request and decodes the envelope's data into out.
func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, body any, headers map[string]string, out any) error {
	start := time.Now()
	status := "error"
	defer func() { c.recorder.BackendCall(op, status, time.Since(start)) }()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend %s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return fmt.Errorf("backend %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if tok := AccessToken(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	status = strconv.Itoa(resp.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("backend %s: read response: %w", op, err)
	}
	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Error
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		c.logger.Debug("backend call failed", "operation", op, "status", resp.StatusCode, "error", msg)
		return &APIError{Operation: op, Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("backend %s: decode envelope: %w", op, decodeErr)
	}
	if env.Error != "" {
		return &APIError{Operation: op, Status: resp.StatusCode, Message: env.Error}
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &APIError{Operation: op, Status: http.StatusNotFound, Message: "empty response"}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("backend %s: decode data: %w", op, err)
	}
	return nil
}
