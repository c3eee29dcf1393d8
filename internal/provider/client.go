package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/five82/mediadeck/internal/apierr"
)

// APIError is a non-2xx provider response.
type APIError = apierr.Error

// Client talks to the video generation provider.
type Client struct {
	baseURL   *url.URL
	apiKey    string
	http      *http.Client
	userAgent string
}

const (
	defaultUserAgent = "mediadeck/0.1"
	requestTimeout   = 60 * time.Second
	maxBodyBytes     = 4 << 20
)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient builds a Client for baseURL authenticating with apiKey.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		apiKey:    strings.TrimSpace(apiKey),
		http:      &http.Client{Timeout: requestTimeout},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Create submits a generation request and parses the returned task.
func (c *Client) Create(ctx context.Context, spec Spec, payload any) (TaskInfo, error) {
	if c == nil {
		return TaskInfo{}, fmt.Errorf("client is nil")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return TaskInfo{}, fmt.Errorf("encode payload: %w", err)
	}
	raw, err := c.do(ctx, http.MethodPost, spec.CreatePath, body)
	if err != nil {
		return TaskInfo{}, err
	}
	return ParseTask(raw), nil
}

// Status fetches the current state of a provider task.
func (c *Client) Status(ctx context.Context, spec Spec, taskID string) (TaskInfo, error) {
	if c == nil {
		return TaskInfo{}, fmt.Errorf("client is nil")
	}
	if strings.TrimSpace(taskID) == "" {
		return TaskInfo{}, fmt.Errorf("task id required")
	}
	raw, err := c.do(ctx, http.MethodGet, spec.StatusPath(taskID), nil)
	if err != nil {
		return TaskInfo{}, err
	}
	return ParseTask(raw), nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	rel, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", path, err)
	}
	reqURL := c.baseURL.ResolveReference(rel)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apierr.New(resp.StatusCode, path, raw)
	}
	return raw, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("base url is required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must include scheme and host", raw)
	}
	u.Path = ""
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
