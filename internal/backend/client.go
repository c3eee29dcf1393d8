package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/five82/mediadeck/internal/apierr"
)

// Sentinel errors for the status codes callers branch on.
var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// APIError is any other non-2xx backend response.
type APIError = apierr.Error

const (
	accessCookie     = "access_token"
	csrfCookie       = "csrf_token"
	csrfHeader       = "X-CSRF-Token"
	defaultUserAgent = "mediadeck/0.1"
	requestTimeout   = 15 * time.Second
)

// Client talks to the media library backend using cookie sessions.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	jar       http.CookieJar
	userAgent string

	mu             sync.Mutex
	onUnauthorized func(loginURL string)
	unauthorized   bool
	initial        *Session
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client. A cookie jar is attached
// when the client has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithSession seeds the cookie jar with a previously issued session.
func WithSession(s Session) Option {
	return func(c *Client) { c.initial = &s }
}

// WithUnauthorizedHandler registers fn to run the first time the backend
// rejects the session.
func WithUnauthorizedHandler(fn func(loginURL string)) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// NewClient builds a Client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: requestTimeout},
		jar:       jar,
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		c.http.Jar = c.jar
	} else {
		c.jar = c.http.Jar
	}
	if c.initial != nil {
		c.setSession(*c.initial)
	}
	return c, nil
}

// BaseURL returns the backend origin.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Login signs in and stores the issued cookies. The unauthorized callback
// is re-armed on success.
func (c *Client) Login(ctx context.Context, usernameOrEmail, password string) (Session, error) {
	body := map[string]string{
		"username_or_email": strings.TrimSpace(usernameOrEmail),
		"password":          password,
	}
	query := url.Values{"set_cookie": {"true"}}
	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.send(ctx, http.MethodPost, "/api/v1/auth/login", query, body, &token, false); err != nil {
		return Session{}, err
	}

	session := c.Session()
	if session.AccessToken == "" && token.AccessToken != "" {
		session.AccessToken = token.AccessToken
		c.setSession(session)
	}
	c.mu.Lock()
	c.unauthorized = false
	c.mu.Unlock()
	return session, nil
}

// Session returns the cookies currently held for the backend.
func (c *Client) Session() Session {
	var s Session
	for _, ck := range c.jar.Cookies(c.baseURL) {
		switch ck.Name {
		case accessCookie:
			s.AccessToken = ck.Value
		case csrfCookie:
			s.CSRFToken = ck.Value
		}
	}
	return s
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (User, error) {
	var user User
	err := c.do(ctx, http.MethodGet, "/api/v1/auth/me", nil, nil, &user)
	return user, err
}

// StorageUsage returns the caller's quota and usage.
func (c *Client) StorageUsage(ctx context.Context) (StorageUsage, error) {
	var usage StorageUsage
	err := c.do(ctx, http.MethodGet, "/api/v1/storage/me", nil, nil, &usage)
	return usage, err
}

func (c *Client) setSession(s Session) {
	var cookies []*http.Cookie
	if s.AccessToken != "" {
		cookies = append(cookies, &http.Cookie{Name: accessCookie, Value: s.AccessToken, Path: "/"})
	}
	if s.CSRFToken != "" {
		cookies = append(cookies, &http.Cookie{Name: csrfCookie, Value: s.CSRFToken, Path: "/"})
	}
	if len(cookies) > 0 {
		c.jar.SetCookies(c.baseURL, cookies)
	}
}

func (c *Client) csrfToken(u *url.URL) string {
	for _, ck := range c.jar.Cookies(u) {
		if ck.Name == csrfCookie {
			return ck.Value
		}
	}
	return ""
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, dest any) error {
	return c.send(ctx, method, path, query, body, dest, true)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body, dest any, redirect bool) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	rel, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("parse path %q: %w", path, err)
	}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	reqURL := c.baseURL.ResolveReference(rel)

	var (
		reader      io.Reader
		contentType string
		extra       http.Header
	)
	hc := c.http
	switch b := body.(type) {
	case nil:
	case *rawBody:
		reader = bytes.NewReader(b.data)
		contentType = b.contentType
		extra = b.header
		if b.timeout > 0 {
			slow := *c.http
			slow.Timeout = b.timeout
			hc = &slow
		}
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
		contentType = "application/json"
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, values := range extra {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if method != http.MethodGet && method != http.MethodHead {
		if token := c.csrfToken(reqURL); token != "" {
			req.Header.Set(csrfHeader, token)
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := apierr.New(resp.StatusCode, rel.Path, raw)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			if redirect {
				c.notifyUnauthorized(rel.Path)
			}
			return fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %w", ErrForbidden, apiErr)
		case http.StatusRequestEntityTooLarge:
			return fmt.Errorf("%w: %w", ErrQuotaExceeded, apiErr)
		default:
			return apiErr
		}
	}
	if dest == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) notifyUnauthorized(next string) {
	c.mu.Lock()
	fire := !c.unauthorized && c.onUnauthorized != nil
	c.unauthorized = true
	fn := c.onUnauthorized
	c.mu.Unlock()
	if fire {
		fn(c.LoginURL(next))
	}
}

// LoginURL returns the web login page that redirects back to next.
func (c *Client) LoginURL(next string) string {
	rel := &url.URL{Path: "/login", RawQuery: url.Values{"next": {next}}.Encode()}
	return c.baseURL.ResolveReference(rel).String()
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("backend url is required")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse backend url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("backend url %q is missing a host", raw)
	}
	u.Path = ""
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
