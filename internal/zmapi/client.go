package zmapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// loginPath is the credential and refresh exchange endpoint, relative to the API base.
const loginPath = "host/login.json"

// maxErrorBody bounds how much of a failed login response is read into the error message.
const maxErrorBody = 4 << 10

// LoginResponse is the body of a successful login or refresh exchange.
// Token lifetimes are in seconds.
type LoginResponse struct {
	Version             string `json:"version"`
	APIVersion          string `json:"apiversion"`
	AccessToken         string `json:"access_token"`
	AccessTokenExpires  int64  `json:"access_token_expires"`
	RefreshToken        string `json:"refresh_token"`
	RefreshTokenExpires int64  `json:"refresh_token_expires"`
	Credentials         string `json:"credentials,omitempty"`
	AppendPassword      int    `json:"append_password,omitempty"`
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	httpClient *http.Client
	timeout    time.Duration
}

// WithHTTPClient sets the HTTP client used for all calls.
// If not provided, a client with a 30s timeout over http.DefaultTransport is used.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *clientConfig) {
		cfg.httpClient = c
	}
}

// WithTimeout bounds every call made through the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) {
		cfg.timeout = d
	}
}

// Client performs the unauthenticated exchanges against the API and owns the
// HTTP client shared with the gateway.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// NewClient creates a Client for the API rooted at baseURL (e.g. http://nvr.local/zm/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute: %s", baseURL)
	}

	cfg := &clientConfig{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}
	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.timeout}
	}

	return &Client{
		baseURL:    u,
		httpClient: httpClient,
	}, nil
}

// BaseURL returns a copy of the API base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// HTTPClient returns the HTTP client used for API calls.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// ResolveURL joins path, which may carry a query string, onto the API base.
func (c *Client) ResolveURL(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	if ref.IsAbs() {
		return nil, fmt.Errorf("path must be relative to the API base: %s", path)
	}
	u := c.baseURL.JoinPath(ref.EscapedPath())
	u.RawQuery = ref.RawQuery
	return u, nil
}

// Login exchanges an identity and secret for a token pair.
// A non-success response yields an *AuthError carrying the server's message.
func (c *Client) Login(ctx context.Context, user, pass string) (*LoginResponse, error) {
	resp, err := c.postForm(ctx, url.Values{"user": {user}, "pass": {pass}})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := string(body)
		if strings.TrimSpace(msg) == "" {
			msg = fmt.Sprintf("login failed: %d", resp.StatusCode)
		}
		return nil, &AuthError{StatusCode: resp.StatusCode, Message: msg}
	}

	return decodeLoginResponse(resp.Body)
}

// Refresh exchanges a refresh token for a new access token.
// Any non-success response yields ErrRefreshFailed.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*LoginResponse, error) {
	resp, err := c.postForm(ctx, url.Values{"token": {refreshToken}})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: status %d", ErrRefreshFailed, resp.StatusCode)
	}

	return decodeLoginResponse(resp.Body)
}

func (c *Client) postForm(ctx context.Context, form url.Values) (*http.Response, error) {
	endpoint := c.baseURL.JoinPath(loginPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending login request: %w", err)
	}
	return resp, nil
}

func decodeLoginResponse(r io.Reader) (*LoginResponse, error) {
	var out LoginResponse
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding login response: %w", err)
	}
	return &out, nil
}
