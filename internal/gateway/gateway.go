// Package gateway is the single path for authenticated API calls. It obtains a
// valid token from the session manager, attaches it, performs the call and
// turns an authorization failure into the session-expired signal.
package gateway

import (
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

	"github.com/google/uuid"

	"github.com/florianilch/zmsession/internal/zmapi"
)

// tokenParam is the query parameter the API reads the access token from.
const tokenParam = "token"

// requestIDHeader correlates gateway log lines with upstream access logs.
const requestIDHeader = "X-Request-Id"

// TokenProvider supplies access tokens and ends the session when they cannot be had.
type TokenProvider interface {
	EnsureValidToken(ctx context.Context) (string, error)
	Logout(ctx context.Context)
}

// Gateway performs authenticated API calls.
type Gateway struct {
	tokens TokenProvider
	api    *zmapi.Client
	client *http.Client
}

// New creates a Gateway sending requests through api's HTTP client.
func New(tokens TokenProvider, api *zmapi.Client) (*Gateway, error) {
	if tokens == nil {
		return nil, fmt.Errorf("missing token provider")
	}
	if api == nil {
		return nil, fmt.Errorf("missing API client")
	}

	return &Gateway{
		tokens: tokens,
		api:    api,
		client: api.HTTPClient(),
	}, nil
}

// Do calls path (relative to the API base, optionally with a query) and
// decodes a JSON response into out unless out is nil.
//
// Errors:
//   - wrapping zmapi.ErrTokenExpired: the session ended and has been logged out
//   - *zmapi.RequestError: any other non-success status, session untouched
//   - anything else: transport or decoding failure, session untouched
func (g *Gateway) Do(ctx context.Context, method, path string, body io.Reader, out any) error {
	u, err := g.api.ResolveURL(path)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := g.send(req, g.client.Do)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return &zmapi.RequestError{
			StatusCode: resp.StatusCode,
			Status:     reasonPhrase(resp),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", u.Path, err)
	}
	return nil
}

// send attaches a valid token to req, performs it with do and enforces the
// authorization boundary. Statuses other than 401 are returned to the caller.
func (g *Gateway) send(req *http.Request, do func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	ctx := req.Context()

	token, err := g.tokens.EnsureValidToken(ctx)
	if err != nil {
		// The request never reaches a transport, so nothing else closes its body
		if req.Body != nil {
			_ = req.Body.Close()
		}
		if zmapi.IsSessionExpired(err) {
			g.tokens.Logout(ctx)
		}
		return nil, err
	}

	out := req.Clone(ctx)
	out.URL = withToken(req.URL, token)
	out.Header.Set(requestIDHeader, uuid.NewString())

	resp, err := do(out)
	if err != nil {
		// url.Error repeats the URL, token included
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()

		// Server revoked a token we believed fresh; retrying would loop
		slog.WarnContext(ctx, "api rejected access token, ending session",
			"path", req.URL.Path,
			"request_id", out.Header.Get(requestIDHeader),
		)
		g.tokens.Logout(ctx)
		return nil, fmt.Errorf("%w: %s %s rejected", zmapi.ErrTokenExpired, req.Method, req.URL.Path)
	}

	return resp, nil
}

// Request performs an authenticated call and decodes the JSON response into T.
func Request[T any](ctx context.Context, g *Gateway, path string, opts ...RequestOption) (T, error) {
	cfg := requestConfig{method: http.MethodGet}
	for _, opt := range opts {
		opt(&cfg)
	}

	var out T
	var body io.Reader
	if cfg.form != nil {
		body = strings.NewReader(cfg.form.Encode())
	}
	if err := g.Do(ctx, cfg.method, path, body, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// RequestOption configures a Request call.
type RequestOption func(*requestConfig)

type requestConfig struct {
	method string
	form   url.Values
}

// WithMethod overrides the default GET method.
func WithMethod(method string) RequestOption {
	return func(c *requestConfig) {
		c.method = method
	}
}

// WithForm sends values as a form-encoded body.
func WithForm(values url.Values) RequestOption {
	return func(c *requestConfig) {
		c.form = values
	}
}

func withToken(u *url.URL, token string) *url.URL {
	out := *u
	q := out.Query()
	q.Set(tokenParam, token)
	out.RawQuery = q.Encode()
	return &out
}

func reasonPhrase(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return reason
}
