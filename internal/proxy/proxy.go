package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/florianilch/zmsession/internal/zmapi"
)

// Authenticator provides the authenticated upstream transport.
type Authenticator interface {
	Transport(base http.RoundTripper) http.RoundTripper
}

// Proxy represents the local API proxy server. Clients talk to it without a
// token; every request is authenticated on the way to the API.
type Proxy struct {
	mux    *http.ServeMux
	server *http.Server
	addr   net.Addr
}

// Compile-time check that Proxy implements http.Handler
var _ http.Handler = (*Proxy)(nil)

// Option configures a Proxy.
type Option func(*config)

type config struct {
	baseTransport http.RoundTripper
	logger        *slog.Logger
}

// WithTransport sets the transport used for upstream requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(t http.RoundTripper) Option {
	return func(c *config) {
		c.baseTransport = t
	}
}

// WithLogger sets the request logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// New creates a proxy forwarding every path to the API at upstream.
func New(auth Authenticator, upstream *url.URL, opts ...Option) (*Proxy, error) {
	if auth == nil {
		return nil, fmt.Errorf("missing authenticator")
	}
	if upstream == nil || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL")
	}

	cfg := &config{
		baseTransport: http.DefaultTransport,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	reverseProxyHandler := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			// Tokens are attached upstream; never forward a client's own
			q := pr.Out.URL.Query()
			q.Del("token")
			pr.Out.URL.RawQuery = q.Encode()
			pr.SetXForwarded()
		},
		// FlushInterval: -1 flushes as soon as the upstream writes, so event
		// and stream endpoints reach the client without buffering delays.
		FlushInterval: -1,
		Transport:     auth.Transport(cfg.baseTransport),
		ErrorHandler:  handleUpstreamError,
	}

	mux := http.NewServeMux()
	mux.Handle("/", applyMiddlewares(reverseProxyHandler,
		Logging(cfg.logger),
		Recovery,
	))

	return &Proxy{mux: mux}, nil
}

// ServeHTTP implements http.Handler interface
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (p *Proxy) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	p.addr = listener.Addr()

	p.server = &http.Server{
		Handler:      p,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // allows long event streams, still bounded
		IdleTimeout:  90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := p.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Addr returns the listening address once started.
func (p *Proxy) Addr() string {
	if p.addr == nil {
		return ""
	}
	return p.addr.String()
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}

	if err := p.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = p.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}

// handleUpstreamError maps gateway failures to JSON responses. Session expiry
// is surfaced as 401 so clients know to run a new login.
func handleUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	switch {
	case zmapi.IsSessionExpired(err):
		writeJSONError(ctx, w, "session expired", http.StatusUnauthorized)
	case errors.Is(err, context.Canceled):
		// Client went away, nothing to write to
		slog.DebugContext(ctx, "client cancelled request", "path", r.URL.Path)
	default:
		slog.ErrorContext(ctx, "upstream request failed", "path", r.URL.Path, "error", err)
		writeJSONError(ctx, w, "upstream unavailable", http.StatusBadGateway)
	}
}
