package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/zmsession/internal/credstore"
	"github.com/florianilch/zmsession/internal/gateway"
	"github.com/florianilch/zmsession/internal/monitors"
	"github.com/florianilch/zmsession/internal/proxy"
	"github.com/florianilch/zmsession/internal/session"
	"github.com/florianilch/zmsession/internal/zmapi"
)

// App wires the session manager, gateway and consumers from configuration.
type App struct {
	cfg        *Config
	manager    *session.Manager
	gateway    *gateway.Gateway
	monitors   *monitors.Service
	proxy      *proxy.Proxy
	closeStore func() error
}

// New creates a new App instance and restores any persisted session.
func New(ctx context.Context, cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	api, err := zmapi.NewClient(cfg.API.BaseURL, zmapi.WithTimeout(cfg.API.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	slot, closeStore, err := cfg.Auth.NewSlot()
	if err != nil {
		return nil, fmt.Errorf("failed to create credential storage: %w", err)
	}

	a, err := build(ctx, cfg, api, slot)
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	a.closeStore = closeStore
	return a, nil
}

func build(ctx context.Context, cfg *Config, api *zmapi.Client, slot credstore.Slot) (*App, error) {
	store, err := credstore.NewStore(slot)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}

	manager, err := session.NewManager(ctx, api, store,
		session.WithMargin(cfg.Auth.RefreshMargin),
		session.WithLogger(slog.Default().With("component", "session")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	gw, err := gateway.New(manager, api)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	service, err := monitors.NewService(gw)
	if err != nil {
		return nil, fmt.Errorf("failed to create monitor service: %w", err)
	}

	proxyServer, err := proxy.New(gw, api.BaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	return &App{
		cfg:        cfg,
		manager:    manager,
		gateway:    gw,
		monitors:   service,
		proxy:      proxyServer,
		closeStore: func() error { return nil },
	}, nil
}

// Session returns the session manager.
func (a *App) Session() *session.Manager {
	return a.manager
}

// Gateway returns the authenticated request gateway.
func (a *App) Gateway() *gateway.Gateway {
	return a.gateway
}

// Monitors returns the monitor service.
func (a *App) Monitors() *monitors.Service {
	return a.monitors
}

// Poller returns a monitor poller using the configured interval.
func (a *App) Poller() *monitors.Poller {
	return monitors.NewPoller(a.monitors, a.cfg.Poll.Interval)
}

// Close releases storage connections.
func (a *App) Close() error {
	return a.closeStore()
}

// Start runs the local proxy and blocks until ctx is cancelled or the proxy fails.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting proxy server", "address", address, "upstream", a.cfg.API.BaseURL)
	proxyErrCh, err := a.proxy.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	// The proxy keeps serving after a session ends; clients get 401 until a new login
	unsubscribe := a.manager.State().Subscribe(watchSession(gCtx, a.manager.State().IsAuthenticated()))
	defer unsubscribe()

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", a.proxy.Addr(), "authenticated", a.manager.State().IsAuthenticated())

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

// watchSession logs session transitions seen while serving.
func watchSession(ctx context.Context, initial bool) func(session.Snapshot) {
	var authenticated atomic.Bool
	authenticated.Store(initial)
	return func(s session.Snapshot) {
		was := authenticated.Swap(s.Authenticated)
		switch {
		case was && !s.Authenticated:
			slog.WarnContext(ctx, "session ended, run `zmsession login` to resume proxying")
		case !was && s.Authenticated:
			slog.InfoContext(ctx, "session established", "identity", s.Identity)
		}
	}
}
