// Package monitors reads monitor definitions and status through the gateway
// and keeps a polling loop running until the session ends.
package monitors

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/florianilch/zmsession/internal/gateway"
	"github.com/florianilch/zmsession/internal/zmapi"
)

// Service fetches monitor data.
type Service struct {
	gateway *gateway.Gateway
}

// NewService creates a Service issuing all calls through g.
func NewService(g *gateway.Gateway) (*Service, error) {
	if g == nil {
		return nil, fmt.Errorf("missing gateway")
	}
	return &Service{gateway: g}, nil
}

// List returns every monitor with its current status.
func (s *Service) List(ctx context.Context) ([]WithStatus, error) {
	res, err := gateway.Request[listResponse](ctx, s.gateway, "/monitors.json")
	if err != nil {
		return nil, fmt.Errorf("listing monitors: %w", err)
	}
	if res.Monitors == nil {
		return []WithStatus{}, nil
	}
	return res.Monitors, nil
}

// Groups returns the monitor groups. Groups are optional: any failure is
// logged and reported as nil. A session expiry still ends the session.
func (s *Service) Groups(ctx context.Context) []Group {
	res, err := gateway.Request[groupsResponse](ctx, s.gateway, "/groups.json")
	if err != nil {
		slog.DebugContext(ctx, "groups unavailable", "error", err)
		return nil
	}

	groups := make([]Group, 0, len(res.Groups))
	for _, g := range res.Groups {
		groups = append(groups, g.Group)
	}
	return groups
}

// DaemonStatus returns the capture daemon status of one monitor, or false if
// it could not be fetched.
func (s *Service) DaemonStatus(ctx context.Context, monitorID string) (*Status, bool) {
	path := "/monitors/daemonStatus/" + url.PathEscape(monitorID) + ".json"
	res, err := gateway.Request[daemonStatusResponse](ctx, s.gateway, path)
	if err != nil {
		slog.DebugContext(ctx, "daemon status unavailable", "monitor_id", monitorID, "error", err)
		return nil, false
	}
	if res.Monitor.MonitorStatus == nil {
		return nil, false
	}
	return res.Monitor.MonitorStatus, true
}

// DefaultPollInterval matches the web client's monitor list refresh.
const DefaultPollInterval = 10 * time.Second

// Poller periodically refreshes the monitor list.
type Poller struct {
	service  *Service
	interval time.Duration
}

// NewPoller creates a Poller. Non-positive intervals use DefaultPollInterval.
func NewPoller(service *Service, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{service: service, interval: interval}
}

// Run fetches immediately and then on every tick, handing each result to fn.
// Ordinary failures are passed to fn and polling continues. Run returns nil
// when ctx is cancelled, or the session-expired error once the session ends;
// no further polls are issued in either case.
func (p *Poller) Run(ctx context.Context, fn func([]WithStatus, error)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		list, err := p.service.List(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if zmapi.IsSessionExpired(err) {
			return err
		}
		fn(list, err)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
