package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/zmsession/internal/app"
)

func proxyCommand(environFunc func() []string) *cli.Command {
	return &cli.Command{
		Name:  "proxy",
		Usage: "local API proxy that authenticates every request",
		Commands: []*cli.Command{
			proxyStartCommand(environFunc),
		},
	}
}

func proxyStartCommand(environFunc func() []string) *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "serve the proxy until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "server host",
				Value: app.DefaultConfigServerHost,
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "server port",
				Value: int(app.DefaultConfigServerPort),
			},
		},
		Action: action(environFunc, proxyStartAction),
	}
}

func proxyStartAction(ctx context.Context, _ *cli.Command, a *app.App, _ *app.Config) error {
	if !a.Session().State().IsAuthenticated() {
		slog.WarnContext(ctx, "no active session, requests fail with 401 until `zmsession login`")
	}

	slog.InfoContext(ctx, "starting")

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
