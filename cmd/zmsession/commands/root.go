package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/zmsession/internal/app"
	"github.com/florianilch/zmsession/internal/observability"
	"github.com/florianilch/zmsession/internal/zmapi"
)

// ErrSessionExpired is returned by Execute when a command ends because the
// session can no longer be renewed.
var ErrSessionExpired = errors.New("session expired, run `zmsession login`")

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return run(ctx, newRootCommand(os.Environ), args)
}

func run(ctx context.Context, cmd *cli.Command, args []string) error {
	err := cmd.Run(ctx, args)
	if zmapi.IsSessionExpired(err) {
		return ErrSessionExpired
	}
	return err
}

func newRootCommand(environFunc func() []string) *cli.Command {
	return &cli.Command{
		Name:  "zmsession",
		Usage: "ZoneMinder API session client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "path to a .env file with ZMSESSION_ variables",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "api--base-url",
				Usage: "API base URL",
				Value: app.DefaultConfigAPIBaseURL,
			},
			&cli.StringFlag{
				Name:  "auth--storage",
				Usage: "session storage (file|keyring|redis|memory)",
				Value: string(app.DefaultConfigAuthStorage),
			},
		},
		Commands: []*cli.Command{
			loginCommand(environFunc),
			logoutCommand(environFunc),
			statusCommand(environFunc),
			tokenCommand(environFunc),
			monitorsCommand(environFunc),
			eventsCommand(environFunc),
			watchCommand(environFunc),
			proxyCommand(environFunc),
		},
	}
}

// setup loads configuration, installs logging and builds the application.
// The returned cleanup flushes logs and releases storage connections.
func setup(ctx context.Context, cmd *cli.Command, environFunc func() []string) (*app.App, *app.Config, func(), error) {
	cfg, err := loadConfig(cmd.String("config"), cmd.String("env-file"), cmd, environFunc)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdownLogs, err := observability.Instrument(ctx, cfg.LogLevel, string(cfg.LogFormat), cfg.LogExporter)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		_ = shutdownLogs(context.Background())
		return nil, nil, nil, fmt.Errorf("failed to create app: %w", err)
	}

	cleanup := func() {
		if err := application.Close(); err != nil {
			slog.WarnContext(ctx, "failed to close storage", "error", err)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		_ = shutdownLogs(shutdownCtx)
	}

	return application, cfg, cleanup, nil
}

// action adapts a command body that needs the application.
func action(environFunc func() []string, fn func(ctx context.Context, cmd *cli.Command, a *app.App, cfg *app.Config) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, cfg, cleanup, err := setup(ctx, cmd, environFunc)
		if err != nil {
			return err
		}
		defer cleanup()
		return fn(ctx, cmd, a, cfg)
	}
}
