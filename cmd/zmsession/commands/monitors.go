package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/zmsession/internal/app"
	"github.com/florianilch/zmsession/internal/monitors"
)

func monitorsCommand(environFunc func() []string) *cli.Command {
	return &cli.Command{
		Name:  "monitors",
		Usage: "list monitors and their status",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "groups",
				Usage: "also list monitor groups",
			},
			&cli.BoolFlag{
				Name:  "daemon",
				Usage: "query the capture daemon of every monitor",
			},
		},
		Action: action(environFunc, monitorsAction),
	}
}

func monitorsAction(ctx context.Context, cmd *cli.Command, a *app.App, _ *app.Config) error {
	service := a.Monitors()
	list, err := service.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.Root().Writer, 0, 0, 2, ' ', 0)
	header := "ID\tNAME\tFUNCTION\tENABLED\tSTATUS\tFPS"
	if cmd.Bool("daemon") {
		header += "\tDAEMON"
	}
	_, _ = fmt.Fprintln(tw, header)

	for _, m := range list {
		row := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s",
			m.Monitor.ID, m.Monitor.Name, m.Monitor.Function, enabled(m.Monitor.Enabled),
			orDash(m.Status.Status), orDash(m.Status.CaptureFPS))
		if cmd.Bool("daemon") {
			daemon := "-"
			if status, ok := service.DaemonStatus(ctx, m.Monitor.ID); ok {
				daemon = status.Status
			}
			row += "\t" + daemon
		}
		_, _ = fmt.Fprintln(tw, row)
	}

	if cmd.Bool("groups") {
		if groups := service.Groups(ctx); len(groups) > 0 {
			_, _ = fmt.Fprintln(tw)
			_, _ = fmt.Fprintln(tw, "GROUP\tNAME\tMONITORS")
			for _, g := range groups {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", g.ID, g.Name, orDash(g.MonitorIDs))
			}
		}
	}

	return tw.Flush()
}

func watchCommand(environFunc func() []string) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "poll monitor status until interrupted or the session ends",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "poll interval",
				Value: app.DefaultConfigPollInterval,
			},
		},
		Action: action(environFunc, watchAction),
	}
}

func watchAction(ctx context.Context, cmd *cli.Command, a *app.App, _ *app.Config) error {
	poller := a.Poller()
	if cmd.IsSet("interval") {
		poller = monitors.NewPoller(a.Monitors(), cmd.Duration("interval"))
	}

	out, errOut := cmd.Root().Writer, cmd.Root().ErrWriter
	return poller.Run(ctx, func(list []monitors.WithStatus, err error) {
		now := time.Now().Format(time.TimeOnly)
		if err != nil {
			_, _ = fmt.Fprintf(errOut, "%s  poll failed: %v\n", now, err)
			return
		}

		parts := make([]string, 0, len(list))
		for _, m := range list {
			parts = append(parts, m.Monitor.Name+"="+orDash(m.Status.Status))
		}
		_, _ = fmt.Fprintf(out, "%s  %d monitors  %s\n", now, len(list), strings.Join(parts, " "))
	})
}

func enabled(v string) string {
	if v == "1" {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func eventsCommand(environFunc func() []string) *cli.Command {
	return &cli.Command{
		Name:      "events",
		Usage:     "list recorded events of a monitor, newest first",
		ArgsUsage: "<monitor-id>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "page",
				Usage: "page number",
				Value: 1,
			},
		},
		Action: action(environFunc, eventsAction),
	}
}

func eventsAction(ctx context.Context, cmd *cli.Command, a *app.App, _ *app.Config) error {
	monitorID := cmd.Args().First()
	if monitorID == "" {
		return fmt.Errorf("monitor id required")
	}

	page, err := a.Monitors().Events(ctx, monitorID, cmd.Int("page"))
	if err != nil {
		return err
	}

	out := cmd.Root().Writer
	if len(page.Events) == 0 {
		_, err := fmt.Fprintln(out, "no events")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTART\tCAUSE\tFRAMES\tSCORE")
	for _, e := range page.Events {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.StartDateTime, orDash(e.Cause), orDash(e.Frames), orDash(e.MaxScore))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	p := page.Pagination
	_, err = fmt.Fprintf(out, "page %d of %d\n", p.Current, p.PageCount)
	return err
}
