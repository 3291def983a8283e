package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
	"golang.org/x/term"

	"github.com/florianilch/zmsession/internal/app"
	"github.com/florianilch/zmsession/internal/zmapi"
)

const timeLayout = "2006-01-02 15:04:05 MST"

func loginCommand(environFunc func() []string) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "log in and persist the session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "account name",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "account password (prompted when omitted)",
			},
		},
		Action: action(environFunc, loginAction),
	}
}

func loginAction(ctx context.Context, cmd *cli.Command, a *app.App, _ *app.Config) error {
	password := cmd.String("password")
	if password == "" {
		var err error
		password, err = readPassword(cmd.Root().Reader, cmd.Root().ErrWriter)
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
	}

	m := a.Session()
	if err := m.Login(ctx, cmd.String("user"), password); err != nil {
		return fmt.Errorf("login failed: %s", m.State().LoginError())
	}

	snap := m.State().Snapshot()
	_, err := fmt.Fprintf(cmd.Root().Writer, "logged in as %s, session valid until %s\n",
		snap.Identity, snap.RefreshExpiresAt.Local().Format(timeLayout))
	return err
}

// readPassword prompts without echo on a terminal and reads one line otherwise.
func readPassword(r io.Reader, prompt io.Writer) (string, error) {
	if r == nil {
		r = os.Stdin
	}
	if prompt == nil {
		prompt = os.Stderr
	}

	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(prompt)
		return string(b), err
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func logoutCommand(environFunc func() []string) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "end the session and remove it from storage",
		Action: action(environFunc, func(ctx context.Context, cmd *cli.Command, a *app.App, _ *app.Config) error {
			a.Session().Logout(ctx)
			_, err := fmt.Fprintln(cmd.Root().Writer, "logged out")
			return err
		}),
	}
}

func statusCommand(environFunc func() []string) *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "show the current session",
		Action: action(environFunc, statusAction),
	}
}

func statusAction(_ context.Context, cmd *cli.Command, a *app.App, cfg *app.Config) error {
	out := cmd.Root().Writer
	state := a.Session().State()
	snap := state.Snapshot()

	if !snap.Authenticated {
		_, err := fmt.Fprintln(out, "not logged in")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "identity:\t%s\n", snap.Identity)
	_, _ = fmt.Fprintf(tw, "api:\t%s\n", cfg.API.BaseURL)
	_, _ = fmt.Fprintf(tw, "access expires:\t%s\t(%s)\n", snap.AccessExpiresAt.Local().Format(timeLayout), remaining(snap.AccessExpiresAt))
	_, _ = fmt.Fprintf(tw, "session expires:\t%s\t(%s)\n", snap.RefreshExpiresAt.Local().Format(timeLayout), remaining(snap.RefreshExpiresAt))

	if info, err := zmapi.InspectToken(state.Record().AccessToken); err == nil {
		if info.Issuer != "" {
			_, _ = fmt.Fprintf(tw, "issuer:\t%s\n", info.Issuer)
		}
		if info.Type != "" {
			_, _ = fmt.Fprintf(tw, "token type:\t%s\n", info.Type)
		}
	}

	return tw.Flush()
}

func remaining(t time.Time) string {
	d := time.Until(t)
	if d <= 0 {
		return "expired"
	}
	return "in " + d.Truncate(time.Second).String()
}

func tokenCommand(environFunc func() []string) *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "print a valid access token, renewing it if needed",
		Action: action(environFunc, func(_ context.Context, cmd *cli.Command, a *app.App, _ *app.Config) error {
			var ts oauth2.TokenSource = a.Session()
			tok, err := ts.Token()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.Root().Writer, tok.AccessToken)
			return err
		}),
	}
}
