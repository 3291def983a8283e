package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/zmsession/internal/zmapi"
)

// DefaultMargin is how long before its expiry an access token is renewed.
// Keeps a token from expiring between the freshness check and its use.
const DefaultMargin = 60 * time.Second

// Exchanger performs the credential and refresh exchanges with the API.
type Exchanger interface {
	Login(ctx context.Context, user, pass string) (*zmapi.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*zmapi.LoginResponse, error)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock sets the time source for expiry calculations.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithMargin sets the renewal margin. Non-positive values are ignored.
func WithMargin(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.margin = d
		}
	}
}

// WithLogger sets the logger for lifecycle events. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager owns the session lifecycle: login, renewal and logout. It is the
// only writer of State and keeps the CredentialStore in sync on every change.
type Manager struct {
	exchanger Exchanger
	store     CredentialStore
	state     *State

	now    func() time.Time
	margin time.Duration
	logger *slog.Logger
}

// Compile-time check to ensure Manager implements oauth2.TokenSource
var _ oauth2.TokenSource = (*Manager)(nil)

// NewManager creates a Manager and hydrates its State from store.
func NewManager(ctx context.Context, exchanger Exchanger, store CredentialStore, opts ...ManagerOption) (*Manager, error) {
	if exchanger == nil {
		return nil, fmt.Errorf("missing exchanger")
	}
	if store == nil {
		return nil, fmt.Errorf("missing credential store")
	}

	m := &Manager{
		exchanger: exchanger,
		store:     store,
		now:       time.Now,
		margin:    DefaultMargin,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	initial, ok := store.Load(ctx)
	if !ok {
		initial = Record{}
	}
	m.state = newState(initial)

	if ok {
		m.logger.DebugContext(ctx, "restored session", "identity", initial.Identity, "refresh_expires_at", initial.RefreshExpiresAt)
	}

	return m, nil
}

// State returns the read-only session state.
func (m *Manager) State() *State {
	return m.state
}

// Login exchanges identity and secret for a new session. On failure the
// current session is left untouched and the failure is recorded in LoginError.
func (m *Manager) Login(ctx context.Context, identity, secret string) (err error) {
	m.state.beginLogin()
	defer func() {
		m.state.endLogin(loginErrorMessage(err))
	}()

	if identity == "" {
		return &zmapi.AuthError{Message: "identity cannot be empty"}
	}

	res, err := m.exchanger.Login(ctx, identity, secret)
	if err != nil {
		m.logger.WarnContext(ctx, "login failed", "identity", identity, "error", err)
		return err
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		return &zmapi.AuthError{Message: "login response is missing tokens"}
	}

	now := m.now()
	record := Record{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		AccessExpiresAt:  expiresAt(now, res.AccessTokenExpires),
		RefreshExpiresAt: expiresAt(now, res.RefreshTokenExpires),
		Identity:         identity,
	}
	m.state.replace(record)

	if err := m.store.Save(ctx, record); err != nil {
		// Session works for this process but will not survive a restart
		m.logger.ErrorContext(ctx, "failed to persist session", "error", err)
	}

	m.logger.InfoContext(ctx, "logged in", "identity", identity, "access_expires_at", record.AccessExpiresAt)
	return nil
}

// EnsureValidToken returns an access token that stays valid for at least the
// renewal margin, renewing it once if needed. When the session cannot be
// kept alive it logs out and returns an error wrapping zmapi.ErrTokenExpired.
// Cancellation of ctx during the exchange is not a renewal failure: the
// context error is returned and the session is kept.
func (m *Manager) EnsureValidToken(ctx context.Context) (string, error) {
	now := m.now()
	current := m.state.Record()

	if current.AccessExpiresAt.After(now.Add(m.margin)) {
		return current.AccessToken, nil
	}

	if current.RefreshToken == "" || !current.RefreshExpiresAt.After(now) {
		m.Logout(ctx)
		return "", zmapi.ErrTokenExpired
	}

	// No lock is held across the exchange; concurrent renewals are harmless
	// and the last one wins.
	res, err := m.exchanger.Refresh(ctx, current.RefreshToken)
	if err == nil && res.AccessToken == "" {
		err = errors.New("refresh response is missing access token")
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		m.logger.WarnContext(ctx, "token renewal failed, ending session", "identity", current.Identity, "error", err)
		m.Logout(ctx)
		return "", fmt.Errorf("%w: %w", zmapi.ErrTokenExpired, err)
	}

	updated, ok := m.state.renew(current.RefreshToken, res.AccessToken, expiresAt(m.now(), res.AccessTokenExpires))
	if !ok {
		// Session was replaced or cleared while the exchange was in flight
		latest := m.state.Record()
		if latest.AccessExpiresAt.After(m.now().Add(m.margin)) {
			return latest.AccessToken, nil
		}
		return "", zmapi.ErrTokenExpired
	}

	if err := m.store.Save(ctx, updated); err != nil {
		m.logger.ErrorContext(ctx, "failed to persist renewed session", "error", err)
	}

	m.logger.DebugContext(ctx, "access token renewed", "identity", updated.Identity, "access_expires_at", updated.AccessExpiresAt)
	return updated.AccessToken, nil
}

// Logout clears the session and the stored record. Safe to call repeatedly.
func (m *Manager) Logout(ctx context.Context) {
	if m.state.reset() {
		m.logger.InfoContext(ctx, "logged out")
	}

	if err := m.store.Clear(ctx); err != nil {
		m.logger.ErrorContext(ctx, "failed to clear stored session", "error", err)
	}
}

// Token implements oauth2.TokenSource on top of EnsureValidToken.
func (m *Manager) Token() (*oauth2.Token, error) {
	// oauth2.TokenSource.Token() has no context parameter
	token, err := m.EnsureValidToken(context.Background())
	if err != nil {
		return nil, err
	}

	return &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
		Expiry:      m.state.Record().AccessExpiresAt,
	}, nil
}

func loginErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var authErr *zmapi.AuthError
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "login failed"
}
