package session

import (
	"context"
	"time"
)

// Record is one authenticated session. It is either zero (logged out) or
// complete (every field populated).
type Record struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Identity         string
}

// IsZero reports whether r is the logged-out record.
func (r Record) IsZero() bool {
	return r == Record{}
}

// Complete reports whether every field of r is populated.
func (r Record) Complete() bool {
	return r.AccessToken != "" &&
		r.RefreshToken != "" &&
		r.Identity != "" &&
		!r.AccessExpiresAt.IsZero() &&
		!r.RefreshExpiresAt.IsZero()
}

// IsAuthenticated reports whether r holds an access token. Freshness is not
// checked here; EnsureValidToken decides that when a token is needed.
func (r Record) IsAuthenticated() bool {
	return r.AccessToken != ""
}

// CredentialStore persists the current Record.
type CredentialStore interface {
	// Load returns the stored record, or false if none is usable. Never fails.
	Load(ctx context.Context) (Record, bool)

	// Save persists a complete record.
	Save(ctx context.Context, record Record) error

	// Clear removes the stored record.
	Clear(ctx context.Context) error
}

// expiresAt returns now plus ttl seconds at millisecond precision, matching
// the resolution of the persisted form.
func expiresAt(now time.Time, ttlSeconds int64) time.Time {
	return time.UnixMilli(now.UnixMilli() + ttlSeconds*1000)
}
