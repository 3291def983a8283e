package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/florianilch/zmsession/internal/session"
)

// DefaultKey is the storage key used when none is configured.
const DefaultKey = "zm-auth"

// storedRecord is the persisted form of a session record. Expiries are unix
// milliseconds so the document stays readable by the web client.
type storedRecord struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	AccessExpiresAt  int64  `json:"accessExpiresAt"`
	RefreshExpiresAt int64  `json:"refreshExpiresAt"`
	Username         string `json:"username"`
}

func toStored(r session.Record) storedRecord {
	return storedRecord{
		AccessToken:      r.AccessToken,
		RefreshToken:     r.RefreshToken,
		AccessExpiresAt:  r.AccessExpiresAt.UnixMilli(),
		RefreshExpiresAt: r.RefreshExpiresAt.UnixMilli(),
		Username:         r.Identity,
	}
}

func (s storedRecord) record() session.Record {
	r := session.Record{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		Identity:     s.Username,
	}
	if s.AccessExpiresAt != 0 {
		r.AccessExpiresAt = time.UnixMilli(s.AccessExpiresAt)
	}
	if s.RefreshExpiresAt != 0 {
		r.RefreshExpiresAt = time.UnixMilli(s.RefreshExpiresAt)
	}
	return r
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock sets the time source used to detect expired records.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// Store keeps the session record in a Slot as a JSON document.
type Store struct {
	slot Slot
	now  func() time.Time
}

// Compile-time check to ensure Store implements session.CredentialStore
var _ session.CredentialStore = (*Store)(nil)

// NewStore creates a Store backed by slot.
func NewStore(slot Slot, opts ...StoreOption) (*Store, error) {
	if slot == nil {
		return nil, fmt.Errorf("missing slot")
	}

	s := &Store{
		slot: slot,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load returns the stored record, or false if there is none usable.
// Corrupted, incomplete and expired entries are removed from the slot.
func (s *Store) Load(ctx context.Context) (session.Record, bool) {
	data, err := s.slot.Get(ctx)
	if errors.Is(err, ErrNotFound) {
		return session.Record{}, false
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to read stored session", "error", err)
		return session.Record{}, false
	}

	var stored storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		s.discard(ctx, "corrupted")
		return session.Record{}, false
	}

	record := stored.record()
	if !record.Complete() {
		s.discard(ctx, "incomplete")
		return session.Record{}, false
	}
	if !record.RefreshExpiresAt.After(s.now()) {
		s.discard(ctx, "expired")
		return session.Record{}, false
	}

	return record, true
}

// Save persists a complete record.
func (s *Store) Save(ctx context.Context, record session.Record) error {
	if !record.Complete() {
		return fmt.Errorf("refusing to persist incomplete session record")
	}

	data, err := json.Marshal(toStored(record))
	if err != nil {
		return fmt.Errorf("encoding session record: %w", err)
	}

	if err := s.slot.Set(ctx, data, record.RefreshExpiresAt); err != nil {
		return fmt.Errorf("writing session record: %w", err)
	}
	return nil
}

// Clear removes the stored record.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.slot.Delete(ctx); err != nil {
		return fmt.Errorf("clearing session record: %w", err)
	}
	return nil
}

func (s *Store) discard(ctx context.Context, reason string) {
	slog.DebugContext(ctx, "discarding stored session", "reason", reason)
	if err := s.slot.Delete(ctx); err != nil {
		slog.WarnContext(ctx, "failed to discard stored session", "reason", reason, "error", err)
	}
}
