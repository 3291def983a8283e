package session

import (
	"sync"
	"time"
)

// Snapshot is a consistent, token-free view of the session for display.
type Snapshot struct {
	Identity         string
	Authenticated    bool
	LoggingIn        bool
	LoginError       string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// State holds the current Record and the transient login flags. Consumers
// read it and subscribe to changes; only the Manager mutates it.
type State struct {
	mu         sync.RWMutex
	record     Record
	loggingIn  bool
	loginError string

	observersMu sync.Mutex
	observers   map[uint64]func(Snapshot)
	nextID      uint64
}

func newState(initial Record) *State {
	return &State{
		record:    initial,
		observers: make(map[uint64]func(Snapshot)),
	}
}

// Record returns a copy of the current record.
func (s *State) Record() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record
}

// IsAuthenticated reports whether an access token is held.
func (s *State) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.IsAuthenticated()
}

// Identity returns the logged-in identity, or "" when logged out.
func (s *State) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.Identity
}

// IsLoggingIn reports whether a login exchange is in flight.
func (s *State) IsLoggingIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loggingIn
}

// LoginError returns the last login failure, cleared on the next attempt.
func (s *State) LoginError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loginError
}

// Snapshot returns all displayable fields at once.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		Identity:         s.record.Identity,
		Authenticated:    s.record.IsAuthenticated(),
		LoggingIn:        s.loggingIn,
		LoginError:       s.loginError,
		AccessExpiresAt:  s.record.AccessExpiresAt,
		RefreshExpiresAt: s.record.RefreshExpiresAt,
	}
}

// Subscribe registers fn to be called with a fresh Snapshot after every
// change. Calls happen on the mutating goroutine, outside any lock.
// The returned function removes the subscription.
func (s *State) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.observersMu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.observersMu.Unlock()

	return func() {
		s.observersMu.Lock()
		delete(s.observers, id)
		s.observersMu.Unlock()
	}
}

// update applies fn under the write lock and notifies observers.
func (s *State) update(fn func(*State)) {
	s.mu.Lock()
	fn(s)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

func (s *State) notify(snap Snapshot) {
	s.observersMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.observersMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *State) beginLogin() {
	s.update(func(s *State) {
		s.loggingIn = true
		s.loginError = ""
	})
}

func (s *State) endLogin(loginErr string) {
	s.update(func(s *State) {
		s.loggingIn = false
		if loginErr != "" {
			s.loginError = loginErr
		}
	})
}

func (s *State) replace(r Record) {
	s.update(func(s *State) {
		s.record = r
	})
}

// renew swaps in a new access token if the session still belongs to
// refreshToken. Returns the updated record and whether it was applied.
func (s *State) renew(refreshToken, accessToken string, accessExpiresAt time.Time) (Record, bool) {
	var (
		updated Record
		applied bool
	)
	s.update(func(s *State) {
		if s.record.RefreshToken == "" || s.record.RefreshToken != refreshToken {
			return
		}
		s.record.AccessToken = accessToken
		s.record.AccessExpiresAt = accessExpiresAt
		updated, applied = s.record, true
	})
	return updated, applied
}

// reset clears the record. Reports whether anything was cleared.
func (s *State) reset() bool {
	var changed bool
	s.update(func(s *State) {
		changed = !s.record.IsZero()
		s.record = Record{}
	})
	return changed
}
