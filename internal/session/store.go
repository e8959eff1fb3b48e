package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memberline/memberline/internal/authz"
	"github.com/memberline/memberline/internal/identity"
)

// ActorSession is the resolved identity of the current caller. Sessions are
// replaced wholesale; no field is ever mutated in place once published.
type ActorSession struct {
	IdentityID     uuid.UUID
	Role           authz.Role
	Projection     *identity.Projection
	ResolvedAt     time.Time
	Degraded       bool
	DegradedReason string
}

// Anonymous reports whether no actor is signed in.
func (s ActorSession) Anonymous() bool {
	return s.IdentityID == uuid.Nil
}

// Store holds the process-wide actor session. It has exactly one writer (the
// resolver) and many readers; every write replaces the whole session under the
// lock so readers can never observe a torn session.
type Store struct {
	mu        sync.RWMutex
	current   ActorSession
	pending   uuid.UUID
	epoch     uint64
	observers []func(ActorSession)
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{}
}

// Current returns the session as of now. The zero session means anonymous.
func (s *Store) Current() ActorSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Begin marks id as the identity a resolution is now targeting and returns
// the epoch token the eventual apply must present. A later Begin for a
// different identity supersedes this one.
func (s *Store) Begin(id uuid.UUID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = id
	return s.epoch
}

// Apply publishes a resolution result, but only when it still refers to the
// current target: the epoch must be unchanged and the session's identity must
// match the pending one. Stale resolutions are discarded, not applied
// retroactively.
func (s *Store) Apply(epoch uint64, sess ActorSession) bool {
	s.mu.Lock()
	observers, applied := s.applyLocked(epoch, sess)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(sess)
	}
	return applied
}

func (s *Store) applyLocked(epoch uint64, sess ActorSession) ([]func(ActorSession), bool) {
	if epoch != s.epoch || sess.IdentityID != s.pending {
		return nil, false
	}
	s.current = sess
	return s.observers, true
}

// Clear wipes the session synchronously and invalidates every in-flight
// resolution by bumping the epoch.
func (s *Store) Clear() {
	s.mu.Lock()
	s.current = ActorSession{}
	s.pending = uuid.Nil
	s.epoch++
	observers := s.observers
	cleared := s.current
	s.mu.Unlock()
	for _, fn := range observers {
		fn(cleared)
	}
}

// Subscribe registers a callback invoked after every applied replace or
// clear. Callbacks run outside the store lock.
func (s *Store) Subscribe(fn func(ActorSession)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}
