package upload

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/loglens/internal/core"
)

// DefaultSessionTTL is how long an untouched session is kept.
const DefaultSessionTTL = 30 * time.Minute

// ErrSessionNotFound is wrapped in the validation error returned for an
// unknown or expired session ID.
var ErrSessionNotFound = errors.New("upload session not found")

type session struct {
	ctrl     *Controller
	lastUsed time.Time
}

// Sessions gives each client its own Controller, keyed by a random ID.
type Sessions struct {
	deps Deps
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// NewSessions builds controllers from deps. Idle sessions older than ttl
// are dropped by Sweep.
func NewSessions(deps Deps, ttl time.Duration) (*Sessions, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Sessions{
		deps:     deps,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[uuid.UUID]*session),
	}, nil
}

// Create starts a new session.
func (s *Sessions) Create() (uuid.UUID, *Controller, error) {
	ctrl, err := New(s.deps)
	if err != nil {
		return uuid.Nil, nil, err
	}
	id := uuid.New()

	s.mu.Lock()
	s.sessions[id] = &session{ctrl: ctrl, lastUsed: s.now()}
	n := len(s.sessions)
	s.mu.Unlock()

	s.deps.Metrics.SetSessions(n)
	return id, ctrl, nil
}

// Get returns the controller of session id and marks it used.
func (s *Sessions) Get(id uuid.UUID) (*Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, &core.Error{Kind: core.KindValidation, Op: "get session", Err: ErrSessionNotFound}
	}
	sess.lastUsed = s.now()
	return sess.ctrl, nil
}

// Remove cancels and forgets session id.
func (s *Sessions) Remove(id uuid.UUID) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return &core.Error{Kind: core.KindValidation, Op: "remove session", Err: ErrSessionNotFound}
	}
	if err := sess.ctrl.Cancel(); err != nil {
		s.mu.Unlock()
		return err
	}
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()

	s.deps.Metrics.SetSessions(n)
	return nil
}

// Len reports the number of sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops sessions unused for longer than the TTL. Sessions with a
// submission in flight are kept.
func (s *Sessions) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	removed := 0
	for id, sess := range s.sessions {
		if !sess.lastUsed.Before(cutoff) {
			continue
		}
		if sess.ctrl.Cancel() != nil {
			continue
		}
		delete(s.sessions, id)
		removed++
	}
	n := len(s.sessions)
	s.mu.Unlock()

	s.deps.Metrics.SetSessions(n)
	return removed
}

// Run sweeps every interval until ctx ends.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.deps.Logger.Debug("expired upload sessions", "removed", n)
			}
		}
	}
}
