// ABOUTME: In-memory MCP session store keyed by session id.
// ABOUTME: Idempotent creation, snapshot copies on read, and an inactivity reaper.

package session

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/hostmcp/internal/catalog"
)

// DefaultID is the session used by clients that do not send a session header.
const DefaultID = "default"

// ErrSessionNotFound indicates the session id is unknown.
var ErrSessionNotFound = errors.New("session not found")

// ErrTooManySessions indicates the store is at its configured capacity.
var ErrTooManySessions = errors.New("too many sessions")

// Session is the server-side state of one negotiated client connection.
type Session struct {
	ID              string
	Initialized     bool
	ProtocolVersion string
	CreatedAt       time.Time
	LastActivity    time.Time
	LastEventID     uint64
	Tools           []catalog.ToolDescriptor
	Resources       []catalog.ResourceDescriptor
}

func (s *Session) clone() Session {
	c := *s
	c.Tools = slices.Clone(s.Tools)
	c.Resources = slices.Clone(s.Resources)
	return c
}

// entry is a stored session. Activity is tracked atomically so Touch only
// needs the read lock.
type entry struct {
	session      Session
	lastActivity atomic.Int64 // unix nanoseconds
}

func newEntry(sess Session) *entry {
	e := &entry{session: sess}
	e.lastActivity.Store(sess.LastActivity.UnixNano())
	return e
}

func (e *entry) active() time.Time {
	return time.Unix(0, e.lastActivity.Load()).UTC()
}

func (e *entry) snapshot() Session {
	c := e.session.clone()
	c.LastActivity = e.active()
	return c
}

// Config holds configuration for a Store.
type Config struct {
	// MaxSessions caps concurrent sessions. Zero means unlimited.
	MaxSessions int
	// Timeout is the inactivity limit. Zero disables the reaper.
	Timeout time.Duration
	// ReapInterval is how often the reaper runs. Defaults to one minute.
	ReapInterval time.Duration
	Logger       *slog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store manages active sessions.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*entry
	maxSessions int
	timeout     time.Duration
	now         func() time.Time
	logger      *slog.Logger

	done   chan struct{}
	closed bool
}

// NewStore creates a session store. If cfg.Timeout is set a background
// goroutine reaps idle sessions until Close is called.
func NewStore(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		sessions:    make(map[string]*entry),
		maxSessions: cfg.MaxSessions,
		timeout:     cfg.Timeout,
		now:         now,
		logger:      logger,
		done:        make(chan struct{}),
	}

	if cfg.Timeout > 0 {
		interval := cfg.ReapInterval
		if interval <= 0 {
			interval = time.Minute
		}
		go s.reapLoop(interval)
	}
	return s
}

// NewID returns a fresh random session id.
func NewID() string {
	return uuid.New().String()
}

// GetOrCreate returns the session with the given id, creating it if needed.
// An existing session is returned unchanged: its creation time and capability
// snapshot survive. The bool reports whether the session was created.
func (s *Store) GetOrCreate(id string) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[id]; ok {
		return e.snapshot(), false, nil
	}
	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		return Session{}, false, ErrTooManySessions
	}

	now := s.now()
	e := newEntry(Session{
		ID:           id,
		CreatedAt:    now,
		LastActivity: now,
	})
	s.sessions[id] = e

	s.logger.Info("session created", "session_id", id, "total_sessions", len(s.sessions))
	return e.snapshot(), true, nil
}

// Get returns a copy of the session with the given id.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return e.snapshot(), true
}

// Update applies fn to the session under the write lock and returns the
// resulting copy. fn must not block.
func (s *Store) Update(id string, fn func(*Session)) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	e.session.LastActivity = e.active()
	fn(&e.session)
	e.lastActivity.Store(e.session.LastActivity.UnixNano())
	return e.snapshot(), nil
}

// Touch records activity on a session under the read lock. Unknown ids are
// ignored.
func (s *Store) Touch(id string) {
	s.mu.RLock()
	if e, ok := s.sessions[id]; ok {
		e.lastActivity.Store(s.now().UnixNano())
	}
	s.mu.RUnlock()
}

// Remove deletes a session and reports whether it existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	_, existed := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if existed {
		s.logger.Info("session removed", "session_id", id)
	}
	return existed
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Reap removes every session idle for longer than the configured timeout and
// returns the removed ids. It is a no-op when no timeout is configured.
func (s *Store) Reap() []string {
	if s.timeout <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var reaped []string
	for id, e := range s.sessions {
		if now.Sub(e.active()) > s.timeout {
			delete(s.sessions, id)
			reaped = append(reaped, id)
		}
	}
	if len(reaped) > 0 {
		s.logger.Info("idle sessions reaped", "count", len(reaped), "remaining", len(s.sessions))
	}
	return reaped
}

func (s *Store) reapLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Reap()
		case <-s.done:
			return
		}
	}
}

// Close stops the reaper. It is safe to call multiple times.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
}
