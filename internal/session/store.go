// Package session keeps per-session rolling turn history and the derived
// context summary folded from it.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/xaenox/pace-bot/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultMaxTurns = 20
	// InitialContext is the derived context of a session nothing has been distilled into yet.
	InitialContext = "No previous context."
)

// Session is one conversation's state. Field access is guarded by mu; turnMu
// is the serialization unit that lets only one turn run per session at a time.
type Session struct {
	turnMu sync.Mutex

	mu             sync.RWMutex
	id             string
	turns          []models.Turn
	derivedContext string
	lastAccessed   time.Time
	removed        bool
}

func (s *Session) ID() string {
	return s.id
}

// Turns returns a copy of the history, oldest first.
func (s *Session) Turns() []models.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// RecentTurns returns a copy of at most the last n turns, oldest first.
func (s *Session) RecentTurns(n int) []models.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if n < len(s.turns) {
		start = len(s.turns) - n
	}
	out := make([]models.Turn, len(s.turns)-start)
	copy(out, s.turns[start:])
	return out
}

func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

func (s *Session) DerivedContext() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.derivedContext
}

func (s *Session) SetDerivedContext(ctx string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.derivedContext = ctx
}

func (s *Session) LastAccessed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAccessed
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccessed = now
	s.mu.Unlock()
}

func (s *Session) append(t models.Turn, max int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, t)
	if over := len(s.turns) - max; over > 0 {
		// Copy so evicted turns don't stay reachable through the backing array.
		kept := make([]models.Turn, max)
		copy(kept, s.turns[over:])
		s.turns = kept
	}
	s.lastAccessed = t.Timestamp
}

func (s *Session) isRemoved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.removed
}

func (s *Session) markRemoved() {
	s.mu.Lock()
	s.removed = true
	s.mu.Unlock()
}

// Store is the registry of live sessions. Sessions are created lazily on first
// reference and removed by Delete or by idle expiry.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	maxTurns int
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewStore creates a registry keeping at most maxTurns turns per session. A
// zero ttl disables idle expiry.
func NewStore(maxTurns int, ttl time.Duration, logger *zap.Logger) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{
		sessions: make(map[string]*Session),
		maxTurns: maxTurns,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *Store) MaxTurns() int {
	return s.maxTurns
}

// GetOrCreate returns the session for id, creating it if needed. It never
// fails and always refreshes the last-accessed time.
func (s *Store) GetOrCreate(id string) *Session {
	now := s.now()

	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		s.mu.Lock()
		sess, ok = s.sessions[id]
		if !ok {
			sess = &Session{
				id:             id,
				derivedContext: InitialContext,
			}
			s.sessions[id] = sess
			s.logger.Debug("Session created", zap.String("session_id", id))
		}
		s.mu.Unlock()
	}

	sess.touch(now)
	return sess
}

// Get returns an existing session without creating one.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Acquire returns the session for id with its turn lock held. The caller must
// call release exactly once. Turns on different ids never block each other.
func (s *Store) Acquire(id string) (*Session, func()) {
	for {
		sess := s.GetOrCreate(id)
		sess.turnMu.Lock()
		if !sess.isRemoved() {
			return sess, sess.turnMu.Unlock
		}
		// Deleted or expired between lookup and lock; retry on a fresh entry.
		sess.turnMu.Unlock()
	}
}

// AddMessage appends a turn to the session for id, creating it if needed.
func (s *Store) AddMessage(id string, role models.Role, content string) {
	s.Append(s.GetOrCreate(id), role, content)
}

// Append adds a turn to sess, evicting the oldest turns so the history never
// exceeds the configured cap. Turns for a deleted or expired session are
// dropped and Append reports false.
func (s *Store) Append(sess *Session, role models.Role, content string) bool {
	if sess.isRemoved() {
		return false
	}
	sess.append(models.Turn{
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	}, s.maxTurns)
	return true
}

// Delete drops the session for id, reporting whether it existed. It waits for
// a turn in flight on the session to finish before removing it.
func (s *Store) Delete(id string) bool {
	for {
		s.mu.RLock()
		sess, ok := s.sessions[id]
		s.mu.RUnlock()
		if !ok {
			return false
		}

		// Never block on turnMu while holding s.mu: turns take s.mu under turnMu.
		sess.turnMu.Lock()
		if sess.isRemoved() {
			// Removed while we waited; look again in case the id was reused.
			sess.turnMu.Unlock()
			continue
		}

		s.mu.Lock()
		if s.sessions[id] == sess {
			delete(s.sessions, id)
		}
		s.mu.Unlock()

		sess.markRemoved()
		sess.turnMu.Unlock()
		return true
	}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Expire removes sessions idle for longer than the ttl. Sessions with a turn
// in flight are skipped. It returns the number removed.
func (s *Store) Expire() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if !sess.LastAccessed().Before(cutoff) {
			continue
		}
		if !sess.turnMu.TryLock() {
			continue
		}
		delete(s.sessions, id)
		sess.markRemoved()
		sess.turnMu.Unlock()
		removed++
	}
	return removed
}

// StartJanitor runs Expire every interval until ctx is done.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		s.logger.Info("Session janitor started",
			zap.Duration("interval", interval),
			zap.Duration("ttl", s.ttl))

		for {
			select {
			case <-ticker.C:
				if n := s.Expire(); n > 0 {
					s.logger.Info("Expired idle sessions",
						zap.Int("count", n),
						zap.Int("remaining", s.Len()))
				}
			case <-ctx.Done():
				s.logger.Info("Session janitor shutting down", zap.Error(ctx.Err()))
				return
			}
		}
	}()
}
