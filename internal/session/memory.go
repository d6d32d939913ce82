package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

const defaultSweepInterval = 5 * time.Minute

// MemoryStore keeps sessions in a process-local map. Suitable for
// development and tests only: sessions die with the process and cannot be
// shared across instances. Expired entries are dropped lazily on access and
// by a background sweep.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepDone     chan struct{}
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithSweepInterval overrides how often the background sweep runs.
func WithSweepInterval(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.sweepInterval = d
	}
}

// NewMemoryStore creates an in-memory session store and starts its sweep
// goroutine. Call Close to stop it.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		sessions:      make(map[string]Session),
		sweepInterval: defaultSweepInterval,
		stopSweep:     make(chan struct{}),
		sweepDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.sweepLoop()

	return s
}

func (s *MemoryStore) Create(_ context.Context, sess Session) error {
	if sess.SessionID == "" || sess.RefreshToken == "" {
		return errors.New("session: missing session_id or refresh_token")
	}
	if !sess.ExpiresAt.After(time.Now()) {
		return errors.New("session: expires_at must be in the future")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.SessionID] = sess
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if sess.Expired(time.Now()) {
		// Lazy deletion: a stale entry must not linger once observed.
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()
		return nil, nil
	}

	copied := sess
	return &copied, nil
}

func (s *MemoryStore) Update(_ context.Context, sess Session) error {
	if sess.SessionID == "" {
		return errors.New("session: missing session_id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.Expired(time.Now()) {
		delete(s.sessions, sess.SessionID)
		return nil
	}
	s.sessions[sess.SessionID] = sess
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Len reports the number of stored sessions, expired entries included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the background sweep goroutine. Safe to call once.
func (s *MemoryStore) Close() {
	close(s.stopSweep)
	<-s.sweepDone
}

func (s *MemoryStore) sweepLoop() {
	defer close(s.sweepDone)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.stopSweep:
			return
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
		}
	}
}
