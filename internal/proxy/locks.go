package proxy

import "sync"

// sessionLocks serializes refreshes per session id. Without it two
// concurrent refreshes would both read the stored refresh token and the
// loser would burn a single-use token at the provider.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*lockEntry)}
}

// acquire blocks until the per-id lock is held and returns the release
// function. Entries are reference counted so the map does not grow with
// dead session ids.
func (l *sessionLocks) acquire(id string) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &lockEntry{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
