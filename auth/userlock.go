package auth

import "sync"

// userLocks serializes admission per user key so the quota check-then-create
// sequence observes a stable snapshot. Locks are never removed; the map is
// bounded by the number of distinct users seen by this process.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its release function.
func (l *userLocks) lock(key string) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
