package pendinglogin

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	ierrors "github.com/nauthd/nauth/internal/errors"
)

// InMemoryStore is the process-local Store. Fine for a single instance;
// horizontally scaled deployments need the Redis-backed store instead, or a
// login completed on one instance is invisible to the others.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]PendingLogin
	ttl     time.Duration
	nowTime func() time.Time
}

// InMemoryStoreOption modifies an InMemoryStore instance.
type InMemoryStoreOption func(*InMemoryStore)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) InMemoryStoreOption {
	return func(s *InMemoryStore) {
		s.nowTime = nowFunc
	}
}

// NewInMemoryStore creates an in-memory pending-login store with the given TTL.
func NewInMemoryStore(ttl time.Duration, options ...InMemoryStoreOption) *InMemoryStore {
	s := &InMemoryStore{
		entries: make(map[string]PendingLogin),
		ttl:     ttl,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) Put(_ context.Context, identity Identity, tokens TokenPair) (string, error) {
	loginID := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked()
	s.entries[loginID] = PendingLogin{
		LoginID:   loginID,
		Identity:  identity,
		Tokens:    tokens,
		CreatedAt: s.nowTime(),
	}
	return loginID, nil
}

func (s *InMemoryStore) Take(_ context.Context, loginID string) (*PendingLogin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[loginID]
	if !ok {
		return nil, ierrors.ErrLoginNotFound
	}
	delete(s.entries, loginID)

	if s.expired(entry) {
		return nil, ierrors.ErrLoginNotFound
	}
	return &entry, nil
}

func (s *InMemoryStore) expired(entry PendingLogin) bool {
	return s.nowTime().Sub(entry.CreatedAt) > s.ttl
}

func (s *InMemoryStore) purgeExpiredLocked() {
	for id, entry := range s.entries {
		if s.expired(entry) {
			delete(s.entries, id)
		}
	}
}
