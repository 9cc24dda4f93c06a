package authstate

import (
	"errors"
	"sync"
	"time"
)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface.
// Entries older than the TTL are swept opportunistically on writes, so
// abandoned login redirects do not accumulate.
type InMemoryRepo struct {
	mu      sync.RWMutex
	states  map[string]*FlowState
	ttl     time.Duration
	nowTime func() time.Time
}

// InMemoryRepoOption modifies an InMemoryRepo instance.
type InMemoryRepoOption func(*InMemoryRepo)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) InMemoryRepoOption {
	return func(r *InMemoryRepo) {
		r.nowTime = nowFunc
	}
}

// NewInMemoryRepo creates an in-memory auth flow state repository whose
// entries are swept after the given TTL.
func NewInMemoryRepo(ttl time.Duration, options ...InMemoryRepoOption) *InMemoryRepo {
	r := &InMemoryRepo{
		states:  make(map[string]*FlowState),
		ttl:     ttl,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Upsert stores or updates an auth flow state
func (r *InMemoryRepo) Upsert(state string, flowState *FlowState) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if flowState == nil {
		return errors.New("flowState cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.purgeExpiredLocked()

	// Copy to prevent external modifications
	r.states[state] = &FlowState{
		Nonce:     flowState.Nonce,
		ReturnURL: flowState.ReturnURL,
		CreatedAt: flowState.CreatedAt,
	}

	return nil
}

// Get retrieves an auth flow state by state parameter
func (r *InMemoryRepo) Get(state string) (*FlowState, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	flowState, exists := r.states[state]
	if !exists {
		return nil, errors.New("state not found")
	}

	return &FlowState{
		Nonce:     flowState.Nonce,
		ReturnURL: flowState.ReturnURL,
		CreatedAt: flowState.CreatedAt,
	}, nil
}

// Delete removes an auth flow state
func (r *InMemoryRepo) Delete(state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, state)
	return nil
}

func (r *InMemoryRepo) purgeExpiredLocked() {
	now := r.nowTime()
	for state, flowState := range r.states {
		if now.Sub(flowState.CreatedAt) > r.ttl {
			delete(r.states, state)
		}
	}
}
