// Package repofakes provides an in-memory sessions.Repo for tests.
package repofakes

import (
	"context"
	"sync"
	"time"

	ierrors "github.com/nauthd/nauth/internal/errors"
	"github.com/nauthd/nauth/sessions"
)

// FakeSessionRepo is a thread-safe in-memory implementation of sessions.Repo.
type FakeSessionRepo struct {
	mu   sync.RWMutex
	rows map[string]*sessions.Session // sessionID -> row

	// CreateErr, when set, is returned by the next Create call and cleared.
	// Lets tests exercise the conflict-retry path.
	CreateErr error
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{rows: make(map[string]*sessions.Session)}
}

var _ sessions.Repo = (*FakeSessionRepo)(nil)

func (f *FakeSessionRepo) Create(_ context.Context, session *sessions.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CreateErr != nil {
		err := f.CreateErr
		f.CreateErr = nil
		return err
	}
	if _, exists := f.rows[session.SessionID]; exists {
		return ierrors.ErrStorageConflict
	}
	f.rows[session.SessionID] = copySession(session)
	return nil
}

func (f *FakeSessionRepo) Get(_ context.Context, sessionID string) (*sessions.Session, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	row, ok := f.rows[sessionID]
	if !ok {
		return nil, ierrors.ErrSessionNotFound
	}
	return copySession(row), nil
}

func (f *FakeSessionRepo) ActiveForUser(_ context.Context, userEmail string, now time.Time) ([]*sessions.Session, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []*sessions.Session
	for _, row := range f.rows {
		if row.UserEmail == userEmail && row.Live(now) {
			out = append(out, copySession(row))
		}
	}
	return out, nil
}

func (f *FakeSessionRepo) Touch(_ context.Context, sessionID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if row, ok := f.rows[sessionID]; ok && row.Active {
		row.LastActive = at
	}
	return nil
}

func (f *FakeSessionRepo) UpdateTokens(_ context.Context, sessionID, accessToken, refreshToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[sessionID]
	if !ok {
		return ierrors.ErrSessionNotFound
	}
	row.AccessToken = accessToken
	row.RefreshToken = refreshToken
	return nil
}

func (f *FakeSessionRepo) Close(_ context.Context, sessionID string, closure sessions.Closure) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[sessionID]
	if !ok || !row.Active {
		return false, nil
	}
	applyClosure(row, closure)
	return true, nil
}

func (f *FakeSessionRepo) CloseDevice(_ context.Context, device sessions.DeviceKey, closure sessions.Closure) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, row := range f.rows {
		if row.Active && row.Device.Key() == device {
			applyClosure(row, closure)
			count++
		}
	}
	return count, nil
}

// AllRows returns every stored row, closed ones included.
func (f *FakeSessionRepo) AllRows() []*sessions.Session {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]*sessions.Session, 0, len(f.rows))
	for _, row := range f.rows {
		out = append(out, copySession(row))
	}
	return out
}

func applyClosure(row *sessions.Session, closure sessions.Closure) {
	row.Active = false
	at := closure.At
	row.ClosedAt = &at
	row.ClosedReason = closure.Reason
	if closure.Reason == sessions.ClosedReasonForceLogout {
		row.ForceLoggedBy = closure.By
		row.ForceLoggedAt = &at
		row.ForceLogoutMessage = closure.Message
	}
}

func copySession(s *sessions.Session) *sessions.Session {
	dup := *s
	if s.ClosedAt != nil {
		at := *s.ClosedAt
		dup.ClosedAt = &at
	}
	if s.ForceLoggedAt != nil {
		at := *s.ForceLoggedAt
		dup.ForceLoggedAt = &at
	}
	return &dup
}
