package sessions

import (
	"context"
	"time"
)

// Repo defines durable session storage. Implementations must guarantee
// session_id uniqueness and report a duplicate insert as
// errors.ErrStorageConflict so admission can retry.
//
// Close and CloseDevice only transition rows that are still active, which
// keeps ClosedReason write-once regardless of caller interleaving.
type Repo interface {
	// Create inserts a new session row.
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by ID, active or not.
	// Returns errors.ErrSessionNotFound if absent.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// ActiveForUser returns the user's active, unexpired sessions.
	ActiveForUser(ctx context.Context, userEmail string, now time.Time) ([]*Session, error)

	// Touch advances LastActive on an active session.
	Touch(ctx context.Context, sessionID string, at time.Time) error

	// UpdateTokens overwrites the stored (encrypted) token pair.
	UpdateTokens(ctx context.Context, sessionID, accessToken, refreshToken string) error

	// Close transitions one session to inactive. Returns false if the
	// session was missing or already closed.
	Close(ctx context.Context, sessionID string, closure Closure) (bool, error)

	// CloseDevice transitions every active session on the device identity
	// key to inactive in a single transaction and returns the count.
	CloseDevice(ctx context.Context, device DeviceKey, closure Closure) (int, error)
}
