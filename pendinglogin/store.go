// Package pendinglogin holds identity-provider login results between the
// callback redirect and device binding. Entries are correlated by an opaque
// login_id capability token, consumed at most once, and unusable past a TTL.
package pendinglogin

import (
	"context"
	"time"
)

// Identity is the verified user identity extracted from the ID token.
type Identity struct {
	Subject     string
	Email       string
	DisplayName string
}

// TokenPair carries the raw tokens issued by the identity provider.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
}

// PendingLogin bridges a completed code exchange and the eventual
// device-bound session.
type PendingLogin struct {
	LoginID   string
	Identity  Identity
	Tokens    TokenPair
	CreatedAt time.Time
}

// Store is the consume-once holding area. Put generates the login_id.
// Take is destructive: the first successful read removes the entry, so a
// login_id cannot be replayed. Expired entries behave as absent and are
// purged. Both report absence as errors.ErrLoginNotFound.
type Store interface {
	Put(ctx context.Context, identity Identity, tokens TokenPair) (string, error)
	Take(ctx context.Context, loginID string) (*PendingLogin, error)
}
