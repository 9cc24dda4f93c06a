// Package refresh lazily renews a session's access token through the
// identity provider's refresh grant.
package refresh

import (
	"context"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	ierrors "github.com/nauthd/nauth/internal/errors"
	"github.com/nauthd/nauth/internal/tokencrypt"
	"github.com/nauthd/nauth/sessions"
	"golang.org/x/oauth2"
)

// Coordinator posts refresh grants for sessions whose access token has
// expired and commits the renewed pair. A failed refresh is fatal only to
// the request that needed a fresh token; the session itself stays open.
type Coordinator struct {
	sessionRepo sessions.Repo
	cipher      *tokencrypt.Cipher
	oauth       *oauth2.Config
	timeout     time.Duration
	nowTime     func() time.Time
}

// CoordinatorOption modifies a Coordinator instance.
type CoordinatorOption func(*Coordinator)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.nowTime = nowFunc
	}
}

// NewCoordinator creates a Coordinator. oauth must carry the provider's
// token endpoint and client credentials; timeout bounds each refresh call.
func NewCoordinator(sessionRepo sessions.Repo, cipher *tokencrypt.Cipher, oauth *oauth2.Config, timeout time.Duration, options ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		sessionRepo: sessionRepo,
		cipher:      cipher,
		oauth:       oauth,
		timeout:     timeout,
		nowTime:     time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// EnsureFresh renews the session's access token if it has expired,
// overwriting both the stored row and the passed session. No-op for tokens
// that are still fresh.
func (c *Coordinator) EnsureFresh(ctx context.Context, session *sessions.Session) error {
	accessToken, err := c.cipher.Decrypt(session.AccessToken)
	if err != nil {
		return ierrors.Wrapf(err, "[Coordinator.EnsureFresh] decrypt access token")
	}
	if !Expired(accessToken, c.nowTime()) {
		return nil
	}

	refreshToken, err := c.cipher.Decrypt(session.RefreshToken)
	if err != nil {
		return ierrors.Wrapf(err, "[Coordinator.EnsureFresh] decrypt refresh token")
	}
	if refreshToken == "" {
		return ierrors.Wrapf(ierrors.ErrRefreshFailed, "[Coordinator.EnsureFresh] no refresh token stored")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	renewed, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return ierrors.Wrapf(ierrors.ErrRefreshFailed, "[Coordinator.EnsureFresh] refresh grant: %v", err)
	}

	// The provider may rotate the refresh token; keep the old one otherwise.
	if renewed.RefreshToken != "" {
		refreshToken = renewed.RefreshToken
	}

	sealedAccess, err := c.cipher.Encrypt(renewed.AccessToken)
	if err != nil {
		return ierrors.Wrapf(err, "[Coordinator.EnsureFresh] encrypt access token")
	}
	sealedRefresh, err := c.cipher.Encrypt(refreshToken)
	if err != nil {
		return ierrors.Wrapf(err, "[Coordinator.EnsureFresh] encrypt refresh token")
	}

	if err := c.sessionRepo.UpdateTokens(ctx, session.SessionID, sealedAccess, sealedRefresh); err != nil {
		return ierrors.Wrapf(err, "[Coordinator.EnsureFresh] commit tokens")
	}

	session.AccessToken = sealedAccess
	session.RefreshToken = sealedRefresh
	return nil
}

// Expired reports whether an access token's exp claim has passed. Tokens
// that cannot be parsed count as expired so the refresh path gets a chance
// to replace them.
func Expired(rawToken string, now time.Time) bool {
	if rawToken == "" {
		return true
	}
	unverified, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return true
	}
	exp, err := unverified.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return !exp.After(now)
}
