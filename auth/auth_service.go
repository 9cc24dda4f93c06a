// Package auth owns the session lifecycle: device admission, validation,
// logout, and force logout. It is the single writer of session state
// transitions; no other component flips Active or the closed_* fields.
package auth

import (
	"context"
	"fmt"
	"time"

	ierrors "github.com/nauthd/nauth/internal/errors"
	"github.com/nauthd/nauth/internal/tokencrypt"
	"github.com/nauthd/nauth/pendinglogin"
	"github.com/nauthd/nauth/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SessionStatus is the outcome of a cookie validation.
type SessionStatus int

const (
	StatusValid SessionStatus = iota
	StatusNotFound
	StatusExpired
	StatusForceLoggedOut
)

// ForceLogoutDetails is the audit detail attached to a force-logged-out
// validation result.
type ForceLogoutDetails struct {
	By      string
	At      time.Time
	Message string
}

// ValidationResult reports the state of a presented session credential.
// Session is set only for StatusValid.
type ValidationResult struct {
	Status      SessionStatus
	Session     *sessions.Session
	ForceLogout *ForceLogoutDetails
}

// UserIdentity is the resolved identity behind a valid session.
type UserIdentity struct {
	UserID string
	Email  string
}

// TokenRefresher lazily renews a session's provider tokens. No-op when the
// access token is still fresh.
type TokenRefresher interface {
	EnsureFresh(ctx context.Context, session *sessions.Session) error
}

// Repos holds all repository dependencies for the Service
type Repos struct {
	Sessions      sessions.Repo      // Durable session records
	PendingLogins pendinglogin.Store // Login handoff holding area
}

// Service orchestrates the session lifecycle.
type Service struct {
	repos     Repos
	registry  *Registry
	refresher TokenRefresher
	cipher    *tokencrypt.Cipher
	nowTime   func() time.Time // nowTime function (injectable for testing)
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// NewService initializes the lifecycle manager with required dependencies.
// Optional configuration can be provided via options (e.g., WithNowTime for testing).
func NewService(
	repos Repos,
	registry *Registry,
	refresher TokenRefresher,
	cipher *tokencrypt.Cipher,
	options ...ServiceOption,
) (*Service, error) {
	if repos.Sessions == nil {
		return nil, errors.New("[NewService] Sessions repo is required")
	}
	if repos.PendingLogins == nil {
		return nil, errors.New("[NewService] PendingLogins store is required")
	}
	if registry == nil {
		return nil, errors.New("[NewService] registry is required")
	}
	if refresher == nil {
		return nil, errors.New("[NewService] refresher is required")
	}
	if cipher == nil {
		return nil, errors.New("[NewService] cipher is required")
	}

	service := &Service{
		repos:     repos,
		registry:  registry,
		refresher: refresher,
		cipher:    cipher,
		nowTime:   time.Now,
	}
	for _, opt := range options {
		opt(service)
	}
	return service, nil
}

// StashLogin parks a verified login result in the handoff store and returns
// the one-time login_id that the frontend presents during device binding.
func (s *Service) StashLogin(ctx context.Context, identity pendinglogin.Identity, tokens pendinglogin.TokenPair) (string, error) {
	loginID, err := s.repos.PendingLogins.Put(ctx, identity, tokens)
	if err != nil {
		return "", errors.Wrap(err, "[Service.StashLogin] Put")
	}
	return loginID, nil
}

// CreateOrReuse consumes a pending login and binds it to the presenting
// device. Errors: errors.ErrLoginNotFound for an unknown, consumed, or
// stale login_id; *QuotaExceededError when the device cap is hit.
func (s *Service) CreateOrReuse(ctx context.Context, loginID string, device sessions.DeviceIdentity) (*Outcome, error) {
	login, err := s.repos.PendingLogins.Take(ctx, loginID)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.CreateOrReuse] Take")
	}

	sealedAccess, err := s.cipher.Encrypt(login.Tokens.AccessToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.CreateOrReuse] encrypt access token")
	}
	sealedRefresh, err := s.cipher.Encrypt(login.Tokens.RefreshToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.CreateOrReuse] encrypt refresh token")
	}

	outcome, err := s.registry.AdmitOrReuse(ctx, login, device, sealedAccess, sealedRefresh)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user", login.Identity.Email).
		Str("device_address", device.Address).
		Str("device_name", device.Name).
		Bool("reused", outcome.Reused).
		Msg("session admitted")
	return outcome, nil
}

// Validate resolves the state of a presented session_id. Force logout takes
// precedence over expiry because it carries user-facing audit detail. A
// valid session gets its LastActive touched; ExpiresAt never moves. Expiry
// noticed here closes the row exactly once with reason "expired".
func (s *Service) Validate(ctx context.Context, sessionID string) (*ValidationResult, error) {
	session, err := s.repos.Sessions.Get(ctx, sessionID)
	if err != nil {
		if ierrors.Is(err, ierrors.ErrSessionNotFound) {
			return &ValidationResult{Status: StatusNotFound}, nil
		}
		return nil, errors.Wrap(err, "[Service.Validate] Get")
	}

	now := s.nowTime()

	if !session.Active && session.ClosedReason == sessions.ClosedReasonForceLogout {
		return &ValidationResult{
			Status:      StatusForceLoggedOut,
			ForceLogout: forceLogoutDetails(session),
		}, nil
	}

	if !session.Active || session.Expired(now) {
		if session.Active {
			// First observer of the elapsed lifetime records the closure
			if _, err := s.repos.Sessions.Close(ctx, sessionID, sessions.Closure{
				Reason: sessions.ClosedReasonExpired,
				At:     now,
			}); err != nil {
				return nil, errors.Wrap(err, "[Service.Validate] Close expired")
			}
		}
		return &ValidationResult{Status: StatusExpired}, nil
	}

	if err := s.repos.Sessions.Touch(ctx, sessionID, now); err != nil {
		return nil, errors.Wrap(err, "[Service.Validate] Touch")
	}
	session.LastActive = now

	// Lazy token renewal. A refusal from the provider does not invalidate
	// the session; only callers that need a fresh token fail.
	if err := s.refresher.EnsureFresh(ctx, session); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("token refresh failed during validation")
	}

	return &ValidationResult{Status: StatusValid, Session: session}, nil
}

// CurrentUser returns the identity behind a session and requires the stored
// access token to be fresh, refreshing it if necessary. Errors:
// errors.ErrSessionNotFound, errors.ErrSessionExpired, *ForceLogoutError,
// or a wrapped errors.ErrRefreshFailed.
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*UserIdentity, error) {
	result, err := s.Validate(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case StatusNotFound:
		return nil, errors.Wrap(ierrors.ErrSessionNotFound, "[Service.CurrentUser]")
	case StatusExpired:
		return nil, errors.Wrap(ierrors.ErrSessionExpired, "[Service.CurrentUser]")
	case StatusForceLoggedOut:
		d := result.ForceLogout
		return nil, &ForceLogoutError{By: d.By, At: d.At, Message: d.Message}
	}

	// Validate's refresh is best-effort; this caller needs it to have worked
	if err := s.refresher.EnsureFresh(ctx, result.Session); err != nil {
		return nil, errors.Wrap(err, "[Service.CurrentUser] EnsureFresh")
	}

	return &UserIdentity{
		UserID: result.Session.UserID,
		Email:  result.Session.UserEmail,
	}, nil
}

// Logout closes the session with reason user_logout. Idempotent: a second
// call finds no active session and returns false, not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) (bool, error) {
	closed, err := s.repos.Sessions.Close(ctx, sessionID, sessions.Closure{
		Reason: sessions.ClosedReasonUserLogout,
		At:     s.nowTime(),
	})
	if err != nil {
		return false, errors.Wrap(err, "[Service.Logout] Close")
	}
	return closed, nil
}

// ForceLogout closes every active session on the target device identity in
// one transaction, recording the acting device and a user-facing message.
// Zero matches is a no-op success.
func (s *Service) ForceLogout(ctx context.Context, target sessions.DeviceKey, actorAddress string) (int, error) {
	now := s.nowTime()
	affected, err := s.repos.Sessions.CloseDevice(ctx, target, sessions.Closure{
		Reason:  sessions.ClosedReasonForceLogout,
		At:      now,
		By:      actorAddress,
		Message: fmt.Sprintf("Logged out remotely by device %s", actorAddress),
	})
	if err != nil {
		return 0, errors.Wrap(err, "[Service.ForceLogout] CloseDevice")
	}

	log.Info().
		Str("target_address", target.Address).
		Str("target_name", target.Name).
		Str("actor", actorAddress).
		Int("affected", affected).
		Msg("force logout")
	return affected, nil
}

func forceLogoutDetails(session *sessions.Session) *ForceLogoutDetails {
	details := &ForceLogoutDetails{
		By:      session.ForceLoggedBy,
		Message: session.ForceLogoutMessage,
	}
	if session.ForceLoggedAt != nil {
		details.At = *session.ForceLoggedAt
	} else if session.ClosedAt != nil {
		details.At = *session.ClosedAt
	}
	return details
}
