package auth

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nauthd/nauth/internal/config"
	ierrors "github.com/nauthd/nauth/internal/errors"
	"github.com/nauthd/nauth/pendinglogin"
	"github.com/nauthd/nauth/sessions"
	"github.com/pkg/errors"
)

// Outcome is the result of an admission decision.
type Outcome struct {
	Session *sessions.Session
	Reused  bool
}

// Registry is the device-admission engine: given a user and a device
// identity it decides reuse, new admission, or quota rejection. The whole
// check-then-create sequence runs under a per-user lock so two concurrent
// logins cannot both observe a free slot and both admit.
type Registry struct {
	sessionRepo sessions.Repo
	locks       *userLocks
	maxDevices  int
	lifetime    time.Duration
	retries     int
	nowTime     func() time.Time
}

// RegistryOption defines a function type to modify the Registry instance.
type RegistryOption func(*Registry)

// WithRegistryNowTime sets the now time function (primarily for testing)
func WithRegistryNowTime(nowFunc func() time.Time) RegistryOption {
	return func(r *Registry) {
		r.nowTime = nowFunc
	}
}

// NewRegistry creates the admission engine.
func NewRegistry(sessionRepo sessions.Repo, cfg config.SessionConfig, options ...RegistryOption) (*Registry, error) {
	if sessionRepo == nil {
		return nil, errors.New("[NewRegistry] session repo is required")
	}
	if cfg == nil {
		return nil, errors.New("[NewRegistry] session config is required")
	}

	registry := &Registry{
		sessionRepo: sessionRepo,
		locks:       newUserLocks(),
		maxDevices:  cfg.GetMaxDevices(),
		lifetime:    cfg.GetSessionLifetime(),
		retries:     cfg.GetStorageRetryAttempts(),
		nowTime:     time.Now,
	}
	for _, opt := range options {
		opt(registry)
	}
	return registry, nil
}

// AdmitOrReuse applies the admission algorithm for a consumed pending login:
// an active unexpired session on the same (address, name) identity is
// reused, a new device is admitted while distinct devices stay under the
// cap, and otherwise the login is rejected with the current device list.
// sealedAccess and sealedRefresh are the already-encrypted provider tokens.
func (r *Registry) AdmitOrReuse(ctx context.Context, login *pendinglogin.PendingLogin, device sessions.DeviceIdentity, sealedAccess, sealedRefresh string) (*Outcome, error) {
	unlock := r.locks.lock(login.Identity.Email)
	defer unlock()

	now := r.nowTime()

	active, err := r.sessionRepo.ActiveForUser(ctx, login.Identity.Email, now)
	if err != nil {
		return nil, errors.Wrap(err, "[Registry.AdmitOrReuse] ActiveForUser")
	}

	byDevice := groupByDevice(active)

	// Known device: extend the existing session, no quota consumed
	if existing, ok := byDevice[device.Key()]; ok {
		session := existing[0]
		if err := r.sessionRepo.Touch(ctx, session.SessionID, now); err != nil {
			return nil, errors.Wrap(err, "[Registry.AdmitOrReuse] Touch")
		}
		session.LastActive = now
		return &Outcome{Session: session, Reused: true}, nil
	}

	if len(byDevice) >= r.maxDevices {
		return nil, &QuotaExceededError{
			Max:     r.maxDevices,
			Devices: summarize(byDevice),
		}
	}

	session := &sessions.Session{
		UserID:       login.Identity.Subject,
		UserEmail:    login.Identity.Email,
		Device:       device,
		AccessToken:  sealedAccess,
		RefreshToken: sealedRefresh,
		CreatedAt:    now,
		LastActive:   now,
		ExpiresAt:    now.Add(r.lifetime),
		Active:       true,
	}

	// Retry on ID collision; the conflict never reaches the caller unless
	// the attempts are exhausted.
	var createErr error
	for attempt := 0; attempt < r.retries; attempt++ {
		session.SessionID = uuid.New().String()
		createErr = r.sessionRepo.Create(ctx, session)
		if createErr == nil {
			return &Outcome{Session: session, Reused: false}, nil
		}
		if !ierrors.Is(createErr, ierrors.ErrStorageConflict) {
			return nil, errors.Wrap(createErr, "[Registry.AdmitOrReuse] Create")
		}
	}
	return nil, errors.Wrap(createErr, "[Registry.AdmitOrReuse] retries exhausted")
}

func groupByDevice(active []*sessions.Session) map[sessions.DeviceKey][]*sessions.Session {
	byDevice := make(map[sessions.DeviceKey][]*sessions.Session)
	for _, s := range active {
		key := s.Device.Key()
		byDevice[key] = append(byDevice[key], s)
	}
	for _, group := range byDevice {
		sort.Slice(group, func(i, j int) bool { return group[i].CreatedAt.Before(group[j].CreatedAt) })
	}
	return byDevice
}

func summarize(byDevice map[sessions.DeviceKey][]*sessions.Session) []DeviceSummary {
	summaries := make([]DeviceSummary, 0, len(byDevice))
	for key, group := range byDevice {
		summaries = append(summaries, DeviceSummary{
			Address:        key.Address,
			Name:           key.Name,
			ActiveSessions: len(group),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Address != summaries[j].Address {
			return summaries[i].Address < summaries[j].Address
		}
		return summaries[i].Name < summaries[j].Name
	})
	return summaries
}
