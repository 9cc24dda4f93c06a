package auth_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nauthd/nauth/auth"
	ierrors "github.com/nauthd/nauth/internal/errors"
	"github.com/nauthd/nauth/internal/tokencrypt"
	"github.com/nauthd/nauth/pendinglogin"
	"github.com/nauthd/nauth/sessions"
	"github.com/nauthd/nauth/sessions/repofakes"
	"github.com/stretchr/testify/require"
)

const (
	testUserSubject = "auth0|user-1"
	testUserEmail   = "john.doe@example.com"
	testMaxDevices  = 2
)

var (
	startTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	deviceA = sessions.DeviceIdentity{Address: "10.0.0.1", Name: "laptop", Info: "Firefox on Linux"}
	deviceB = sessions.DeviceIdentity{Address: "10.0.0.2", Name: "phone", Info: "Safari on iOS"}
	deviceC = sessions.DeviceIdentity{Address: "10.0.0.3", Name: "tablet", Info: "Chrome on Android"}
)

type testSessionConfig struct {
	maxDevices int
}

func (c testSessionConfig) GetMaxDevices() int { return c.maxDevices }

func (testSessionConfig) GetSessionLifetime() time.Duration { return 30 * 24 * time.Hour }

func (testSessionConfig) GetPendingLoginTTL() time.Duration { return 10 * time.Minute }

func (testSessionConfig) GetStorageRetryAttempts() int { return 3 }

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	err   error
	// onFresh mutates the session like a real renewal would
	onFresh func(*sessions.Session)
}

func (f *fakeRefresher) EnsureFresh(_ context.Context, session *sessions.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.onFresh != nil {
		f.onFresh(session)
	}
	return nil
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// testFixture holds all test dependencies
type testFixture struct {
	sessionRepo *repofakes.FakeSessionRepo
	pending     *pendinglogin.InMemoryStore
	cipher      *tokencrypt.Cipher
	refresher   *fakeRefresher
	service     *auth.Service
	now         time.Time
}

// setupTestFixture creates a new test fixture with all dependencies
func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		sessionRepo: repofakes.NewFakeSessionRepo(),
		refresher:   &fakeRefresher{},
		now:         startTime,
	}
	nowFunc := func() time.Time { return f.now }

	f.pending = pendinglogin.NewInMemoryStore(10*time.Minute, pendinglogin.WithNowTime(nowFunc))

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	cipher, err := tokencrypt.New(key)
	require.NoError(t, err)
	f.cipher = cipher

	registry, err := auth.NewRegistry(f.sessionRepo, testSessionConfig{maxDevices: testMaxDevices},
		auth.WithRegistryNowTime(nowFunc))
	require.NoError(t, err)

	service, err := auth.NewService(
		auth.Repos{Sessions: f.sessionRepo, PendingLogins: f.pending},
		registry,
		f.refresher,
		cipher,
		auth.WithNowTime(nowFunc),
	)
	require.NoError(t, err)
	f.service = service

	return f
}

// newLogin stores a pending login and returns its login_id
func (f *testFixture) newLogin(t *testing.T) string {
	t.Helper()

	loginID, err := f.pending.Put(context.Background(),
		pendinglogin.Identity{Subject: testUserSubject, Email: testUserEmail, DisplayName: "John Doe"},
		pendinglogin.TokenPair{AccessToken: "access-raw", RefreshToken: "refresh-raw", IDToken: "id-raw"},
	)
	require.NoError(t, err)
	return loginID
}

func (f *testFixture) admit(t *testing.T, device sessions.DeviceIdentity) *auth.Outcome {
	t.Helper()

	outcome, err := f.service.CreateOrReuse(context.Background(), f.newLogin(t), device)
	require.NoError(t, err)
	return outcome
}

func TestCreateOrReuseAdmitsNewDevice(t *testing.T) {
	f := setupTestFixture(t)

	outcome := f.admit(t, deviceA)
	require.False(t, outcome.Reused)
	require.NotEmpty(t, outcome.Session.SessionID)
	require.True(t, outcome.Session.Active)
	require.Equal(t, testUserEmail, outcome.Session.UserEmail)
	require.Equal(t, startTime.Add(30*24*time.Hour), outcome.Session.ExpiresAt)

	// Provider tokens are stored encrypted, never as plaintext
	stored, err := f.sessionRepo.Get(context.Background(), outcome.Session.SessionID)
	require.NoError(t, err)
	require.NotEqual(t, "access-raw", stored.AccessToken)
	plain, err := f.cipher.Decrypt(stored.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "access-raw", plain)
}

func TestCreateOrReuseConsumesLogin(t *testing.T) {
	f := setupTestFixture(t)

	loginID := f.newLogin(t)
	_, err := f.service.CreateOrReuse(context.Background(), loginID, deviceA)
	require.NoError(t, err)

	_, err = f.service.CreateOrReuse(context.Background(), loginID, deviceB)
	require.ErrorIs(t, err, ierrors.ErrLoginNotFound)
}

func TestCreateOrReuseUnknownLogin(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.CreateOrReuse(context.Background(), "no-such-login", deviceA)
	require.ErrorIs(t, err, ierrors.ErrLoginNotFound)
}

func TestSameDeviceIsReusedNotReadmitted(t *testing.T) {
	f := setupTestFixture(t)

	first := f.admit(t, deviceA)

	f.now = f.now.Add(time.Hour)
	// Same (address, name) with different free-form info is the same device
	sameDevice := deviceA
	sameDevice.Info = "Chromium on Linux"
	second := f.admit(t, sameDevice)

	require.True(t, second.Reused)
	require.Equal(t, first.Session.SessionID, second.Session.SessionID)
	require.Equal(t, startTime.Add(time.Hour), second.Session.LastActive)
	require.Equal(t, first.Session.ExpiresAt, second.Session.ExpiresAt)

	// No second row for the device
	require.Len(t, f.sessionRepo.AllRows(), 1)
}

func TestQuotaExceededListsDevices(t *testing.T) {
	f := setupTestFixture(t)

	f.admit(t, deviceA)
	f.admit(t, deviceB)

	_, err := f.service.CreateOrReuse(context.Background(), f.newLogin(t), deviceC)
	var quotaErr *auth.QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	require.Equal(t, testMaxDevices, quotaErr.Max)
	require.Len(t, quotaErr.Devices, 2)
	require.Equal(t, deviceA.Address, quotaErr.Devices[0].Address)
	require.Equal(t, deviceB.Address, quotaErr.Devices[1].Address)
	require.Equal(t, 1, quotaErr.Devices[0].ActiveSessions)
}

func TestForceLogoutFreesQuotaSlot(t *testing.T) {
	f := setupTestFixture(t)

	f.admit(t, deviceA)
	f.admit(t, deviceB)

	affected, err := f.service.ForceLogout(context.Background(), deviceA.Key(), deviceB.Address)
	require.NoError(t, err)
	require.Equal(t, 1, affected)

	outcome := f.admit(t, deviceC)
	require.False(t, outcome.Reused)
}

// Force logouts racing fresh admissions for the same user must leave at most
// the allowed number of live devices, and a closed row must never come back
// to life. ForceLogout deliberately skips the admission lock: the store only
// ever closes active rows, so a closure wins any interleaving and the quota
// can only shrink under it.
func TestForceLogoutRacingAdmissionKeepsQuota(t *testing.T) {
	const attempts = 20

	f := setupTestFixture(t)
	f.admit(t, deviceA)

	logins := make([]string, attempts)
	for i := range logins {
		logins[i] = f.newLogin(t)
	}

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		device := sessions.DeviceIdentity{
			Address: fmt.Sprintf("10.1.0.%d", i),
			Name:    fmt.Sprintf("device-%d", i),
		}
		loginID := logins[i]

		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := f.service.CreateOrReuse(context.Background(), loginID, device); err != nil {
				var quotaErr *auth.QuotaExceededError
				require.ErrorAs(t, err, &quotaErr)
			}
		}()
		go func() {
			defer wg.Done()
			_, err := f.service.ForceLogout(context.Background(), deviceA.Key(), deviceB.Address)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	live := make(map[sessions.DeviceKey]struct{})
	for _, row := range f.sessionRepo.AllRows() {
		if row.ClosedReason != sessions.ClosedReasonNone {
			require.False(t, row.Active)
		}
		if row.ClosedReason == sessions.ClosedReasonForceLogout {
			require.Equal(t, deviceB.Address, row.ForceLoggedBy)
		}
		if row.Live(startTime) {
			live[row.Device.Key()] = struct{}{}
		}
	}
	require.NotEmpty(t, live)
	require.LessOrEqual(t, len(live), testMaxDevices)
}

func TestForceLogoutNoMatchesIsNoOp(t *testing.T) {
	f := setupTestFixture(t)

	affected, err := f.service.ForceLogout(context.Background(), deviceC.Key(), deviceA.Address)
	require.NoError(t, err)
	require.Zero(t, affected)
}

func TestValidateUnknownSession(t *testing.T) {
	f := setupTestFixture(t)

	result, err := f.service.Validate(context.Background(), "no-such-session")
	require.NoError(t, err)
	require.Equal(t, auth.StatusNotFound, result.Status)
}

func TestValidateTouchesOnlyLastActive(t *testing.T) {
	f := setupTestFixture(t)
	outcome := f.admit(t, deviceA)

	f.now = f.now.Add(48 * time.Hour)
	result, err := f.service.Validate(context.Background(), outcome.Session.SessionID)
	require.NoError(t, err)
	require.Equal(t, auth.StatusValid, result.Status)

	stored, err := f.sessionRepo.Get(context.Background(), outcome.Session.SessionID)
	require.NoError(t, err)
	require.Equal(t, f.now, stored.LastActive)
	require.Equal(t, startTime.Add(30*24*time.Hour), stored.ExpiresAt)
}

func TestValidateExpiredSessionClosedOnce(t *testing.T) {
	f := setupTestFixture(t)
	outcome := f.admit(t, deviceA)

	f.now = f.now.Add(31 * 24 * time.Hour)
	result, err := f.service.Validate(context.Background(), outcome.Session.SessionID)
	require.NoError(t, err)
	require.Equal(t, auth.StatusExpired, result.Status)

	stored, err := f.sessionRepo.Get(context.Background(), outcome.Session.SessionID)
	require.NoError(t, err)
	require.False(t, stored.Active)
	require.Equal(t, sessions.ClosedReasonExpired, stored.ClosedReason)
	require.NotNil(t, stored.ClosedAt)
	closedAt := *stored.ClosedAt

	// Second validate reports expired again without rewriting the closure
	f.now = f.now.Add(time.Hour)
	result, err = f.service.Validate(context.Background(), outcome.Session.SessionID)
	require.NoError(t, err)
	require.Equal(t, auth.StatusExpired, result.Status)

	stored, err = f.sessionRepo.Get(context.Background(), outcome.Session.SessionID)
	require.NoError(t, err)
	require.Equal(t, closedAt, *stored.ClosedAt)
	require.Equal(t, sessions.ClosedReasonExpired, stored.ClosedReason)
}

func TestValidateForceLogoutTakesPrecedenceOverExpiry(t *testing.T) {
	f := setupTestFixture(t)
	outcome := f.admit(t, deviceA)

	_, err := f.service.ForceLogout(context.Background(), deviceA.Key(), deviceB.Address)
	require.NoError(t, err)

	// Even past natural expiry, force logout detail wins
	f.now = f.now.Add(31 * 24 * time.Hour)
	result, err := f.service.Validate(context.Background(), outcome.Session.SessionID)
	require.NoError(t, err)
	require.Equal(t, auth.StatusForceLoggedOut, result.Status)
	require.NotNil(t, result.ForceLogout)
	require.Equal(t, deviceB.Address, result.ForceLogout.By)
	require.Equal(t, startTime, result.ForceLogout.At)
	require.NotEmpty(t, result.ForceLogout.Message)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)
	outcome := f.admit(t, deviceA)

	closed, err := f.service.Logout(context.Background(), outcome.Session.SessionID)
	require.NoError(t, err)
	require.True(t, closed)

	stored, err := f.sessionRepo.Get(context.Background(), outcome.Session.SessionID)
	require.NoError(t, err)
	require.False(t, stored.Active)
	require.Equal(t, sessions.ClosedReasonUserLogout, stored.ClosedReason)

	closed, err = f.service.Logout(context.Background(), outcome.Session.SessionID)
	require.NoError(t, err)
	require.False(t, closed)

	// The first closure is never overwritten
	stored, err = f.sessionRepo.Get(context.Background(), outcome.Session.SessionID)
	require.NoError(t, err)
	require.Equal(t, sessions.ClosedReasonUserLogout, stored.ClosedReason)
}

func TestValidateInvokesRefresherOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.refresher.onFresh = func(s *sessions.Session) {
		s.AccessToken = "renewed-ciphertext"
	}
	outcome := f.admit(t, deviceA)

	result, err := f.service.Validate(context.Background(), outcome.Session.SessionID)
	require.NoError(t, err)
	require.Equal(t, auth.StatusValid, result.Status)
	require.Equal(t, 1, f.refresher.callCount())
	require.Equal(t, "renewed-ciphertext", result.Session.AccessToken)
}

func TestValidateSurvivesRefreshFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.refresher.err = ierrors.ErrRefreshFailed
	outcome := f.admit(t, deviceA)

	result, err := f.service.Validate(context.Background(), outcome.Session.SessionID)
	require.NoError(t, err)
	require.Equal(t, auth.StatusValid, result.Status)

	// But the caller that needs a fresh token fails
	_, err = f.service.CurrentUser(context.Background(), outcome.Session.SessionID)
	require.ErrorIs(t, err, ierrors.ErrRefreshFailed)

	// And the session itself is still open
	stored, err := f.sessionRepo.Get(context.Background(), outcome.Session.SessionID)
	require.NoError(t, err)
	require.True(t, stored.Active)
}

func TestCurrentUserReturnsIdentity(t *testing.T) {
	f := setupTestFixture(t)
	outcome := f.admit(t, deviceA)

	identity, err := f.service.CurrentUser(context.Background(), outcome.Session.SessionID)
	require.NoError(t, err)
	require.Equal(t, testUserSubject, identity.UserID)
	require.Equal(t, testUserEmail, identity.Email)
}

func TestCurrentUserAfterForceLogout(t *testing.T) {
	f := setupTestFixture(t)
	outcome := f.admit(t, deviceA)

	_, err := f.service.ForceLogout(context.Background(), deviceA.Key(), deviceB.Address)
	require.NoError(t, err)

	_, err = f.service.CurrentUser(context.Background(), outcome.Session.SessionID)
	var forceErr *auth.ForceLogoutError
	require.ErrorAs(t, err, &forceErr)
	require.Equal(t, deviceB.Address, forceErr.By)
}

func TestAdmissionRetriesOnStorageConflict(t *testing.T) {
	f := setupTestFixture(t)
	f.sessionRepo.CreateErr = ierrors.ErrStorageConflict

	outcome := f.admit(t, deviceA)
	require.False(t, outcome.Reused)
	require.True(t, outcome.Session.Active)
}
