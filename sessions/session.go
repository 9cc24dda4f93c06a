package sessions

import "time"

// ClosedReason is the terminal state of a session. It is set exactly once,
// when Active flips to false, and never overwritten.
type ClosedReason string

const (
	ClosedReasonNone        ClosedReason = ""
	ClosedReasonUserLogout  ClosedReason = "user_logout"
	ClosedReasonForceLogout ClosedReason = "force_logout"
	ClosedReasonExpired     ClosedReason = "expired"
)

// DeviceIdentity is the unit of per-user quota accounting. Two devices are
// the same when Address and Name match exactly; Info is carried for display
// but takes no part in admission.
type DeviceIdentity struct {
	Address string
	Name    string
	Info    string
}

// SameDevice reports whether two identities count as one device.
func (d DeviceIdentity) SameDevice(other DeviceIdentity) bool {
	return d.Address == other.Address && d.Name == other.Name
}

// Key returns the admission key for grouping.
func (d DeviceIdentity) Key() DeviceKey {
	return DeviceKey{Address: d.Address, Name: d.Name}
}

// DeviceKey is the comparable (address, name) pair.
type DeviceKey struct {
	Address string
	Name    string
}

// Session is the durable record behind the session_id cookie. Token fields
// hold ciphertext; plaintext never reaches the store. Closed sessions are
// kept as audit history, never deleted.
type Session struct {
	SessionID string
	UserID    string
	UserEmail string
	Device    DeviceIdentity

	AccessToken  string
	RefreshToken string

	CreatedAt  time.Time
	LastActive time.Time
	ExpiresAt  time.Time // CreatedAt + lifetime, fixed at creation

	Active       bool
	ClosedAt     *time.Time
	ClosedReason ClosedReason

	// Force-logout audit trail, populated only for ClosedReasonForceLogout
	ForceLoggedBy      string
	ForceLoggedAt      *time.Time
	ForceLogoutMessage string
}

// Expired reports whether the session's fixed lifetime has elapsed.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Live reports whether the session counts toward the device quota.
func (s *Session) Live(now time.Time) bool {
	return s.Active && !s.Expired(now)
}

// Closure describes a single state transition to inactive.
type Closure struct {
	Reason  ClosedReason
	At      time.Time
	By      string // acting device address, force logout only
	Message string // human-readable detail, force logout only
}
