package auth

import (
	"fmt"
	"time"
)

// DeviceSummary describes one device currently holding active sessions for a
// user. Returned with quota rejections so the client can offer revocation.
type DeviceSummary struct {
	Address        string `json:"device_address"`
	Name           string `json:"device_name"`
	ActiveSessions int    `json:"active_sessions"`
}

// QuotaExceededError reports that admission would exceed the per-user
// device cap. Devices lists the identities occupying the quota.
type QuotaExceededError struct {
	Max     int
	Devices []DeviceSummary
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("device limit reached: %d of %d devices active", len(e.Devices), e.Max)
}

// ForceLogoutError carries the audit detail shown to a user whose session
// was revoked remotely.
type ForceLogoutError struct {
	By      string
	At      time.Time
	Message string
}

func (e *ForceLogoutError) Error() string {
	return fmt.Sprintf("session force logged out by %s", e.By)
}
