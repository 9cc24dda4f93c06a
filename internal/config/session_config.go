package config

import (
	"strconv"
	"time"
)

type SessionConfig interface {
	GetMaxDevices() int
	GetSessionLifetime() time.Duration
	GetPendingLoginTTL() time.Duration
	GetStorageRetryAttempts() int
}

type Session struct{}

var _ SessionConfig = Session{}

// GetMaxDevices returns MAX_N, the maximum number of distinct device
// identities a user may hold active sessions on.
func (Session) GetMaxDevices() int {
	if v, err := strconv.Atoi(GetEnv("MAX_N", "")); err == nil && v > 0 {
		return v
	}
	return 3
}

// GetSessionLifetime is fixed at session creation and never extended.
func (Session) GetSessionLifetime() time.Duration {
	return 30 * 24 * time.Hour
}

// GetPendingLoginTTL bounds how long an unclaimed login handoff stays usable.
func (Session) GetPendingLoginTTL() time.Duration {
	return 10 * time.Minute
}

func (Session) GetStorageRetryAttempts() int {
	return 3
}
