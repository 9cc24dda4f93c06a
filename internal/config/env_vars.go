package config

import (
	"fmt"
	"os"
)

const (
	portEnvVar   = "PORT"
	appNameVar   = "APP_NAME"
	frontendVar  = "FRONTEND_URI"
	backendVar   = "BACKEND_URI"
	dbPathVar    = "DB_PATH"
	redisAddrVar = "REDIS_ADDR"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8000")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "N-auth")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

// GetFrontendURI returns the origin of the web client. The login callback
// redirects here and CORS is restricted to it.
func (EnvVars) GetFrontendURI() string {
	return GetEnv(frontendVar, "http://localhost:3000")
}

// GetBackendURI returns the externally visible base URL of this service,
// used to build the identity-provider redirect URI.
func (EnvVars) GetBackendURI() string {
	return GetEnv(backendVar, "http://localhost:8000")
}

func (EnvVars) GetDBPath() string {
	return GetEnv(dbPathVar, "./data/sessions.db")
}

// GetRedisAddr returns the address of the shared pending-login store.
// Empty means the process-local in-memory store is used instead.
func (EnvVars) GetRedisAddr() string {
	return GetEnv(redisAddrVar, "")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
