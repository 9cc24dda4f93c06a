package config

import "github.com/joho/godotenv"

type Config interface {
	EnvConfig
	CorsConfig
	OIDCConfig
	SessionConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetFrontendURI() string
	GetBackendURI() string
	GetDBPath() string
	GetRedisAddr() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	OIDC
	Session
	Security
}

// New loads a .env file if one exists and returns the composed configuration.
func New() Config {
	_ = godotenv.Load()
	return mainConfig{}
}
