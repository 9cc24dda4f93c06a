package config

import "strings"

type Cors struct{}

var _ CorsConfig = Cors{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

// GetAllowedOrigins allows only the configured web client origin, with a
// loopback alias for local development.
func (Cors) GetAllowedOrigins() AllowedOrigins {
	return AllowedOrigins{
		EnvVars{}.GetFrontendURI(): nullValue{},
		"http://127.0.0.1:3000":    nullValue{},
	}
}

func (Cors) GetAllowedMethods() string {
	return "GET, POST, PUT, DELETE, OPTIONS"
}

func (Cors) GetAllowedHeaders() string {
	return "Content-Type, Authorization"
}
