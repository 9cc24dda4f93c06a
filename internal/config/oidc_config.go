package config

import (
	"fmt"
	"time"
)

// OIDCConfig describes the external identity provider this service brokers
// logins against. The issuer is derived from the tenant domain unless set
// explicitly.
type OIDCConfig interface {
	GetDomain() string
	GetIssuer() string
	GetAudience() string
	GetClientID() string
	GetClientSecret() string
	GetJWKSURL() string
	GetExternalCallTimeout() time.Duration
}

type OIDC struct{}

var _ OIDCConfig = OIDC{}

func (OIDC) GetDomain() string {
	return GetEnv("DOMAIN", "")
}

func (o OIDC) GetIssuer() string {
	issuer := GetEnv("ISSUER", "")
	if issuer != "" {
		return issuer
	}
	return fmt.Sprintf("https://%s/", o.GetDomain())
}

func (OIDC) GetAudience() string {
	return GetEnv("API_AUDIENCE", "")
}

func (OIDC) GetClientID() string {
	return GetEnv("CLIENT_ID", "")
}

func (OIDC) GetClientSecret() string {
	return GetEnv("CLIENT_SECRET", "")
}

func (o OIDC) GetJWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", o.GetDomain())
}

// GetExternalCallTimeout bounds every identity-provider call (code exchange,
// key resolution, refresh grant).
func (OIDC) GetExternalCallTimeout() time.Duration {
	return 10 * time.Second
}
