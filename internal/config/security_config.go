package config

import "encoding/base64"

type SecurityConfig interface {
	GetTokenCryptKey() []byte
	GetSessionCookieName() string
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetTokenCryptKey returns the 32-byte key used to encrypt identity-provider
// tokens at rest, base64 encoded in the environment. Empty if unset or
// malformed; the caller decides whether that is fatal.
func (Security) GetTokenCryptKey() []byte {
	raw := GetEnv("TOKEN_CRYPT_KEY", "")
	if raw == "" {
		return nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	return key
}

func (Security) GetSessionCookieName() string {
	return "session_id"
}
