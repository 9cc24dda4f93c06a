// Package token verifies identity-provider bearer tokens and produces the
// claim set consumed by protected routes.
package token

import (
	"context"
	"crypto/rsa"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/nauthd/nauth/internal/config"
	ierrors "github.com/nauthd/nauth/internal/errors"
)

// ClaimSet is the verified identity extracted from a bearer token.
type ClaimSet struct {
	Subject     string
	Permissions []string
}

// KeyResolver resolves a JWT key ID to the provider's public key.
type KeyResolver interface {
	ResolveKey(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

type providerClaims struct {
	Permissions []string `json:"permissions"`
	jwtlib.RegisteredClaims
}

// Validator verifies RS256 bearer tokens against the configured audience and
// issuer. Every verification failure is reported as errors.ErrUnauthenticated;
// callers get no finer taxonomy.
type Validator struct {
	keys     KeyResolver
	audience string
	issuer   string
	nowTime  func() time.Time
}

// ValidatorOption modifies a Validator instance.
type ValidatorOption func(*Validator)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.nowTime = nowFunc
	}
}

// NewValidator creates a Validator bound to the provider's expectations.
func NewValidator(keys KeyResolver, cfg config.OIDCConfig, options ...ValidatorOption) *Validator {
	v := &Validator{
		keys:     keys,
		audience: cfg.GetAudience(),
		issuer:   cfg.GetIssuer(),
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(v)
	}
	return v
}

// Validate normalizes and verifies a raw bearer token. Fully synchronous;
// the only side effect is the resolver's key fetch.
func (v *Validator) Validate(ctx context.Context, rawToken string) (*ClaimSet, error) {
	cleaned := normalizeToken(rawToken)

	// A JWT decomposes into exactly header.payload.signature
	if parts := strings.Split(cleaned, "."); len(parts) != 3 {
		return nil, ierrors.Wrapf(ierrors.ErrUnauthenticated, "[Validator.Validate] malformed token structure")
	}

	parser := jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{"RS256"}),
		jwtlib.WithAudience(v.audience),
		jwtlib.WithIssuer(v.issuer),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(v.nowTime),
	)

	claims := &providerClaims{}
	parsed, err := parser.ParseWithClaims(cleaned, claims, func(t *jwtlib.Token) (interface{}, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, ierrors.ErrKeyNotFound
		}
		return v.keys.ResolveKey(ctx, kid)
	})
	if err != nil {
		return nil, ierrors.Wrapf(ierrors.ErrUnauthenticated, "[Validator.Validate] verify: %v", err)
	}
	if !parsed.Valid {
		return nil, ierrors.Wrapf(ierrors.ErrUnauthenticated, "[Validator.Validate] token rejected")
	}

	return &ClaimSet{
		Subject:     claims.Subject,
		Permissions: claims.Permissions,
	}, nil
}

// normalizeToken strips the Authorization scheme prefix plus any quoting the
// client wrapped the token in.
func normalizeToken(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "Bearer ") {
		cleaned = strings.TrimPrefix(cleaned, "Bearer ")
	}
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.Trim(cleaned, "'")
	cleaned = strings.Trim(cleaned, `"`)
	return cleaned
}
