// Package keys resolves JWT key IDs against the identity provider's
// published JWKS document.
package keys

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	ierrors "github.com/nauthd/nauth/internal/errors"
	"golang.org/x/sync/singleflight"
)

const defaultCacheTTL = 15 * time.Minute

// jwksDocument is the wire shape of the provider's JWKS endpoint.
type jwksDocument struct {
	Keys []jwksKey `json:"keys"`
}

type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// Resolver fetches and caches the provider's signing keys. Concurrent cache
// misses are collapsed into a single upstream fetch.
type Resolver struct {
	url      string
	client   *http.Client
	cacheTTL time.Duration
	nowTime  func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// ResolverOption modifies a Resolver instance.
type ResolverOption func(*Resolver)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.nowTime = nowFunc
	}
}

// WithHTTPClient overrides the HTTP client used for JWKS fetches.
func WithHTTPClient(client *http.Client) ResolverOption {
	return func(r *Resolver) {
		r.client = client
	}
}

// NewResolver creates a Resolver for the given JWKS URL. timeout bounds each
// upstream fetch.
func NewResolver(jwksURL string, timeout time.Duration, options ...ResolverOption) *Resolver {
	r := &Resolver{
		url:      jwksURL,
		client:   &http.Client{Timeout: timeout},
		cacheTTL: defaultCacheTTL,
		nowTime:  time.Now,
		keys:     make(map[string]*rsa.PublicKey),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// ResolveKey returns the RSA public key for kid. A cache miss triggers one
// JWKS refetch; if the provider does not publish the kid the result is
// errors.ErrKeyNotFound.
func (r *Resolver) ResolveKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := r.cachedKey(kid, false); ok {
		return key, nil
	}

	// Collapse concurrent misses into one fetch. The fetch itself must not
	// run under the cache lock.
	if _, err, _ := r.group.Do("jwks", func() (interface{}, error) {
		return nil, r.refresh(ctx)
	}); err != nil {
		return nil, ierrors.Wrapf(err, "[Resolver.ResolveKey] refresh")
	}

	if key, ok := r.cachedKey(kid, true); ok {
		return key, nil
	}
	return nil, ierrors.Wrapf(ierrors.ErrKeyNotFound, "[Resolver.ResolveKey] kid %q", kid)
}

// cachedKey returns the key for kid if present and, unless stale lookups are
// allowed, the cache is still fresh.
func (r *Resolver) cachedKey(kid string, allowStale bool) (*rsa.PublicKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !allowStale && r.nowTime().Sub(r.fetchedAt) > r.cacheTTL {
		return nil, false
	}
	key, ok := r.keys[kid]
	return key, ok
}

func (r *Resolver) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return ierrors.Wrapf(err, "[Resolver.refresh] build request")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return ierrors.Wrapf(err, "[Resolver.refresh] fetch %q", r.url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("[Resolver.refresh] jwks endpoint returned %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return ierrors.Wrapf(err, "[Resolver.refresh] decode")
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			continue // skip unparseable entries, keep the rest of the set
		}
		keys[k.Kid] = pub
	}

	r.mu.Lock()
	r.keys = keys
	r.fetchedAt = r.nowTime()
	r.mu.Unlock()
	return nil
}

func (k jwksKey) publicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
