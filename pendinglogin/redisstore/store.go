// Package redisstore backs the pending-login holding area with Redis so a
// login completed on one instance can be claimed on another. Redis owns TTL
// expiry; consume-once comes from GETDEL.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	ierrors "github.com/nauthd/nauth/internal/errors"
	"github.com/nauthd/nauth/pendinglogin"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pending_login:"

type Store struct {
	client  *redis.Client
	ttl     time.Duration
	nowTime func() time.Time
}

type StoreOption func(*Store)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

// New creates a Redis-backed pending-login store.
func New(client *redis.Client, ttl time.Duration, options ...StoreOption) *Store {
	s := &Store{
		client:  client,
		ttl:     ttl,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

var _ pendinglogin.Store = (*Store)(nil)

func (s *Store) Put(ctx context.Context, identity pendinglogin.Identity, tokens pendinglogin.TokenPair) (string, error) {
	loginID := uuid.New().String()
	entry := pendinglogin.PendingLogin{
		LoginID:   loginID,
		Identity:  identity,
		Tokens:    tokens,
		CreatedAt: s.nowTime(),
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return "", ierrors.Wrapf(err, "[Store.Put] marshal")
	}
	if err := s.client.Set(ctx, keyPrefix+loginID, payload, s.ttl).Err(); err != nil {
		return "", ierrors.Wrapf(err, "[Store.Put] redis set")
	}
	return loginID, nil
}

func (s *Store) Take(ctx context.Context, loginID string) (*pendinglogin.PendingLogin, error) {
	payload, err := s.client.GetDel(ctx, keyPrefix+loginID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ierrors.ErrLoginNotFound
		}
		return nil, ierrors.Wrapf(err, "[Store.Take] redis getdel")
	}

	var entry pendinglogin.PendingLogin
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, ierrors.Wrapf(err, "[Store.Take] unmarshal")
	}

	// Redis TTL is authoritative, but a clock injected for tests may run
	// ahead of the server's expiry sweep.
	if s.nowTime().Sub(entry.CreatedAt) > s.ttl {
		return nil, ierrors.ErrLoginNotFound
	}
	return &entry, nil
}
