// Package redisstore provides a redis session storage implementation.
//
// Records are stored as plain redis strings under a configurable key prefix
// and expire through redis TTLs, so no cleanup loop is needed.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces session keys inside the redis keyspace.
const DefaultPrefix = "session:"

// RedisStore is a redis backed storage for session data.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
}

type config func(*RedisStore)

// WithPrefix sets the key prefix. (default "session:")
func WithPrefix(prefix string) config {
	return config(func(s *RedisStore) {
		s.prefix = prefix
	})
}

// New creates and returns a new RedisStore instance.
func New(rdb redis.Cmdable, cfgs ...config) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: DefaultPrefix}
	for _, cfg := range cfgs {
		cfg(s)
	}
	return s
}

// Get retrieves the data associated with the given token. Expired records
// are reported as not found.
func (s *RedisStore) Get(ctx context.Context, token string) ([]byte, bool, error) {
	data, err := s.rdb.Get(ctx, s.prefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return data, true, nil
}

// Set stores the data under the given token until expiresAt, overwriting any
// existing record. A record already past its expiry is removed instead.
func (s *RedisStore) Set(ctx context.Context, token string, data []byte, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return s.Delete(ctx, token)
	}
	return s.rdb.Set(ctx, s.prefix+token, data, ttl).Err()
}

// Delete removes the data associated with the given token.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, s.prefix+token).Err()
}
