package cacheinfra

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements the cache store contract on a go-redis client.
// The caller owns the client lifecycle.
type RedisStore struct {
	client redis.UniversalClient
	cfg    RedisConfig
}

// NewRedisStore wraps client.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) (*RedisStore, error) {
	if client == nil {
		return nil, &ConfigError{Field: "client", Message: "cannot be nil"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client, cfg: cfg}, nil
}

func (s *RedisStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.QueryTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, s.cfg.QueryTimeout)
}

// Get returns the stored bytes for key. A missing key is not an error.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	data, err := s.client.Get(qctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "redis get %s", key)
	}
	return data, true, nil
}

// Set stores value with the given expiry.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	if err := s.client.Set(qctx, key, value, ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", key)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	if err := s.client.Del(qctx, key).Err(); err != nil {
		return errors.Wrapf(err, "redis del %s", key)
	}
	return nil
}

// DeleteByPrefix collects every key starting with prefix with SCAN, then
// deletes them in batches of ScanCount. Deletion starts only after the
// scan completes.
func (s *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	pattern := escapeGlob(prefix) + "*"
	iter := s.client.Scan(qctx, 0, pattern, s.cfg.ScanCount).Iterator()

	var keys []string
	for iter.Next(qctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, errors.Wrapf(err, "redis scan %s", pattern)
	}

	deleted := 0
	size := int(s.cfg.ScanCount)
	for start := 0; start < len(keys); start += size {
		end := min(start+size, len(keys))
		n, err := s.client.Del(qctx, keys[start:end]...).Result()
		if err != nil {
			return deleted, errors.Wrapf(err, "redis del prefix %s", prefix)
		}
		deleted += int(n)
	}
	return deleted, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()

	if err := s.client.Ping(qctx).Err(); err != nil {
		return errors.Wrap(err, "redis ping")
	}
	return nil
}

// Close is a no-op; the caller owns the redis client.
func (s *RedisStore) Close() error {
	return nil
}

// escapeGlob escapes the characters that have meaning in a SCAN MATCH pattern.
func escapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
