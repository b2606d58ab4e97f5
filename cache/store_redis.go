package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares cache records between dashboard processes.
type RedisStore struct {
	name      string
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore the client is owned by the caller and not closed by Close.
func NewRedisStore(name string, client redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{name: name, client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) Name() string {
	return s.name
}

func (s *RedisStore) buildKey(key string) string {
	return s.keyPrefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.buildKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, ErrStoreGet.Wrap(err)
	}
	return b, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.buildKey(key), value, ttl).Err(); err != nil {
		return ErrStoreSet.Wrap(err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.buildKey(key)).Err(); err != nil {
		return ErrStoreDelete.Wrap(err)
	}
	return nil
}

// DeleteMatching scans with MATCH so the server is never blocked by KEYS.
func (s *RedisStore) DeleteMatching(ctx context.Context, substr string) (int, error) {
	pattern := escapeGlob(s.keyPrefix) + "*"
	if substr != "" {
		pattern += escapeGlob(substr) + "*"
	}

	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return 0, ErrStoreDelete.Wrap(err)
		}
		for _, k := range batch {
			// the prefix itself may contain substr; match on the cache key only
			if strings.Contains(strings.TrimPrefix(k, s.keyPrefix), substr) {
				keys = append(keys, k)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, ErrStoreDelete.Wrap(err)
	}
	return int(n), nil
}

func (s *RedisStore) Close() error {
	return nil
}

// Ping reports whether the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}
