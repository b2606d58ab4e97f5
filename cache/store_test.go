package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Layout(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	b, err := encodeRecord(map[string]any{"v": 1}, at, 90*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"v":1},"timestamp":1700000000123,"ttl":90000}`, string(b))

	data, fetchedAt, ttl, err := decodeRecord(b)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"v": 1.0}, data)
	assert.True(t, fetchedAt.Equal(at))
	assert.Equal(t, 90*time.Second, ttl)

	_, _, _, err = decodeRecord([]byte("{"))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestMemoryStore(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, err := NewMemoryStore("mem", 2, clock)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Second))
	b, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", string(b))

	t.Run("expiry", func(t *testing.T) {
		clock.Advance(time.Second)
		_, err := s.Get(ctx, "a")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("lru bound", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "x", []byte("x"), 0))
		require.NoError(t, s.Set(ctx, "y", []byte("y"), 0))
		require.NoError(t, s.Set(ctx, "z", []byte("z"), 0))
		assert.Equal(t, 2, s.Len())
		_, err := s.Get(ctx, "x")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("delete matching", func(t *testing.T) {
		n, err := s.DeleteMatching(ctx, "y")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = s.DeleteMatching(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Zero(t, s.Len())
	})
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore("redis", client, "opsfeed:cache:"), mr
}

func TestRedisStore_GetSet(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "/vehicles")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, s.Set(ctx, "/vehicles", []byte(`{"data":1}`), time.Minute))
	assert.True(t, mr.Exists("opsfeed:cache:/vehicles"))
	assert.Equal(t, time.Minute, mr.TTL("opsfeed:cache:/vehicles"))

	b, err := s.Get(ctx, "/vehicles")
	require.NoError(t, err)
	assert.Equal(t, `{"data":1}`, string(b))

	mr.FastForward(time.Minute)
	_, err = s.Get(ctx, "/vehicles")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, s.Ping(ctx))
}

func TestRedisStore_DeleteMatching(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	for _, k := range []string{"/customers?page=1", "/customers?page=2", "/vehicles", "/odd*key"} {
		require.NoError(t, s.Set(ctx, k, []byte("x"), 0))
	}
	require.NoError(t, mr.Set("other:/customers", "keep"))

	n, err := s.DeleteMatching(ctx, "/customers")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.DeleteMatching(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "glob characters match literally")

	n, err = s.DeleteMatching(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, mr.Exists("other:/customers"))
}

func TestRedisStore_Unavailable(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()

	_, err := s.Get(context.Background(), "/k")
	assert.ErrorIs(t, err, ErrStoreGet)
	assert.ErrorIs(t, s.Set(context.Background(), "/k", nil, 0), ErrStoreSet)
}

func TestEngine_RedisStoreSharedAcrossEngines(t *testing.T) {
	s, mr := newRedisStore(t)
	clock := clockwork.NewFakeClock()
	a, _ := newTestEngine(t, WithClock(clock), WithStore(s))
	b, _ := newTestEngine(t, WithClock(clock), WithStore(s))

	_, err := a.Get(context.Background(), "/summary", func(context.Context) (any, error) {
		return map[string]any{"open": 3}, nil
	}, WithTTL(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, mr.TTL("opsfeed:cache:/summary"))

	got, err := Fetch(context.Background(), b, "/summary", func(context.Context) (map[string]int, error) {
		return nil, assert.AnError
	}, WithTTL(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"open": 3}, got)

	assert.Equal(t, 1, a.Invalidate("/summary"))
	assert.False(t, mr.Exists("opsfeed:cache:/summary"))
}
