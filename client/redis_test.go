package client

import (
	"testing"

	goredis "github.com/redis/go-redis/v9"
)

func redisClient(t *testing.T, addr string) goredis.UniversalClient {
	t.Helper()
	rc := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}
