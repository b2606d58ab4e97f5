package adapters

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/KOMKZ/opsfeed/cache"
	"github.com/KOMKZ/opsfeed/httpclient"
	"github.com/KOMKZ/opsfeed/logger"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, clock clockwork.Clock) *cache.Engine {
	t.Helper()
	cfg := cache.DefaultConfig()
	cfg.MaxRetries = 0
	cfg.MetricsEnabled = false
	e, err := cache.NewEngine(cfg, cache.WithClock(clock), cache.WithLogger(logger.NewNop()))
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

// backend serves JSON from handlers keyed by path and records queries.
type backend struct {
	srv    *httptest.Server
	hits   atomic.Int32
	mu     sync.Mutex
	status int
	seen   []string
	bodies map[string]func(r *http.Request) any
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{bodies: make(map[string]func(r *http.Request) any)}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		b.mu.Lock()
		b.seen = append(b.seen, r.URL.RequestURI())
		status := b.status
		body := b.bodies[r.URL.Path]
		b.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		if body == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body(r))
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) handle(path string, fn func(r *http.Request) any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bodies[path] = fn
}

func (b *backend) fail(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
}

func (b *backend) requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.seen...)
}

func (b *backend) client(t *testing.T) *httpclient.Client {
	t.Helper()
	cfg := httpclient.DefaultConfig()
	cfg.BaseURL = b.srv.URL
	cfg.BreakerEnabled = false
	c, err := httpclient.New(cfg, httpclient.WithLogger(logger.NewNop()))
	require.NoError(t, err)
	return c
}
