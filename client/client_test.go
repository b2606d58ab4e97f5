package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KOMKZ/opsfeed/adapters"
	"github.com/KOMKZ/opsfeed/cache"
	"github.com/KOMKZ/opsfeed/config"
	"github.com/KOMKZ/opsfeed/health"
	"github.com/KOMKZ/opsfeed/limiter"
	"github.com/KOMKZ/opsfeed/telemetry"
	"github.com/alicebob/miniredis/v2"
	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func testConfig() config.AppConfig {
	cfg := config.DefaultAppConfig()
	cfg.Logger.Level = "error"
	cfg.Cache.MaxRetries = 0
	return cfg
}

func newClient(t *testing.T, cfg config.AppConfig, opts ...Option) *Client {
	t.Helper()
	c, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// summaryServer serves /dashboard/summary and /customers, counting hits and
// rejecting requests without the expected bearer token.
func summaryServer(t *testing.T, token string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/dashboard/summary":
			_ = json.NewEncoder(w).Encode(adapters.DashboardSummary{ActiveVehicles: 7, OpenIncidents: 2})
		case "/customers":
			_ = json.NewEncoder(w).Encode(adapters.CustomerPage{
				Items: []adapters.Customer{{ID: "c-1", Name: "Harbor Recycling"}},
				Total: 1, Page: 1, PageSize: 20,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestNew_Defaults(t *testing.T) {
	c := newClient(t, testConfig())

	assert.ElementsMatch(t, []string{JobCacheSweep, JobStreamSweep}, c.Scheduler().Jobs())
	assert.Equal(t, []string{"breakers", "stream"}, c.Health().Names())
	assert.Nil(t, c.Cache().Store())
	assert.False(t, c.Telemetry().Enabled())
	assert.False(t, c.Metrics().IsEnabled())
	assert.Same(t, c.Breakers(), c.Stream().Breakers())

	resp := c.Check(context.Background())
	assert.True(t, resp.IsHealthy())

	engine, err := do.Invoke[*cache.Engine](c.Injector())
	require.NoError(t, err)
	assert.Same(t, c.Cache(), engine)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.MaxRetries = 99
	_, err := New(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNew_MemoryStore(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Store.Driver = "memory"
	c := newClient(t, cfg)

	require.NotNil(t, c.Cache().Store())
	assert.Equal(t, "memory", c.Cache().Store().Name())
	assert.Contains(t, c.Health().Names(), "cache.store")
}

func TestNew_RedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	srv, hits := summaryServer(t, "")

	cfg := testConfig()
	cfg.HTTP.BaseURL = srv.URL
	cfg.Cache.Store.Driver = "redis"
	cfg.Redis.Addrs = []string{mr.Addr()}
	c := newClient(t, cfg)

	r := c.Customers().Page(context.Background(), adapters.CustomerParams{})
	require.NoError(t, r.Err)
	assert.Equal(t, "Harbor Recycling", r.Data.Items[0].Name)
	assert.EqualValues(t, 1, hits.Load())

	key := cfg.Cache.Store.KeyPrefix + c.Customers().Key(adapters.CustomerParams{})
	assert.True(t, mr.Exists(key), "keys: %v", mr.Keys())

	resp := c.Check(context.Background())
	assert.Equal(t, health.StatusHealthy, resp.Checks["cache.store"].Status)
}

func TestNew_RedisUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Store.Driver = "redis"
	cfg.Redis.Addrs = []string{"127.0.0.1:1"}
	cfg.Redis.DialTimeout = 200 * time.Millisecond
	cfg.Redis.MaxRetries = -1

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestNew_InjectedRedisClientStaysOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redisClient(t, mr.Addr())

	cfg := testConfig()
	cfg.Cache.Store.Driver = "redis"
	cfg.Redis.Addrs = []string{"ignored:6379"}
	c, err := New(context.Background(), cfg, WithRedisClient(rc))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	assert.NoError(t, rc.Ping(context.Background()).Err())
}

func TestClient_BearerToken(t *testing.T) {
	srv, _ := summaryServer(t, "tkn")
	cfg := testConfig()
	cfg.HTTP.BaseURL = srv.URL
	cfg.Auth.Token = "tkn"
	c := newClient(t, cfg)

	r := c.Dashboard().Load(context.Background())
	require.NoError(t, r.Err)
	assert.Equal(t, 7, r.Data.ActiveVehicles)
}

func TestClient_Unauthorized(t *testing.T) {
	srv, _ := summaryServer(t, "tkn")
	cfg := testConfig()
	cfg.HTTP.BaseURL = srv.URL
	c := newClient(t, cfg)

	r := c.Dashboard().Load(context.Background())
	require.Error(t, r.Err)
	assert.True(t, r.NeedsAuth())
}

func TestClient_LimiterPacesRequests(t *testing.T) {
	srv, hits := summaryServer(t, "")
	cfg := testConfig()
	cfg.HTTP.BaseURL = srv.URL
	cfg.Limiter.Enabled = true
	cfg.Limiter.Rate = 0.01
	cfg.Limiter.Capacity = 1
	cfg.Limiter.MaxWait = time.Millisecond
	c := newClient(t, cfg)
	require.True(t, c.Limiter().IsEnabled())

	require.NoError(t, c.Dashboard().Load(context.Background()).Err)
	r := c.Customers().Page(context.Background(), adapters.CustomerParams{})
	assert.ErrorIs(t, r.Err, limiter.ErrWaitTimeout)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_FleetWithoutEndpoint(t *testing.T) {
	c := newClient(t, testConfig())
	assert.ErrorIs(t, c.Fleet().Start(context.Background()), adapters.ErrNoEndpoint)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	c, err := New(context.Background(), testConfig())
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, c.Stream().Closed())

	_, err = c.Cache().Get(context.Background(), "/x", func(context.Context) (any, error) { return 1, nil })
	assert.ErrorIs(t, err, cache.ErrClosed)
}

func TestClient_TelemetryRegistersComponentMetrics(t *testing.T) {
	srv, _ := summaryServer(t, "")
	reader := sdkmetric.NewManualReader()

	cfg := testConfig()
	cfg.HTTP.BaseURL = srv.URL
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Exporter.Type = telemetry.ExporterStdout
	c := newClient(t, cfg, WithTelemetryOptions(
		telemetry.WithWriter(io.Discard),
		telemetry.WithReader(reader),
		telemetry.WithoutGlobal()))

	var names []string
	for _, p := range c.Metrics().GetProviders() {
		names = append(names, p.MetricsName())
	}
	assert.ElementsMatch(t, []string{"breaker", "cache", "stream", "redis"}, names)

	require.NoError(t, c.Dashboard().Load(context.Background()).Err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var scopes []string
	for _, sm := range rm.ScopeMetrics {
		scopes = append(scopes, sm.Scope.Name)
	}
	assert.Contains(t, scopes, "opsfeed_cache")
}
