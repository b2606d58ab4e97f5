package config

import (
	"testing"
	"time"

	"github.com/KOMKZ/opsfeed/cache"
	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	keys := Keys(DefaultAppConfig())

	assert.Contains(t, keys, "cache.store.driver")
	assert.Contains(t, keys, "stream.heartbeat_interval")
	assert.Contains(t, keys, "telemetry.exporter.endpoint")
	assert.Contains(t, keys, "breaker.resources")
	assert.Contains(t, keys, "auth.token")
	assert.Contains(t, keys, "adapters.fleet_endpoint")
	assert.True(t, sortedStrings(keys))

	type inner struct {
		At   time.Time `mapstructure:"at"`
		Name string
	}
	type outer struct {
		Inner   inner `mapstructure:"inner"`
		Skipped int   `mapstructure:"-"`
		private int
	}
	assert.Equal(t, []string{"inner.at", "inner.name"}, Keys(&outer{}))
	assert.Nil(t, Keys(42))
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}

func TestLoad_FileAndEnvOverDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
http:
  base_url: https://ops.example.com/api
stream:
  batch_size: 20
  keep_idle: true
adapters:
  fleet_endpoint: wss://ops.example.com/ws
`)
	t.Setenv("OPSFEED_STREAM_HEARTBEAT_INTERVAL", "15s")
	t.Setenv("OPSFEED_AUTH_TOKEN", "tkn")

	cfg, err := Load(NewLoaderBuilder().WithConfigPath(dir).WithEnv("test"))
	require.NoError(t, err)

	assert.Equal(t, "https://ops.example.com/api", cfg.HTTP.BaseURL)
	assert.Equal(t, 20, cfg.Stream.BatchSize)
	assert.True(t, cfg.Stream.KeepIdle)
	assert.Equal(t, 15*time.Second, cfg.Stream.HeartbeatInterval)
	assert.Equal(t, "tkn", cfg.Auth.Token)
	assert.Equal(t, "wss://ops.example.com/ws", cfg.Adapters.FleetEndpoint)

	// untouched sections keep their defaults
	assert.Equal(t, cache.DefaultConfig().DefaultTTL, cfg.Cache.DefaultTTL)
	assert.Equal(t, "none", cfg.Cache.Store.Driver)
	assert.Equal(t, "fleet.status", cfg.Adapters.FleetChannel)
}

func TestLoad_InvalidSection(t *testing.T) {
	b := NewLoaderBuilder().WithEnvPrefix("").WithSource(NewMapSource("test", 1, map[string]interface{}{
		"cache": map[string]interface{}{"max_retries": 99},
	}))
	_, err := Load(b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.ErrorIs(t, err, cache.ErrConfigInvalid)
}

func TestLoad_RedisCheckedOnlyWhenUsed(t *testing.T) {
	_, err := Load(NewLoaderBuilder().WithEnvPrefix(""))
	require.NoError(t, err)

	b := NewLoaderBuilder().WithEnvPrefix("").WithSource(NewMapSource("test", 1, map[string]interface{}{
		"cache": map[string]interface{}{"store": map[string]interface{}{"driver": "redis"}},
	}))
	_, err = Load(b)
	assert.ErrorIs(t, err, ErrInvalid)

	b = NewLoaderBuilder().WithEnvPrefix("").WithSource(NewMapSource("test", 1, map[string]interface{}{
		"cache": map[string]interface{}{"store": map[string]interface{}{"driver": "redis"}},
		"redis": map[string]interface{}{"addrs": []string{"127.0.0.1:6379"}},
	}))
	cfg, err := Load(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1:6379"}, cfg.Redis.Addrs)
}

func TestProvideAppConfig(t *testing.T) {
	injector := do.New()
	do.Provide(injector, ProvideLoader(ProvideLoaderOptions{EnvPrefix: "OPSFEED_TEST_PROVIDE"}))
	do.Provide(injector, ProvideAppConfig)

	cfg, err := do.Invoke[AppConfig](injector)
	require.NoError(t, err)
	assert.Equal(t, DefaultAppConfig().Stream.BatchSize, cfg.Stream.BatchSize)
}
