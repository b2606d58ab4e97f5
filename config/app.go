package config

import (
	"sort"

	"github.com/KOMKZ/opsfeed/adapters"
	"github.com/KOMKZ/opsfeed/breaker"
	"github.com/KOMKZ/opsfeed/cache"
	"github.com/KOMKZ/opsfeed/health"
	"github.com/KOMKZ/opsfeed/httpclient"
	"github.com/KOMKZ/opsfeed/limiter"
	"github.com/KOMKZ/opsfeed/logger"
	"github.com/KOMKZ/opsfeed/redis"
	"github.com/KOMKZ/opsfeed/scheduler"
	"github.com/KOMKZ/opsfeed/stream"
	"github.com/KOMKZ/opsfeed/telemetry"
)

// AppConfig every section of an opsfeed client
type AppConfig struct {
	Logger    logger.ManagerConfig `mapstructure:"logger"`
	Stream    stream.Config        `mapstructure:"stream"`
	Cache     cache.Config         `mapstructure:"cache"`
	Breaker   breaker.Config       `mapstructure:"breaker"`
	HTTP      httpclient.Config    `mapstructure:"http"`
	Limiter   limiter.Config       `mapstructure:"limiter"`
	Redis     redis.Config         `mapstructure:"redis"`
	Scheduler scheduler.Config     `mapstructure:"scheduler"`
	Telemetry telemetry.Config     `mapstructure:"telemetry"`
	Health    health.Config        `mapstructure:"health"`
	Auth      AuthConfig           `mapstructure:"auth"`
	Adapters  adapters.Config      `mapstructure:"adapters"`
}

// AuthConfig static bearer credential; empty sends no Authorization header
type AuthConfig struct {
	Token string `mapstructure:"token"`
}

func DefaultAppConfig() AppConfig {
	return AppConfig{
		Logger:    logger.DefaultManagerConfig(),
		Stream:    stream.DefaultConfig(),
		Cache:     cache.DefaultConfig(),
		Breaker:   breaker.DefaultConfig(),
		HTTP:      httpclient.DefaultConfig(),
		Limiter:   limiter.DefaultConfig(),
		Redis:     redis.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Telemetry: telemetry.DefaultConfig(),
		Health:    health.DefaultConfig(),
		Adapters:  adapters.DefaultConfig(),
	}
}

// ApplyDefaults fills zero-valued fields of every section.
func (c *AppConfig) ApplyDefaults() {
	c.Logger.ApplyDefaults()
	c.Stream.ApplyDefaults()
	c.Cache.ApplyDefaults()
	c.Breaker.ApplyDefaults()
	c.HTTP.ApplyDefaults()
	c.Limiter.ApplyDefaults()
	c.Redis.ApplyDefaults()
	c.Scheduler.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
	c.Health.ApplyDefaults()
	c.Adapters.ApplyDefaults()
}

// Validate checks every section in use. Redis is only checked when the cache
// store driver is redis.
func (c AppConfig) Validate() error {
	sections := map[string]Validator{
		"logger":    c.Logger,
		"stream":    c.Stream,
		"cache":     c.Cache,
		"breaker":   c.Breaker,
		"http":      c.HTTP,
		"limiter":   c.Limiter,
		"scheduler": c.Scheduler,
		"telemetry": c.Telemetry,
		"health":    c.Health,
		"adapters":  c.Adapters,
	}
	if c.Cache.Store.Driver == "redis" {
		sections["redis"] = c.Redis
	}
	return ValidateAll(sections)
}

// Load reads config.yaml, <env>.yaml and OPSFEED_* variables from the
// builder's sources over DefaultAppConfig. A nil builder reads only the
// environment.
func Load(b *LoaderBuilder) (AppConfig, error) {
	cfg := DefaultAppConfig()
	if b == nil {
		b = NewLoaderBuilder()
	}
	loader, err := b.WithKeys(Keys(cfg)...).Build()
	if err != nil {
		return cfg, err
	}
	return FromLoader(loader)
}

// FromLoader decodes loader over DefaultAppConfig, then fills and validates.
func FromLoader(loader *Loader) (AppConfig, error) {
	cfg := DefaultAppConfig()
	if err := loader.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func sortedNames(sections map[string]Validator) []string {
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
