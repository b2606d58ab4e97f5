package client

import (
	"context"

	"github.com/KOMKZ/opsfeed/adapters"
	"github.com/KOMKZ/opsfeed/auth"
	"github.com/KOMKZ/opsfeed/breaker"
	"github.com/KOMKZ/opsfeed/cache"
	"github.com/KOMKZ/opsfeed/config"
	"github.com/KOMKZ/opsfeed/health"
	"github.com/KOMKZ/opsfeed/httpclient"
	"github.com/KOMKZ/opsfeed/limiter"
	"github.com/KOMKZ/opsfeed/logger"
	"github.com/KOMKZ/opsfeed/redis"
	"github.com/KOMKZ/opsfeed/scheduler"
	"github.com/KOMKZ/opsfeed/stream"
	"github.com/KOMKZ/opsfeed/telemetry"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"
	"go.uber.org/zap"
)

// Scheduler job names registered by New
const (
	JobCacheSweep  = "cache.sweep"
	JobStreamSweep = "stream.sweep"
)

// metricsSet instruments handed to components before the registry binds them
type metricsSet struct {
	breaker *breaker.OTelMetrics
	cache   *cache.OTelMetrics
	stream  *stream.OTelMetrics
	redis   *redis.Metrics
	limiter *limiter.OTelMetrics
}

func provideMetricsSet(i do.Injector) (*metricsSet, error) {
	cfg := do.MustInvoke[config.AppConfig](i)
	return &metricsSet{
		breaker: breaker.NewOTelMetrics(true),
		cache:   cache.NewOTelMetrics(cfg.Cache.MetricsEnabled),
		stream:  stream.NewOTelMetrics(cfg.Stream.MetricsEnabled),
		redis:   redis.NewMetrics(cfg.Redis.MetricsEnabled),
		limiter: limiter.NewOTelMetrics(cfg.Limiter.Enabled),
	}, nil
}

func provideLoggerManager(i do.Injector) (*logger.Manager, error) {
	cfg := do.MustInvoke[config.AppConfig](i)
	return logger.NewManager(cfg.Logger), nil
}

func provideBreakers(i do.Injector) (*breaker.Manager, error) {
	cfg := do.MustInvoke[config.AppConfig](i)
	o := do.MustInvoke[*options](i)
	logs := do.MustInvoke[*logger.Manager](i)
	ms := do.MustInvoke[*metricsSet](i)
	return breaker.NewManager(cfg.Breaker,
		breaker.WithClock(o.clock),
		breaker.WithLogger(logs.GetLogger("breaker")),
		breaker.WithMetrics(ms.breaker))
}

func provideTelemetry(ctx context.Context) func(do.Injector) (*telemetry.Providers, error) {
	return func(i do.Injector) (*telemetry.Providers, error) {
		cfg := do.MustInvoke[config.AppConfig](i)
		o := do.MustInvoke[*options](i)
		logs := do.MustInvoke[*logger.Manager](i)
		bm := do.MustInvoke[*breaker.Manager](i)
		opts := append([]telemetry.Option{
			telemetry.WithBreakers(bm),
			telemetry.WithSetupLogger(logs.GetLogger("telemetry")),
		}, o.telemetry...)
		return telemetry.Setup(ctx, cfg.Telemetry, opts...)
	}
}

func provideMetricsRegistry(i do.Injector) (*telemetry.MetricsRegistry, error) {
	cfg := do.MustInvoke[config.AppConfig](i)
	logs := do.MustInvoke[*logger.Manager](i)
	providers := do.MustInvoke[*telemetry.Providers](i)
	ms := do.MustInvoke[*metricsSet](i)

	reg := telemetry.NewMetricsRegistry(providers.MeterProvider(),
		telemetry.WithNamespace(cfg.Telemetry.Metrics.Namespace),
		telemetry.WithLabels(cfg.Telemetry.Metrics.Labels),
		telemetry.WithLogger(logs.GetLogger("telemetry")))
	reg.SetEnabled(providers.Enabled() && cfg.Telemetry.Metrics.Enabled)
	if err := reg.RegisterAll(ms.breaker, ms.cache, ms.stream, ms.redis, ms.limiter); err != nil {
		return nil, err
	}
	return reg, nil
}

// provideRedisClient nil unless the cache store driver is redis
func provideRedisClient(ctx context.Context) func(do.Injector) (goredis.UniversalClient, error) {
	return func(i do.Injector) (goredis.UniversalClient, error) {
		cfg := do.MustInvoke[config.AppConfig](i)
		if cfg.Cache.Store.Driver != "redis" {
			return nil, nil
		}
		o := do.MustInvoke[*options](i)
		if o.redis != nil {
			return o.redis, nil
		}
		logs := do.MustInvoke[*logger.Manager](i)
		ms := do.MustInvoke[*metricsSet](i)
		return redis.NewClient(ctx, cfg.Redis, logs.GetLogger("redis"), ms.redis)
	}
}

// provideStore nil when the driver is none
func provideStore(i do.Injector) (cache.Store, error) {
	cfg := do.MustInvoke[config.AppConfig](i)
	switch cfg.Cache.Store.Driver {
	case "memory":
		o := do.MustInvoke[*options](i)
		return cache.NewMemoryStore("memory", cfg.Cache.Store.Size, o.clock)
	case "redis":
		rc := do.MustInvoke[goredis.UniversalClient](i)
		return cache.NewRedisStore("redis", rc, cfg.Cache.Store.KeyPrefix), nil
	default:
		return nil, nil
	}
}

func provideCacheEngine(i do.Injector) (*cache.Engine, error) {
	cfg := do.MustInvoke[config.AppConfig](i)
	o := do.MustInvoke[*options](i)
	logs := do.MustInvoke[*logger.Manager](i)
	ms := do.MustInvoke[*metricsSet](i)
	store := do.MustInvoke[cache.Store](i)

	opts := []cache.EngineOption{
		cache.WithClock(o.clock),
		cache.WithLogger(logs.GetLogger("cache")),
		cache.WithMetrics(ms.cache),
	}
	if store != nil {
		opts = append(opts, cache.WithStore(store))
	}
	return cache.NewEngine(cfg.Cache, opts...)
}

// tokenSource WithTokenSource, else auth.token, else none
func tokenSource(cfg config.AppConfig, o *options) auth.TokenSource {
	if o.tokens != nil {
		return o.tokens
	}
	if cfg.Auth.Token == "" {
		return nil
	}
	return auth.Checked(auth.StaticToken(cfg.Auth.Token), o.clock)
}

func provideMultiplexer(i do.Injector) (*stream.Multiplexer, error) {
	cfg := do.MustInvoke[config.AppConfig](i)
	o := do.MustInvoke[*options](i)
	logs := do.MustInvoke[*logger.Manager](i)
	ms := do.MustInvoke[*metricsSet](i)
	bm := do.MustInvoke[*breaker.Manager](i)

	opts := []stream.Option{
		stream.WithClock(o.clock),
		stream.WithLogger(logs.GetLogger("stream")),
		stream.WithBreakers(bm),
		stream.WithMetrics(ms.stream),
	}
	if o.dialer != nil {
		opts = append(opts, stream.WithDialer(o.dialer))
	}
	if src := tokenSource(cfg, o); src != nil {
		opts = append(opts, stream.WithTokenSource(src))
	}
	return stream.New(cfg.Stream, opts...)
}

// provideLimiter a disabled limiter is still returned; it lets everything through
func provideLimiter(i do.Injector) (*limiter.Limiter, error) {
	cfg := do.MustInvoke[config.AppConfig](i)
	o := do.MustInvoke[*options](i)
	logs := do.MustInvoke[*logger.Manager](i)
	ms := do.MustInvoke[*metricsSet](i)
	return limiter.New(cfg.Limiter,
		limiter.WithClock(o.clock),
		limiter.WithLogger(logs.GetLogger("limiter")),
		limiter.WithMetrics(ms.limiter))
}

func provideHTTPClient(i do.Injector) (*httpclient.Client, error) {
	cfg := do.MustInvoke[config.AppConfig](i)
	o := do.MustInvoke[*options](i)
	logs := do.MustInvoke[*logger.Manager](i)
	bm := do.MustInvoke[*breaker.Manager](i)
	lim := do.MustInvoke[*limiter.Limiter](i)

	opts := []httpclient.Option{
		httpclient.WithLogger(logs.GetLogger("httpclient")),
		httpclient.WithBreakers(bm),
	}
	if lim.IsEnabled() {
		opts = append(opts, httpclient.WithLimiter(lim))
	}
	if o.transport != nil {
		opts = append(opts, httpclient.WithTransport(o.transport))
	}
	if src := tokenSource(cfg, o); src != nil {
		opts = append(opts, httpclient.WithTokenSource(src))
	}
	return httpclient.New(cfg.HTTP, opts...)
}

// provideScheduler registers the cache and stream sweep jobs; the caller
// starts it.
func provideScheduler(i do.Injector) (*scheduler.Scheduler, error) {
	cfg := do.MustInvoke[config.AppConfig](i)
	o := do.MustInvoke[*options](i)
	logs := do.MustInvoke[*logger.Manager](i)
	engine := do.MustInvoke[*cache.Engine](i)
	mux := do.MustInvoke[*stream.Multiplexer](i)

	log := logs.GetLogger("scheduler")
	s, err := scheduler.New(cfg.Scheduler, scheduler.WithClock(o.clock), scheduler.WithLogger(log))
	if err != nil {
		return nil, err
	}

	cacheEvery := cfg.Scheduler.CacheSweepInterval
	if cacheEvery <= 0 {
		cacheEvery = engine.SweepInterval()
	}
	err = s.Every(JobCacheSweep, cacheEvery, func(context.Context) error {
		if n := engine.Sweep(); n > 0 {
			log.Debug("[Scheduler] cache entries evicted", zap.Int("count", n))
		}
		return nil
	})
	if err == nil {
		err = s.Every(JobStreamSweep, cfg.Scheduler.StreamSweepInterval, func(context.Context) error {
			if n := mux.Sweep(); n > 0 {
				log.Debug("[Scheduler] idle connections closed", zap.Int("count", n))
			}
			return nil
		})
	}
	if err != nil {
		_ = s.Shutdown()
		return nil, err
	}
	return s, nil
}

func provideHealth(i do.Injector) (*health.Aggregator, error) {
	cfg := do.MustInvoke[config.AppConfig](i)
	logs := do.MustInvoke[*logger.Manager](i)
	engine := do.MustInvoke[*cache.Engine](i)
	mux := do.MustInvoke[*stream.Multiplexer](i)
	bm := do.MustInvoke[*breaker.Manager](i)

	agg := health.NewAggregator(cfg.Health.Timeout, logs.GetLogger("health"))
	agg.Register(health.NewStreamChecker(mux))
	agg.Register(health.NewBreakerChecker(bm))
	if engine.Store() != nil {
		agg.Register(health.NewCacheStoreChecker(engine))
	}
	return agg, nil
}

func provideCustomerList(i do.Injector) (*adapters.CustomerList, error) {
	cfg := do.MustInvoke[config.AppConfig](i)
	return adapters.NewCustomerList(
		do.MustInvoke[*cache.Engine](i),
		do.MustInvoke[*httpclient.Client](i),
		cfg.Adapters), nil
}

func provideDashboard(i do.Injector) (*adapters.Query[adapters.DashboardSummary], error) {
	cfg := do.MustInvoke[config.AppConfig](i)
	return adapters.NewDashboardSummary(
		do.MustInvoke[*cache.Engine](i),
		do.MustInvoke[*httpclient.Client](i),
		cfg.Adapters), nil
}

func provideFleetFeed(i do.Injector) (*adapters.FleetStatusFeed, error) {
	cfg := do.MustInvoke[config.AppConfig](i)
	o := do.MustInvoke[*options](i)
	logs := do.MustInvoke[*logger.Manager](i)
	return adapters.NewFleetStatusFeed(
		do.MustInvoke[*stream.Multiplexer](i),
		cfg.Adapters,
		adapters.WithFeedClock(o.clock),
		adapters.WithFeedLogger(logs.GetLogger("adapters"))), nil
}
