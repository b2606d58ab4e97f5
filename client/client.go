// Package client assembles an opsfeed client from configuration: the shared
// breaker registry, stream multiplexer, cache engine, REST client, scheduler,
// telemetry and the feature adapters built on them.
package client

import (
	"context"
	"sync"

	"github.com/KOMKZ/opsfeed/adapters"
	"github.com/KOMKZ/opsfeed/breaker"
	"github.com/KOMKZ/opsfeed/cache"
	"github.com/KOMKZ/opsfeed/config"
	"github.com/KOMKZ/opsfeed/health"
	"github.com/KOMKZ/opsfeed/httpclient"
	"github.com/KOMKZ/opsfeed/limiter"
	"github.com/KOMKZ/opsfeed/logger"
	"github.com/KOMKZ/opsfeed/scheduler"
	"github.com/KOMKZ/opsfeed/stream"
	"github.com/KOMKZ/opsfeed/telemetry"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Client owns every component built by New.
type Client struct {
	injector  *do.RootScope
	cfg       config.AppConfig
	ownsRedis bool

	logs      *logger.Manager
	logger    *logger.CtxZapLogger
	breakers  *breaker.Manager
	telemetry *telemetry.Providers
	metrics   *telemetry.MetricsRegistry
	redis     goredis.UniversalClient
	cache     *cache.Engine
	stream    *stream.Multiplexer
	limiter   *limiter.Limiter
	http      *httpclient.Client
	scheduler *scheduler.Scheduler
	health    *health.Aggregator
	customers *adapters.CustomerList
	dashboard *adapters.Query[adapters.DashboardSummary]
	fleet     *adapters.FleetStatusFeed

	closeOnce sync.Once
	closeErr  error
}

// Open loads configuration from b (see config.Load) and calls New.
func Open(ctx context.Context, b *config.LoaderBuilder, opts ...Option) (*Client, error) {
	cfg, err := config.Load(b)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, opts...)
}

// New builds and starts every component. ctx bounds the telemetry and redis
// setup only. On failure everything built so far is closed again.
func New(ctx context.Context, cfg config.AppConfig, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)

	injector := do.New()
	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, o)
	do.Provide(injector, provideMetricsSet)
	do.Provide(injector, provideLoggerManager)
	do.Provide(injector, provideBreakers)
	do.Provide(injector, provideTelemetry(ctx))
	do.Provide(injector, provideMetricsRegistry)
	do.Provide(injector, provideRedisClient(ctx))
	do.Provide(injector, provideStore)
	do.Provide(injector, provideCacheEngine)
	do.Provide(injector, provideMultiplexer)
	do.Provide(injector, provideLimiter)
	do.Provide(injector, provideHTTPClient)
	do.Provide(injector, provideScheduler)
	do.Provide(injector, provideHealth)
	do.Provide(injector, provideCustomerList)
	do.Provide(injector, provideDashboard)
	do.Provide(injector, provideFleetFeed)

	c := &Client{injector: injector, cfg: cfg, ownsRedis: o.redis == nil}
	if err := c.build(); err != nil {
		if c.logger != nil {
			c.logger.Error("❌ [Client] setup failed", zap.Error(err))
		}
		_ = c.Close()
		return nil, err
	}
	c.scheduler.Start()
	c.logger.Info("✅ [Client] ready",
		zap.String("store", cfg.Cache.Store.Driver),
		zap.Bool("telemetry", c.telemetry.Enabled()),
		zap.Strings("jobs", c.scheduler.Jobs()))
	return c, nil
}

func invoke[T any](i do.Injector, dst *T) error {
	v, err := do.Invoke[T](i)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// build resolves components in dependency order so Close can tear down
// whatever exists after a partial failure.
func (c *Client) build() error {
	if err := invoke(c.injector, &c.logs); err != nil {
		return err
	}
	c.logger = c.logs.GetLogger("client")

	steps := []func() error{
		func() error { return invoke(c.injector, &c.breakers) },
		func() error { return invoke(c.injector, &c.telemetry) },
		func() error { return invoke(c.injector, &c.metrics) },
		func() error { return invoke(c.injector, &c.redis) },
		func() error { return invoke(c.injector, &c.cache) },
		func() error { return invoke(c.injector, &c.stream) },
		func() error { return invoke(c.injector, &c.limiter) },
		func() error { return invoke(c.injector, &c.http) },
		func() error { return invoke(c.injector, &c.scheduler) },
		func() error { return invoke(c.injector, &c.health) },
		func() error { return invoke(c.injector, &c.customers) },
		func() error { return invoke(c.injector, &c.dashboard) },
		func() error { return invoke(c.injector, &c.fleet) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// Close shuts components down in reverse construction order. Safe to call
// more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.close()
	})
	return c.closeErr
}

func (c *Client) close() error {
	var errs error
	if c.fleet != nil {
		c.fleet.Close()
	}
	if c.scheduler != nil {
		errs = multierr.Append(errs, c.scheduler.Shutdown())
	}
	if c.stream != nil {
		c.stream.Close()
	}
	if c.cache != nil {
		c.cache.Close()
	}
	if c.redis != nil && c.ownsRedis {
		errs = multierr.Append(errs, c.redis.Close())
	}
	if c.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Telemetry.Exporter.Timeout)
		errs = multierr.Append(errs, c.telemetry.Shutdown(ctx))
		cancel()
	}
	if c.breakers != nil {
		errs = multierr.Append(errs, c.breakers.Shutdown())
	}
	if c.logs != nil {
		if errs != nil {
			c.logger.Warn("⚠️ [Client] close finished with errors", zap.Error(errs))
		} else {
			c.logger.Info("[Client] closed")
		}
		c.logs.CloseAll()
	}
	return errs
}

func (c *Client) Config() config.AppConfig { return c.cfg }

// Injector resolved components, e.g. do.MustInvoke[*cache.Engine].
func (c *Client) Injector() *do.RootScope { return c.injector }

// Logger module logger from the client's logger manager.
func (c *Client) Logger(module string) *logger.CtxZapLogger { return c.logs.GetLogger(module) }

func (c *Client) Breakers() *breaker.Manager { return c.breakers }

func (c *Client) Telemetry() *telemetry.Providers { return c.telemetry }

func (c *Client) Metrics() *telemetry.MetricsRegistry { return c.metrics }

func (c *Client) Cache() *cache.Engine { return c.cache }

func (c *Client) Stream() *stream.Multiplexer { return c.stream }

func (c *Client) HTTP() *httpclient.Client { return c.http }

// Limiter paces HTTP requests per host when limiter.enabled is set
func (c *Client) Limiter() *limiter.Limiter { return c.limiter }

func (c *Client) Scheduler() *scheduler.Scheduler { return c.scheduler }

func (c *Client) Health() *health.Aggregator { return c.health }

// Check runs every registered health checker.
func (c *Client) Check(ctx context.Context) *health.Response { return c.health.Check(ctx) }

func (c *Client) Customers() *adapters.CustomerList { return c.customers }

func (c *Client) Dashboard() *adapters.Query[adapters.DashboardSummary] { return c.dashboard }

// Fleet the fleet status feed; call Start to join the channel.
func (c *Client) Fleet() *adapters.FleetStatusFeed { return c.fleet }
