// Package redis opens the go-redis client behind the durable cache store.
package redis

import (
	"context"

	"github.com/KOMKZ/opsfeed/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewClient connects per cfg and pings once. metrics may be nil.
func NewClient(ctx context.Context, cfg Config, log *logger.CtxZapLogger, metrics *Metrics) (redis.UniversalClient, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetLogger("redis")
	}

	var client redis.UniversalClient
	if cfg.Mode == ModeCluster {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addrs,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addrs[0],
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, ErrConnect.WithData("addrs", cfg.Addrs).Wrap(err)
	}

	if metrics != nil && metrics.IsMetricsEnabled() {
		client.AddHook(NewMetricsHook(metrics))
		metrics.bindPool(func() PoolStats {
			s := client.PoolStats()
			return PoolStats{
				ActiveCount: int64(s.TotalConns - s.IdleConns),
				IdleCount:   int64(s.IdleConns),
			}
		})
	}

	log.DebugCtx(ctx, "✅ [Redis] connected",
		zap.String("mode", cfg.Mode), zap.Strings("addrs", cfg.Addrs))
	return client, nil
}
