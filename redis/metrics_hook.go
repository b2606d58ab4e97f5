package redis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// MetricsHook records every command on Metrics.
type MetricsHook struct {
	metrics *Metrics
}

func NewMetricsHook(metrics *Metrics) *MetricsHook {
	return &MetricsHook{metrics: metrics}
}

func (h *MetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *MetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.metrics.RecordCommand(ctx, cmd.Name(), time.Since(start), failed(err))
		return err
	}
}

// ProcessPipelineHook splits the pipeline duration evenly across commands.
func (h *MetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		if len(cmds) == 0 {
			return err
		}
		per := time.Since(start) / time.Duration(len(cmds))
		for _, cmd := range cmds {
			h.metrics.RecordCommand(ctx, cmd.Name(), per, failed(cmd.Err()))
		}
		return err
	}
}

func failed(err error) bool {
	return err != nil && !errors.Is(err, redis.Nil)
}
