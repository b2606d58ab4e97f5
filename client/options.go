package client

import (
	"net/http"

	"github.com/KOMKZ/opsfeed/auth"
	"github.com/KOMKZ/opsfeed/stream"
	"github.com/KOMKZ/opsfeed/telemetry"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

// Option overrides a collaborator New would otherwise build from config
type Option func(*options)

type options struct {
	clock     clockwork.Clock
	dialer    stream.Dialer
	tokens    auth.TokenSource
	transport http.RoundTripper
	redis     goredis.UniversalClient
	telemetry []telemetry.Option
}

func newOptions(opts []Option) *options {
	o := &options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithDialer replaces the WebSocket dialer of the multiplexer.
func WithDialer(d stream.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithTokenSource takes precedence over auth.token.
func WithTokenSource(src auth.TokenSource) Option {
	return func(o *options) {
		o.tokens = src
	}
}

// WithTransport HTTP transport of the REST client
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithRedisClient uses client for the redis cache store instead of dialing
// redis.addrs. The caller keeps ownership and closes it.
func WithRedisClient(client goredis.UniversalClient) Option {
	return func(o *options) {
		o.redis = client
	}
}

// WithTelemetryOptions extra options for telemetry.Setup.
func WithTelemetryOptions(opts ...telemetry.Option) Option {
	return func(o *options) {
		o.telemetry = append(o.telemetry, opts...)
	}
}
