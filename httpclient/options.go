package httpclient

import (
	"net/http"
	"net/url"
	"time"

	"github.com/KOMKZ/opsfeed/auth"
	"github.com/KOMKZ/opsfeed/breaker"
	"github.com/KOMKZ/opsfeed/limiter"
	"github.com/KOMKZ/opsfeed/logger"
	"github.com/KOMKZ/opsfeed/retry"
)

// config effective settings of one request; client-level options are
// merged with per-request ones
type config struct {
	baseURL   string
	timeout   time.Duration
	transport http.RoundTripper
	headers   map[string]string
	queries   url.Values

	retryOpts    []retry.Option
	retryEnabled bool

	breakers        *breaker.Manager
	breakerResource string
	breakerDisabled bool

	limiter *limiter.Limiter

	tokens auth.TokenSource
	logger *logger.CtxZapLogger

	beforeRequest func(*http.Request) error
	afterResponse func(*Response) error
}

// Option client or request option
type Option func(*config)

// WithBaseURL prefix for relative paths
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		c.baseURL = baseURL
	}
}

// WithTimeout per-attempt timeout
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

func WithHeader(key, value string) Option {
	return func(c *config) {
		if c.headers == nil {
			c.headers = make(map[string]string)
		}
		c.headers[key] = value
	}
}

// WithTransport custom round tripper
func WithTransport(rt http.RoundTripper) Option {
	return func(c *config) {
		c.transport = rt
	}
}

func WithQuery(key, value string) Option {
	return func(c *config) {
		if c.queries == nil {
			c.queries = make(url.Values)
		}
		c.queries.Set(key, value)
	}
}

// WithQueries adds every value of q
func WithQueries(q url.Values) Option {
	return func(c *config) {
		if c.queries == nil {
			c.queries = make(url.Values)
		}
		for k, vs := range q {
			for _, v := range vs {
				c.queries.Add(k, v)
			}
		}
	}
}

// WithRetry enables retries. Auth and circuit-open failures are never retried
// unless opts replaces the condition.
func WithRetry(opts ...retry.Option) Option {
	return func(c *config) {
		c.retryEnabled = true
		c.retryOpts = opts
	}
}

func DisableRetry() Option {
	return func(c *config) {
		c.retryEnabled = false
		c.retryOpts = nil
	}
}

// WithBreakers guards each host with a breaker from m
func WithBreakers(m *breaker.Manager) Option {
	return func(c *config) {
		c.breakers = m
	}
}

// WithBreakerResource overrides the breaker resource, default scheme://host
func WithBreakerResource(resource string) Option {
	return func(c *config) {
		c.breakerResource = resource
	}
}

// DisableBreaker skips the breaker for one request
func DisableBreaker() Option {
	return func(c *config) {
		c.breakerDisabled = true
	}
}

// WithLimiter paces requests per host; each attempt waits for a token
func WithLimiter(l *limiter.Limiter) Option {
	return func(c *config) {
		c.limiter = l
	}
}

// WithTokenSource sends "Authorization: Bearer <token>" on every request
func WithTokenSource(src auth.TokenSource) Option {
	return func(c *config) {
		c.tokens = src
	}
}

func WithLogger(l *logger.CtxZapLogger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBeforeRequest hook run on the built request before sending
func WithBeforeRequest(fn func(*http.Request) error) Option {
	return func(c *config) {
		c.beforeRequest = fn
	}
}

// WithAfterResponse hook run on every final response
func WithAfterResponse(fn func(*Response) error) Option {
	return func(c *config) {
		c.afterResponse = fn
	}
}

func newConfig() *config {
	return &config{
		timeout: 30 * time.Second,
		headers: make(map[string]string),
		queries: make(url.Values),
	}
}

func applyOptions(cfg *config, opts []Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
}

// merge request-level settings override client-level ones
func (c *config) merge(other *config) *config {
	merged := *c
	merged.headers = make(map[string]string, len(c.headers)+len(other.headers))
	merged.queries = make(url.Values)
	for k, v := range c.headers {
		merged.headers[k] = v
	}
	for k, v := range other.headers {
		merged.headers[k] = v
	}
	for _, q := range []url.Values{c.queries, other.queries} {
		for k, vs := range q {
			for _, v := range vs {
				merged.queries.Add(k, v)
			}
		}
	}

	if other.baseURL != "" {
		merged.baseURL = other.baseURL
	}
	if other.timeout > 0 {
		merged.timeout = other.timeout
	}
	if other.retryEnabled || len(other.retryOpts) > 0 {
		merged.retryEnabled = other.retryEnabled
		merged.retryOpts = other.retryOpts
	}
	if other.breakers != nil {
		merged.breakers = other.breakers
	}
	if other.breakerResource != "" {
		merged.breakerResource = other.breakerResource
	}
	if other.breakerDisabled {
		merged.breakerDisabled = true
	}
	if other.limiter != nil {
		merged.limiter = other.limiter
	}
	if other.tokens != nil {
		merged.tokens = other.tokens
	}
	if other.beforeRequest != nil {
		merged.beforeRequest = other.beforeRequest
	}
	if other.afterResponse != nil {
		merged.afterResponse = other.afterResponse
	}
	return &merged
}
