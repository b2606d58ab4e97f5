// Package httpclient is the JSON-over-HTTP client used by fetchers. Each
// request carries the bearer credential and the cache engine's Cache-Control
// hint, and can be retried and guarded by a per-host circuit breaker.
package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/KOMKZ/opsfeed/auth"
	"github.com/KOMKZ/opsfeed/cache"
	"github.com/KOMKZ/opsfeed/errcode"
	"github.com/KOMKZ/opsfeed/logger"
	"github.com/KOMKZ/opsfeed/retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/KOMKZ/opsfeed/httpclient")

// Client HTTP client
type Client struct {
	httpClient *http.Client
	config     *config
}

// New creates a client from cfg; opts override it.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := []Option{WithBaseURL(cfg.BaseURL), WithTimeout(cfg.Timeout)}
	if cfg.MaxAttempts > 1 {
		base = append(base, WithRetry(
			retry.MaxAttempts(cfg.MaxAttempts),
			retry.Backoff(retry.ExponentialBackoff(cfg.RetryDelay, retry.WithJitter(0))),
		))
	}
	c := NewClient(append(base, opts...)...)
	if !cfg.BreakerEnabled {
		c.config.breakers = nil
	}
	return c, nil
}

// NewClient creates a client from options alone.
func NewClient(opts ...Option) *Client {
	cfg := newConfig()
	cfg.logger = logger.GetLogger("httpclient")
	applyOptions(cfg, opts)
	if cfg.transport == nil {
		cfg.transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	return &Client{
		httpClient: &http.Client{Transport: cfg.transport},
		config:     cfg,
	}
}

// Do executes req. Non-2xx responses are returned together with their
// classified error (see Response.Err).
func (c *Client) Do(ctx context.Context, req *Request, opts ...Option) (*Response, error) {
	reqCfg := newConfig()
	applyOptions(reqCfg, opts)
	cfg := c.config.merge(reqCfg)

	ctx, span := tracer.Start(ctx, "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.resolve(cfg.baseURL)),
		))
	defer span.End()

	start := time.Now()
	attempts := 0
	op := func(ctx context.Context) (*Response, error) {
		attempts++
		return c.attempt(ctx, req, cfg)
	}

	var (
		resp *Response
		err  error
	)
	if cfg.retryEnabled {
		ropts := append([]retry.Option{
			retry.Condition(retry.SkipKinds(errcode.KindAuth, errcode.KindCircuit, errcode.KindInternal, errcode.KindProtocol)),
			retry.OnRetry(func(attempt int, err error) {
				cfg.logger.WarnCtx(ctx, "⚠️ [HTTPClient] retrying request",
					zap.String("url", req.resolve(cfg.baseURL)), zap.Int("attempt", attempt), zap.Error(err))
			}),
		}, cfg.retryOpts...)
		resp, err = retry.DoWithData(ctx, op, ropts...)
	} else {
		resp, err = op(ctx)
	}

	if resp != nil {
		resp.Duration = time.Since(start)
		resp.Attempts = attempts
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	}
	span.SetAttributes(attribute.Int("http.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}
	if cfg.afterResponse != nil {
		if err := cfg.afterResponse(resp); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, req *Request, cfg *config) (*Response, error) {
	if cfg.limiter != nil {
		if err := cfg.limiter.Wait(ctx, hostOf(req.resolve(cfg.baseURL))); err != nil {
			return nil, err
		}
	}
	br := breakerFor(req, cfg)
	if br != nil {
		if err := br.Allow(); err != nil {
			return nil, err
		}
	}
	resp, err := c.send(ctx, req, cfg)
	settle(ctx, br, err)
	return resp, err
}

func (c *Client) send(ctx context.Context, req *Request, cfg *config) (*Response, error) {
	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	httpReq, err := req.build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.tokens != nil {
		bearer, err := auth.BearerHeader(ctx, cfg.tokens)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Authorization", bearer)
	}
	if hint := cache.CacheControlHint(ctx); hint != "" && httpReq.Header.Get("Cache-Control") == "" {
		httpReq.Header.Set("Cache-Control", hint)
	}
	if cfg.beforeRequest != nil {
		if err := cfg.beforeRequest(httpReq); err != nil {
			return nil, ErrBuildRequest.Wrap(err)
		}
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, ErrRequestFailed.WithData("url", httpReq.URL.String()).Wrap(err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, ErrRequestFailed.WithData("url", httpReq.URL.String()).Wrap(err)
	}
	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    httpResp.Header,
		Body:       body,
	}
	if err := resp.Err(); err != nil {
		cfg.logger.DebugCtx(ctx, "[HTTPClient] non-success response",
			zap.String("url", httpReq.URL.String()), zap.Int("status", resp.StatusCode))
		return resp, err
	}
	return resp, nil
}

// Get sends a GET for path.
func (c *Client) Get(ctx context.Context, path string, opts ...Option) (*Response, error) {
	return c.Do(ctx, NewGetRequest(path), opts...)
}

// GetJSON GETs path with query and decodes a 2xx body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any, opts ...Option) error {
	req := NewGetRequest(path)
	for k, vs := range query {
		req.Query[k] = append([]string(nil), vs...)
	}
	resp, err := c.Do(ctx, req, opts...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.JSON(out)
}

// PostJSON POSTs body as JSON and decodes a 2xx response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any, opts ...Option) error {
	req, err := NewPostRequest(path).WithJSON(body)
	if err != nil {
		return err
	}
	resp, err := c.Do(ctx, req, opts...)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return resp.JSON(out)
}

// Get is the generic form of Client.GetJSON.
func Get[T any](ctx context.Context, c *Client, path string, query url.Values, opts ...Option) (T, error) {
	var out T
	err := c.GetJSON(ctx, path, query, &out, opts...)
	return out, err
}
