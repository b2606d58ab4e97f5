package httpclient

import (
	"context"
	"errors"
	"net/url"

	"github.com/KOMKZ/opsfeed/breaker"
	"github.com/KOMKZ/opsfeed/errcode"
)

// breakerFor returns the breaker guarding req, nil when disabled.
func breakerFor(req *Request, cfg *config) *breaker.Breaker {
	if cfg.breakers == nil || cfg.breakerDisabled {
		return nil
	}
	resource := cfg.breakerResource
	if resource == "" {
		resource = hostOf(req.resolve(cfg.baseURL))
	}
	return cfg.breakers.Get(resource)
}

// hostOf scheme://host of rawURL, or rawURL itself if it does not parse
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}

// settle reports an attempt's outcome. Only transient failures count against
// the host; a cancelled caller returns a half-open probe unused.
func settle(ctx context.Context, br *breaker.Breaker, err error) {
	if br == nil {
		return
	}
	switch {
	case err == nil:
		br.RecordSuccess()
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		br.CancelProbe()
	case errcode.KindOf(err) == errcode.KindTransient:
		br.RecordFailure()
	default:
		// the host answered
		br.RecordSuccess()
	}
}
