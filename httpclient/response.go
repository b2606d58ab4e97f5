package httpclient

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/KOMKZ/opsfeed/auth"
)

// Response fully-read HTTP response
type Response struct {
	StatusCode int
	Status     string
	Headers    http.Header
	Body       []byte

	// Duration total time including retries
	Duration time.Duration
	Attempts int
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500 && r.StatusCode < 600
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return ErrDecode.WithData("status", r.StatusCode).Wrap(err)
	}
	return nil
}

// Err classifies a non-2xx response: 401/403 are auth failures, 5xx and 429
// are transient.
func (r *Response) Err() error {
	switch {
	case r.IsSuccess():
		return nil
	case r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden:
		return auth.ErrUnauthorized.WithData("status", r.StatusCode)
	case r.IsServerError() || r.StatusCode == http.StatusTooManyRequests:
		return ErrServerError.WithData("status", r.StatusCode).WithMsgf("server error: %s", r.Status)
	default:
		return ErrClientError.WithData("status", r.StatusCode).WithMsgf("request rejected: %s", r.Status)
	}
}
