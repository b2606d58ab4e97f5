package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request replayable HTTP request; the body is buffered so retries resend it.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   url.Values

	body []byte
}

func NewRequest(method, rawURL string) *Request {
	return &Request{
		Method:  method,
		URL:     rawURL,
		Headers: make(map[string]string),
		Query:   make(url.Values),
	}
}

func NewGetRequest(rawURL string) *Request {
	return NewRequest(http.MethodGet, rawURL)
}

func NewPostRequest(rawURL string) *Request {
	return NewRequest(http.MethodPost, rawURL)
}

func (r *Request) WithHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

func (r *Request) WithQuery(key, value string) *Request {
	r.Query.Set(key, value)
	return r
}

// WithBody buffers body
func (r *Request) WithBody(body io.Reader) (*Request, error) {
	if body == nil {
		return r, nil
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return r, ErrBuildRequest.Wrap(err)
	}
	r.body = data
	return r, nil
}

// WithJSON encodes v as the body
func (r *Request) WithJSON(v any) (*Request, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return r, ErrBuildRequest.Wrap(err)
	}
	r.body = data
	r.Headers["Content-Type"] = "application/json"
	return r, nil
}

// resolve joins baseURL with a relative URL
func (r *Request) resolve(baseURL string) string {
	if baseURL == "" || strings.HasPrefix(r.URL, "http://") || strings.HasPrefix(r.URL, "https://") {
		return r.URL
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(r.URL, "/")
}

func (r *Request) build(ctx context.Context, cfg *config) (*http.Request, error) {
	full := r.resolve(cfg.baseURL)
	q := make(url.Values)
	for k, vs := range cfg.queries {
		q[k] = append([]string(nil), vs...)
	}
	for k, vs := range r.Query {
		q[k] = append([]string(nil), vs...)
	}
	if len(q) > 0 {
		sep := "?"
		if strings.Contains(full, "?") {
			sep = "&"
		}
		full += sep + q.Encode()
	}

	var body io.Reader
	if len(r.body) > 0 {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, full, body)
	if err != nil {
		return nil, ErrBuildRequest.Wrap(err)
	}
	for k, v := range cfg.headers {
		req.Header.Set(k, v)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	return req, nil
}
