package httpclient

import "github.com/KOMKZ/opsfeed/errcode"

// ModuleCode httpclient module code
const ModuleCode = 50

var (
	// ErrRequestFailed transport failure before a response arrived
	ErrRequestFailed = errcode.Register(errcode.New(ModuleCode, 1,
		"httpclient", "error.httpclient.request_failed", "http request failed", errcode.KindTransient))

	// ErrServerError 5xx or 429 response
	ErrServerError = errcode.Register(errcode.New(ModuleCode, 2,
		"httpclient", "error.httpclient.server_error", "server error", errcode.KindTransient))

	// ErrClientError 4xx response other than 401/403/429
	ErrClientError = errcode.Register(errcode.New(ModuleCode, 3,
		"httpclient", "error.httpclient.client_error", "request rejected"))

	ErrDecode = errcode.Register(errcode.New(ModuleCode, 4,
		"httpclient", "error.httpclient.decode", "invalid response body", errcode.KindProtocol))

	ErrBuildRequest = errcode.Register(errcode.New(ModuleCode, 5,
		"httpclient", "error.httpclient.build_request", "invalid request"))

	ErrConfigInvalid = errcode.Register(errcode.New(ModuleCode, 6,
		"httpclient", "error.httpclient.config_invalid", "invalid http client configuration"))
)
