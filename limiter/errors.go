package limiter

import "github.com/KOMKZ/opsfeed/errcode"

// ModuleCode limiter module code
const ModuleCode = 120

var (
	// ErrLimitExceeded no token and the caller would not wait
	ErrLimitExceeded = errcode.Register(errcode.New(ModuleCode, 1,
		"limiter", "error.limiter.limit_exceeded", "rate limit exceeded", errcode.KindTransient))

	// ErrWaitTimeout the next token is further away than MaxWait
	ErrWaitTimeout = errcode.Register(errcode.New(ModuleCode, 2,
		"limiter", "error.limiter.wait_timeout", "rate limit wait timeout", errcode.KindTransient))

	ErrConfigInvalid = errcode.Register(errcode.New(ModuleCode, 3,
		"limiter", "error.limiter.config_invalid", "invalid limiter configuration"))
)
