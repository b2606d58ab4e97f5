package redis

import "github.com/KOMKZ/opsfeed/errcode"

// ModuleCode redis module code
const ModuleCode = 100

var (
	ErrConnect = errcode.Register(errcode.New(ModuleCode, 1,
		"redis", "error.redis.connect", "redis connect failed", errcode.KindTransient))

	ErrConfigInvalid = errcode.Register(errcode.New(ModuleCode, 2,
		"redis", "error.redis.config_invalid", "invalid redis configuration"))
)
