package adapters

import "github.com/KOMKZ/opsfeed/errcode"

// ModuleCode adapters module code
const ModuleCode = 110

var (
	ErrConfigInvalid = errcode.Register(errcode.New(ModuleCode, 1,
		"adapters", "error.adapters.config_invalid", "invalid adapters configuration"))

	// ErrNoEndpoint the fleet feed has no stream endpoint configured
	ErrNoEndpoint = errcode.Register(errcode.New(ModuleCode, 2,
		"adapters", "error.adapters.no_endpoint", "stream endpoint not configured"))

	ErrFeedClosed = errcode.Register(errcode.New(ModuleCode, 3,
		"adapters", "error.adapters.feed_closed", "feed closed"))
)
