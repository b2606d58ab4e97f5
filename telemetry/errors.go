package telemetry

import "github.com/KOMKZ/opsfeed/errcode"

// ModuleCode telemetry module code
const ModuleCode = 80

var (
	ErrProviderInvalid = errcode.Register(errcode.New(ModuleCode, 1,
		"telemetry", "error.telemetry.provider_invalid", "invalid metrics provider"))

	ErrDuplicateProvider = errcode.Register(errcode.New(ModuleCode, 2,
		"telemetry", "error.telemetry.duplicate_provider", "metrics provider already registered"))

	ErrRegisterMetrics = errcode.Register(errcode.New(ModuleCode, 3,
		"telemetry", "error.telemetry.register_metrics", "register metrics failed"))

	ErrExporter = errcode.Register(errcode.New(ModuleCode, 4,
		"telemetry", "error.telemetry.exporter", "create exporter failed"))

	ErrResource = errcode.Register(errcode.New(ModuleCode, 5,
		"telemetry", "error.telemetry.resource", "create resource failed"))

	ErrShutdown = errcode.Register(errcode.New(ModuleCode, 6,
		"telemetry", "error.telemetry.shutdown", "telemetry shutdown failed"))

	ErrConfigInvalid = errcode.Register(errcode.New(ModuleCode, 7,
		"telemetry", "error.telemetry.config_invalid", "invalid telemetry configuration"))
)
