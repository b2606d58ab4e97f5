package scheduler

import "github.com/KOMKZ/opsfeed/errcode"

// ModuleCode scheduler module code
const ModuleCode = 70

var (
	ErrCreate = errcode.Register(errcode.New(ModuleCode, 1,
		"scheduler", "error.scheduler.create", "create scheduler failed"))

	ErrRegister = errcode.Register(errcode.New(ModuleCode, 2,
		"scheduler", "error.scheduler.register", "register job failed"))

	ErrInvalidInterval = errcode.Register(errcode.New(ModuleCode, 3,
		"scheduler", "error.scheduler.invalid_interval", "invalid job interval"))

	// ErrStopped scheduler already shut down
	ErrStopped = errcode.Register(errcode.New(ModuleCode, 4,
		"scheduler", "error.scheduler.stopped", "scheduler stopped"))

	ErrShutdown = errcode.Register(errcode.New(ModuleCode, 5,
		"scheduler", "error.scheduler.shutdown", "scheduler shutdown failed"))

	ErrConfigInvalid = errcode.Register(errcode.New(ModuleCode, 6,
		"scheduler", "error.scheduler.config_invalid", "invalid scheduler configuration"))
)
