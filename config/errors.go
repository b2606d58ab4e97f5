package config

import "github.com/KOMKZ/opsfeed/errcode"

// ModuleCode config module code
const ModuleCode = 60

var (
	ErrReadFile = errcode.Register(errcode.New(ModuleCode, 1,
		"config", "error.config.read_file", "read config file failed"))

	ErrLoadSource = errcode.Register(errcode.New(ModuleCode, 2,
		"config", "error.config.load_source", "load config source failed"))

	ErrDecode = errcode.Register(errcode.New(ModuleCode, 3,
		"config", "error.config.decode", "decode config failed"))

	// ErrInvalid a section failed validation; the cause names it
	ErrInvalid = errcode.Register(errcode.New(ModuleCode, 4,
		"config", "error.config.invalid", "invalid configuration"))
)
