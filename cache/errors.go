package cache

import "github.com/KOMKZ/opsfeed/errcode"

// ModuleCode cache module code
const ModuleCode = 20

const (
	ErrCodeFetchFailed = iota + 1
	ErrCodeCacheMiss
	ErrCodeStoreGet
	ErrCodeStoreSet
	ErrCodeStoreDelete
	ErrCodeDecode
	ErrCodeClosed
	ErrCodeConfigInvalid
)

var (
	// ErrFetchFailed fetcher failed after every retry and no cached value exists
	ErrFetchFailed = errcode.Register(errcode.New(ModuleCode, ErrCodeFetchFailed,
		"cache", "error.cache.fetch_failed", "cache fetch failed", errcode.KindTransient))

	// ErrCacheMiss store has no record for the key
	ErrCacheMiss = errcode.Register(errcode.New(ModuleCode, ErrCodeCacheMiss,
		"cache", "error.cache.miss", "cache miss"))

	ErrStoreGet = errcode.Register(errcode.New(ModuleCode, ErrCodeStoreGet,
		"cache", "error.cache.store_get", "cache store read failed", errcode.KindTransient))

	ErrStoreSet = errcode.Register(errcode.New(ModuleCode, ErrCodeStoreSet,
		"cache", "error.cache.store_set", "cache store write failed", errcode.KindTransient))

	ErrStoreDelete = errcode.Register(errcode.New(ModuleCode, ErrCodeStoreDelete,
		"cache", "error.cache.store_delete", "cache store delete failed", errcode.KindTransient))

	// ErrDecode persisted record or payload could not be decoded
	ErrDecode = errcode.Register(errcode.New(ModuleCode, ErrCodeDecode,
		"cache", "error.cache.decode", "cache record decode failed", errcode.KindProtocol))

	// ErrClosed engine already closed
	ErrClosed = errcode.Register(errcode.New(ModuleCode, ErrCodeClosed,
		"cache", "error.cache.closed", "cache engine closed"))

	ErrConfigInvalid = errcode.Register(errcode.New(ModuleCode, ErrCodeConfigInvalid,
		"cache", "error.cache.config_invalid", "invalid cache configuration"))
)
