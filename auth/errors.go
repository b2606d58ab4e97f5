package auth

import "github.com/KOMKZ/opsfeed/errcode"

// ModuleCode auth module code
const ModuleCode = 40

var (
	// ErrCredentialMissing no token available
	ErrCredentialMissing = errcode.Register(errcode.New(ModuleCode, 1,
		"auth", "error.auth.credential_missing", "credential missing", errcode.KindAuth))

	// ErrCredentialExpired token past its exp claim
	ErrCredentialExpired = errcode.Register(errcode.New(ModuleCode, 2,
		"auth", "error.auth.credential_expired", "credential expired", errcode.KindAuth))

	// ErrUnauthorized server rejected the credential (401/403)
	ErrUnauthorized = errcode.Register(errcode.New(ModuleCode, 3,
		"auth", "error.auth.unauthorized", "unauthorized", errcode.KindAuth))
)
