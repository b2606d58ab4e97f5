package breaker

import "github.com/KOMKZ/opsfeed/errcode"

const moduleCode = 30

var (
	// ErrCircuitOpen the resource is quarantined, do not attempt
	ErrCircuitOpen = errcode.Register(errcode.New(moduleCode, 1, "breaker",
		"error.breaker.circuit_open", "circuit breaker is open", errcode.KindCircuit))
)
