package stream

import (
	"github.com/KOMKZ/opsfeed/breaker"
	"github.com/KOMKZ/opsfeed/errcode"
)

// ModuleCode stream module code
const ModuleCode = 10

var (
	// ErrCircuitOpen endpoint quarantined by its breaker
	ErrCircuitOpen = breaker.ErrCircuitOpen

	// ErrNotConnected endpoint has no open connection
	ErrNotConnected = errcode.Register(errcode.New(ModuleCode, 1,
		"stream", "error.stream.not_connected", "endpoint not connected", errcode.KindTransient))

	// ErrUnauthorized handshake rejected with 401/403 or no usable credential
	ErrUnauthorized = errcode.Register(errcode.New(ModuleCode, 2,
		"stream", "error.stream.unauthorized", "stream authentication failed", errcode.KindAuth))

	ErrClosed = errcode.Register(errcode.New(ModuleCode, 3,
		"stream", "error.stream.closed", "multiplexer closed"))

	// ErrInvalidMessage frame is not a valid message envelope
	ErrInvalidMessage = errcode.Register(errcode.New(ModuleCode, 4,
		"stream", "error.stream.invalid_message", "invalid stream message", errcode.KindProtocol))

	ErrDialFailed = errcode.Register(errcode.New(ModuleCode, 5,
		"stream", "error.stream.dial_failed", "stream dial failed", errcode.KindTransient))

	// ErrHeartbeatTimeout consecutive heartbeats went unanswered
	ErrHeartbeatTimeout = errcode.Register(errcode.New(ModuleCode, 6,
		"stream", "error.stream.heartbeat_timeout", "heartbeat timeout", errcode.KindTransient))

	ErrConnectionLost = errcode.Register(errcode.New(ModuleCode, 7,
		"stream", "error.stream.connection_lost", "stream connection lost", errcode.KindTransient))

	ErrSendFailed = errcode.Register(errcode.New(ModuleCode, 8,
		"stream", "error.stream.send_failed", "stream send failed", errcode.KindTransient))

	ErrUnknownEndpoint = errcode.Register(errcode.New(ModuleCode, 9,
		"stream", "error.stream.unknown_endpoint", "endpoint not acquired"))

	ErrConfigInvalid = errcode.Register(errcode.New(ModuleCode, 10,
		"stream", "error.stream.config_invalid", "invalid stream configuration"))
)
