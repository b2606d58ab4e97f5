// Package errcode provides layered error codes shared by every opsfeed package.
// Code format: MMBBBB (MM = module code, BBBB = business code).
package errcode

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how callers are expected to react to it.
type Kind string

const (
	// KindInternal unclassified failure
	KindInternal Kind = "internal"
	// KindTransient network or backend failure, retried automatically
	KindTransient Kind = "transient"
	// KindCircuit fast-fail while an endpoint is quarantined
	KindCircuit Kind = "circuit"
	// KindAuth missing, expired or rejected credential
	KindAuth Kind = "auth"
	// KindProtocol malformed frame or payload
	KindProtocol Kind = "protocol"
)

// LayeredError layered error code with an optional cause chain and context data.
type LayeredError struct {
	module string
	code   int
	msgKey string
	msg    string
	kind   Kind
	data   map[string]any
	cause  error
}

// New creates a layered error.
// moduleCode: 10-99, businessCode: 0001-9999
func New(moduleCode, businessCode int, module, msgKey, msg string, kind ...Kind) *LayeredError {
	k := KindInternal
	if len(kind) > 0 {
		k = kind[0]
	}
	return &LayeredError{
		module: module,
		code:   moduleCode*10000 + businessCode,
		msgKey: msgKey,
		msg:    msg,
		kind:   k,
		data:   make(map[string]any),
	}
}

func (e *LayeredError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Code full error code
func (e *LayeredError) Code() int { return e.code }

// Module module name
func (e *LayeredError) Module() string { return e.module }

// MsgKey message key
func (e *LayeredError) MsgKey() string { return e.msgKey }

// Message message without the cause
func (e *LayeredError) Message() string { return e.msg }

// Kind error classification
func (e *LayeredError) Kind() Kind { return e.kind }

// Data context data
func (e *LayeredError) Data() map[string]any { return e.data }

// Unwrap supports errors.Is / errors.As through the cause chain
func (e *LayeredError) Unwrap() error { return e.cause }

// WithMsgf returns a copy with a formatted message.
func (e *LayeredError) WithMsgf(format string, args ...any) *LayeredError {
	clone := *e
	clone.msg = fmt.Sprintf(format, args...)
	return &clone
}

// WithData returns a copy carrying one more context value.
func (e *LayeredError) WithData(key string, value any) *LayeredError {
	clone := *e
	clone.data = make(map[string]any, len(e.data)+1)
	for k, v := range e.data {
		clone.data[k] = v
	}
	clone.data[key] = value
	return &clone
}

// Wrap returns a copy wrapping cause. A nil cause returns e unchanged.
func (e *LayeredError) Wrap(cause error) *LayeredError {
	if cause == nil {
		return e
	}
	clone := *e
	clone.cause = cause
	return &clone
}

// Is matches by code so wrapped copies compare equal to their sentinel.
func (e *LayeredError) Is(target error) bool {
	t, ok := target.(*LayeredError)
	if !ok {
		return false
	}
	return e.code == t.code
}

func (e *LayeredError) String() string {
	return fmt.Sprintf("LayeredError{code:%d, module:%s, kind:%s, msg:%s}", e.code, e.module, e.kind, e.Error())
}

// KindOf returns the kind of the first LayeredError in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var le *LayeredError
	if errors.As(err, &le) {
		return le.kind
	}
	return KindInternal
}

// CodeOf returns the code of the first LayeredError in err's chain, or 0.
func CodeOf(err error) int {
	var le *LayeredError
	if errors.As(err, &le) {
		return le.code
	}
	return 0
}
