package event

import "errors"

// ErrStopPropagation returned by a listener to skip the remaining listeners
// without failing the dispatch
var ErrStopPropagation = errors.New("stop propagation")

// ErrClosed dispatcher already closed
var ErrClosed = errors.New("event dispatcher closed")
