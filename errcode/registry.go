package errcode

import (
	"fmt"
	"sort"
	"sync"
)

// Registry guards against two packages claiming the same code.
type Registry struct {
	mu    sync.RWMutex
	codes map[int]string
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{codes: make(map[int]string)}
}

// Register registers err in the global registry and returns it, so it can be
// used directly in a var block.
func Register(err *LayeredError) *LayeredError {
	return globalRegistry.Register(err)
}

// Register panics when the code is already taken by a different module:msgKey.
// Registering the same error twice is allowed.
func (r *Registry) Register(err *LayeredError) *LayeredError {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := err.Module() + ":" + err.MsgKey()
	if existing, ok := r.codes[err.Code()]; ok && existing != key {
		panic(fmt.Sprintf("error code conflict: %d already registered as %s, cannot register as %s",
			err.Code(), existing, key))
	}
	r.codes[err.Code()] = key
	return err
}

// Codes returns every registered code in ascending order.
func (r *Registry) Codes() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.codes))
	for c := range r.codes {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

// Lookup returns the module:msgKey registered for code.
func (r *Registry) Lookup(code int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.codes[code]
	return k, ok
}

// Default returns the global registry.
func Default() *Registry {
	return globalRegistry
}
