package breaker

// State circuit breaker state
type State int

const (
	// StateClosed calls flow normally
	StateClosed State = iota
	// StateOpen calls are rejected until the reset timeout elapses
	StateOpen
	// StateHalfOpen a single probe is allowed through
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// canTransition reports whether from→to is a legal edge.
// closed→open, open→half-open, half-open→closed, half-open→open.
func canTransition(from, to State) bool {
	switch from {
	case StateClosed:
		return to == StateOpen
	case StateOpen:
		return to == StateHalfOpen
	case StateHalfOpen:
		return to == StateClosed || to == StateOpen
	}
	return false
}
