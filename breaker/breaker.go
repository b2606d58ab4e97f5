// Package breaker implements per-resource circuit breakers.
//
// A Breaker counts consecutive failures. At the threshold it opens and rejects
// every call until ResetTimeout has elapsed since the last failure, then lets
// exactly one probe through (half-open). The probe's outcome closes or
// reopens the circuit.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Snapshot point-in-time view of a breaker
type Snapshot struct {
	Resource    string
	State       State
	Failures    int
	LastFailure time.Time
	// RetryAt earliest time a probe is allowed while open
	RetryAt time.Time
}

// hooks let a Manager observe a breaker without the breaker knowing about
// buses or metrics. Called outside the breaker's lock.
type hooks struct {
	onChange  func(resource string, from, to State, reason string)
	onReject  func(resource string, retryAt time.Time)
	onFailure func(resource string)
}

type transition struct {
	from, to State
	reason   string
}

// Breaker circuit breaker for one resource
type Breaker struct {
	resource string
	cfg      ResourceConfig
	clock    clockwork.Clock
	hooks    hooks

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probing     bool
}

// New creates a standalone breaker. Breakers shared across components should
// come from a Manager.
func New(resource string, cfg ResourceConfig, clock clockwork.Clock) *Breaker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Breaker{
		resource: resource,
		cfg:      DefaultResourceConfig().Merge(cfg),
		clock:    clock,
		state:    StateClosed,
	}
}

// Resource resource name
func (b *Breaker) Resource() string {
	return b.resource
}

// Config effective thresholds
func (b *Breaker) Config() ResourceConfig {
	return b.cfg
}

// Allow asks permission for one attempt. When the circuit is open and the
// reset timeout has elapsed it moves to half-open and grants the single probe;
// the caller must then report the outcome with RecordSuccess/RecordFailure or
// give the probe back with CancelProbe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	var tr *transition
	retryAt := b.lastFailure.Add(b.cfg.ResetTimeout)
	err := func() error {
		switch b.state {
		case StateClosed:
			return nil
		case StateOpen:
			if b.clock.Since(b.lastFailure) < b.cfg.ResetTimeout {
				return ErrCircuitOpen
			}
			tr = b.setState(StateHalfOpen, "reset timeout elapsed")
			b.probing = true
			return nil
		default:
			if b.probing {
				return ErrCircuitOpen
			}
			b.probing = true
			return nil
		}
	}()
	b.mu.Unlock()

	b.notify(tr)
	if err != nil && b.hooks.onReject != nil {
		b.hooks.onReject(b.resource, retryAt)
	}
	return err
}

// Rejecting reports whether Allow would fail right now, without claiming a
// probe or changing state.
func (b *Breaker) Rejecting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		return b.clock.Since(b.lastFailure) < b.cfg.ResetTimeout
	case StateHalfOpen:
		return b.probing
	}
	return false
}

// RecordSuccess closes the circuit and zeroes the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.failures = 0
	b.probing = false
	var tr *transition
	if b.state == StateHalfOpen {
		tr = b.setState(StateClosed, "probe succeeded")
	}
	b.mu.Unlock()

	b.notify(tr)
}

// RecordFailure counts a failure. A failed probe reopens the circuit and
// restarts the reset timeout.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	b.failures++
	b.lastFailure = b.clock.Now()
	var tr *transition
	switch b.state {
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			tr = b.setState(StateOpen, "failure threshold reached")
		}
	case StateHalfOpen:
		b.probing = false
		tr = b.setState(StateOpen, "probe failed")
	}
	b.mu.Unlock()

	if b.hooks.onFailure != nil {
		b.hooks.onFailure(b.resource)
	}
	b.notify(tr)
}

// CancelProbe returns an unused half-open probe so the next Allow can claim it.
func (b *Breaker) CancelProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.probing = false
	}
}

// Execute runs fn under the breaker. Context cancellation is not counted as a
// failure.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	switch {
	case err == nil:
		b.RecordSuccess()
	case ctx.Err() != nil:
		b.CancelProbe()
	default:
		b.RecordFailure()
	}
	return err
}

// State current state. An open breaker whose timeout has elapsed still reports
// open until the next Allow.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the current counters.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Snapshot{
		Resource:    b.resource,
		State:       b.state,
		Failures:    b.failures,
		LastFailure: b.lastFailure,
	}
	if b.state == StateOpen {
		s.RetryAt = b.lastFailure.Add(b.cfg.ResetTimeout)
	}
	return s
}

// Reset is an administrative override outside the state machine: from any
// state it goes straight to closed, clears the failure count and abandons an
// in-flight probe. Listeners see the change with reason "manual reset".
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.probing = false
	b.mu.Unlock()

	if from != StateClosed {
		b.notify(&transition{from: from, to: StateClosed, reason: "manual reset"})
	}
}

// setState must hold b.mu
func (b *Breaker) setState(to State, reason string) *transition {
	from := b.state
	if from == to || !canTransition(from, to) {
		return nil
	}
	b.state = to
	return &transition{from: from, to: to, reason: reason}
}

func (b *Breaker) notify(tr *transition) {
	if tr == nil || b.hooks.onChange == nil {
		return
	}
	b.hooks.onChange(b.resource, tr.from, tr.to, tr.reason)
}
