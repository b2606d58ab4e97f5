// Package health aggregates component health checks into one report.
package health

import (
	"errors"
	"time"

	"github.com/KOMKZ/opsfeed/component"
)

// Status health status
type Status string

const (
	StatusHealthy Status = "healthy"
	// StatusDegraded serving, with some endpoints or backends unavailable
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Checker alias of component.HealthChecker
type Checker = component.HealthChecker

// CheckResult result of one check item
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Response aggregated report
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Checks    map[string]CheckResult `json:"checks"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

func (r *Response) IsDegraded() bool {
	return r.Status == StatusDegraded
}

type degradedError struct {
	err error
}

func (e *degradedError) Error() string { return e.err.Error() }
func (e *degradedError) Unwrap() error { return e.err }

// Degraded marks a check error as degraded rather than unhealthy.
func Degraded(err error) error {
	if err == nil {
		return nil
	}
	return &degradedError{err: err}
}

// IsDegraded reports whether err was produced by Degraded.
func IsDegraded(err error) bool {
	var d *degradedError
	return errors.As(err, &d)
}
