package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/KOMKZ/opsfeed/logger"
	"go.uber.org/zap"
)

// Aggregator runs registered checkers concurrently under one timeout.
type Aggregator struct {
	checkers []Checker
	timeout  time.Duration
	logger   *logger.CtxZapLogger
	mu       sync.RWMutex
	metadata map[string]interface{}
}

// NewAggregator timeout <= 0 means 5s
func NewAggregator(timeout time.Duration, log *logger.CtxZapLogger) *Aggregator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = logger.GetLogger("health")
	}
	return &Aggregator{
		timeout:  timeout,
		logger:   log,
		metadata: make(map[string]interface{}),
	}
}

// Register adds checker; a checker with the same name replaces it.
func (a *Aggregator) Register(checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, c := range a.checkers {
		if c.Name() == checker.Name() {
			a.checkers[i] = checker
			return
		}
	}
	a.checkers = append(a.checkers, checker)
}

// Names registered check names, sorted
func (a *Aggregator) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.checkers))
	for _, c := range a.checkers {
		names = append(names, c.Name())
	}
	sort.Strings(names)
	return names
}

func (a *Aggregator) SetMetadata(key string, value interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metadata[key] = value
}

// Check runs every checker and aggregates: any unhealthy item makes the
// report unhealthy, otherwise any degraded item makes it degraded.
func (a *Aggregator) Check(ctx context.Context) *Response {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.mu.RLock()
	checkers := make([]Checker, len(a.checkers))
	copy(checkers, a.checkers)
	metadata := make(map[string]interface{}, len(a.metadata))
	for k, v := range a.metadata {
		metadata[k] = v
	}
	a.mu.RUnlock()

	results := make(chan CheckResult, len(checkers))
	for _, checker := range checkers {
		go func(c Checker) {
			results <- a.checkOne(checkCtx, c)
		}(checker)
	}

	checks := make(map[string]CheckResult, len(checkers))
	for i := 0; i < len(checkers); i++ {
		result := <-results
		checks[result.Name] = result
	}

	resp := &Response{
		Status:    overallStatus(checks),
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Checks:    checks,
		Metadata:  metadata,
	}
	if resp.Status != StatusHealthy {
		a.logger.WarnCtx(ctx, "⚠️ [Health] check not healthy",
			zap.String("status", string(resp.Status)), zap.Duration("took", resp.Duration))
	}
	return resp
}

func (a *Aggregator) checkOne(ctx context.Context, checker Checker) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      checker.Name(),
		Timestamp: start,
	}

	err := checker.Check(ctx)
	result.Duration = time.Since(start)

	switch {
	case err == nil:
		result.Status = StatusHealthy
		result.Message = "OK"
	case IsDegraded(err):
		result.Status = StatusDegraded
		result.Error = err.Error()
		result.Message = "Degraded"
	default:
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Health check failed"
	}
	return result
}

func overallStatus(checks map[string]CheckResult) Status {
	status := StatusHealthy
	for _, result := range checks {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}
