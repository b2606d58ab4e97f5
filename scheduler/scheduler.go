// Package scheduler runs named periodic jobs (cache and connection sweeps,
// adapter refresh cadences) on a gocron scheduler.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/KOMKZ/opsfeed/logger"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Job periodic work; ctx is cancelled on Shutdown.
type Job func(ctx context.Context) error

// Scheduler named-job wrapper around gocron.
type Scheduler struct {
	cfg    Config
	clock  clockwork.Clock
	logger *logger.CtxZapLogger
	s      gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    map[string]gocron.Job
	started bool
	stopped bool
}

// Option scheduler option
type Option func(*Scheduler)

// WithClock time source for job timing
func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLogger(l *logger.CtxZapLogger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a stopped scheduler.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		logger: logger.GetLogger("scheduler"),
		jobs:   make(map[string]gocron.Job),
	}
	for _, opt := range opts {
		opt(s)
	}

	gs, err := gocron.NewScheduler(
		gocron.WithClock(s.clock),
		gocron.WithLogger(gocronLogger{s.logger.GetZapLogger().Sugar()}),
		gocron.WithStopTimeout(cfg.ShutdownTimeout),
		gocron.WithGlobalJobOptions(gocron.WithSingletonMode(gocron.LimitModeReschedule)),
	)
	if err != nil {
		return nil, ErrCreate.Wrap(err)
	}
	s.s = gs
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Every runs fn every interval, replacing a job already registered under
// name. Runs of one job never overlap; a run still in progress when the next
// is due skips that tick.
func (s *Scheduler) Every(name string, interval time.Duration, fn Job) error {
	if interval <= 0 {
		return ErrInvalidInterval.WithMsgf("job %q: interval must be positive, got %s", name, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if old, ok := s.jobs[name]; ok {
		if err := s.s.RemoveJob(old.ID()); err != nil {
			return ErrRegister.Wrap(err)
		}
		delete(s.jobs, name)
	}

	job, err := s.s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.run, name, fn),
		gocron.WithName(name),
	)
	if err != nil {
		return ErrRegister.WithData("job", name).Wrap(err)
	}
	s.jobs[name] = job
	s.logger.Debug("⏰ [Scheduler] job registered", zap.String("job", name), zap.Duration("interval", interval))
	return nil
}

func (s *Scheduler) run(name string, fn Job) {
	if s.ctx.Err() != nil {
		return
	}
	start := s.clock.Now()
	if err := fn(s.ctx); err != nil {
		s.logger.Warn("⚠️ [Scheduler] job failed", zap.String("job", name), zap.Error(err))
		return
	}
	s.logger.Debug("[Scheduler] job done", zap.String("job", name), zap.Duration("took", s.clock.Since(start)))
}

// Remove unregisters name; unknown names are ignored.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[name]
	if !ok {
		return nil
	}
	delete(s.jobs, name)
	if err := s.s.RemoveJob(job.ID()); err != nil {
		return ErrRegister.WithData("job", name).Wrap(err)
	}
	return nil
}

// Jobs registered job names, sorted
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextRun next scheduled run of name
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next, err := job.NextRun()
	if err != nil {
		return time.Time{}, false
	}
	return next, true
}

// Start begins running jobs; idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.s.Start()
	s.logger.Info("✅ [Scheduler] started", zap.Int("jobs", len(s.jobs)))
}

// Shutdown cancels job contexts and waits up to ShutdownTimeout for running
// jobs.
func (s *Scheduler) Shutdown() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	if err := s.s.Shutdown(); err != nil {
		s.logger.Warn("⚠️ [Scheduler] shutdown timed out", zap.Duration("timeout", s.cfg.ShutdownTimeout), zap.Error(err))
		return ErrShutdown.Wrap(err)
	}
	s.logger.Debug("✅ [Scheduler] stopped")
	return nil
}

// gocronLogger routes gocron's own logs through zap.
type gocronLogger struct {
	l *zap.SugaredLogger
}

func (g gocronLogger) Debug(msg string, args ...any) { g.l.Debugw(msg, args...) }
func (g gocronLogger) Info(msg string, args ...any)  { g.l.Infow(msg, args...) }
func (g gocronLogger) Warn(msg string, args ...any)  { g.l.Warnw(msg, args...) }
func (g gocronLogger) Error(msg string, args ...any) { g.l.Errorw(msg, args...) }
