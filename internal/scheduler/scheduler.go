// Package scheduler runs the periodic fetch cycle in the background.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval matches the production cadence.
const DefaultInterval = 30 * time.Minute

// Cycle performs one unit of scheduled work.
type Cycle func(ctx context.Context) error

// Config controls loop timing.
type Config struct {
	Warmup   time.Duration
	Interval time.Duration
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithObserver registers a hook that receives every cycle's result,
// including nil on success.
func WithObserver(fn func(error)) Option {
	return func(s *Scheduler) {
		s.observe = fn
	}
}

// Scheduler waits out a warm-up period and then calls the cycle at a fixed
// interval until stopped. Cycle errors are logged and discarded.
type Scheduler struct {
	cycle   Cycle
	cfg     Config
	logger  *zap.Logger
	observe func(error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Scheduler. A zero Warmup runs the first cycle right away;
// a non-positive Interval falls back to DefaultInterval.
func New(cycle Cycle, cfg Config, logger *zap.Logger, opts ...Option) *Scheduler {
	if cfg.Warmup < 0 {
		cfg.Warmup = 0
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{cycle: cycle, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the loop. Calling Start while a loop is running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.run(loopCtx, done)
	s.logger.Info("scheduler started",
		zap.Duration("warmup", s.cfg.Warmup),
		zap.Duration("interval", s.cfg.Interval),
	)
}

// Stop cancels the loop and waits for it to exit. It is safe to call when the
// loop is not running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("scheduler stopped")
}

// Running reports whether a loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	if !sleep(ctx, s.cfg.Warmup) {
		return
	}
	for {
		s.runCycle(ctx)
		if !sleep(ctx, s.cfg.Interval) {
			return
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	err := s.cycle(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.logger.Warn("scheduled fetch failed", zap.Error(err))
	}
	if s.observe != nil {
		s.observe(err)
	}
}

// sleep waits for d or until ctx is done, reporting whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
