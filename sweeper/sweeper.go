// Package sweeper runs the engine's lock maturity scan on a cron schedule.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule scans once a minute.
const DefaultSchedule = "@every 1m"

// ErrInvalidSchedule is returned for a schedule cron cannot parse.
var ErrInvalidSchedule = errors.New("escrow: invalid sweep schedule")

// Target is the part of the engine the sweeper drives.
type Target interface {
	SweepMatured(ctx context.Context) (int, error)
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

// WithTimeout bounds a single scan. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Sweeper) { s.timeout = d }
}

// Sweeper periodically marks matured locks.
type Sweeper struct {
	target   Target
	schedule string
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
	matured int
	runs    int
}

// New validates schedule and returns a stopped sweeper. An empty schedule
// means DefaultSchedule.
func New(target Target, schedule string, opts ...Option) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, schedule, err)
	}
	s := &Sweeper{
		target:   target,
		schedule: schedule,
		timeout:  30 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Schedule returns the cron expression in use.
func (s *Sweeper) Schedule() string { return s.schedule }

// Start begins scanning in the background. Scans that overlap a still
// running one are skipped.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	runCtx, cancel := context.WithCancel(ctx)
	if _, err := c.AddFunc(s.schedule, func() { s.tick(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, s.schedule, err)
	}
	c.Start()

	s.cron, s.cancel, s.running = c, cancel, true
	s.logger.Info("escrow sweeper started", "schedule", s.schedule)
	return nil
}

// Stop halts the schedule and waits for a running scan to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c, cancel := s.cron, s.cancel
	s.running = false
	s.mu.Unlock()

	<-c.Stop().Done()
	cancel()
	s.logger.Info("escrow sweeper stopped")
}

// RunOnce performs a single scan immediately.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	n, err := s.target.SweepMatured(ctx)

	s.mu.Lock()
	s.runs++
	s.matured += n
	s.mu.Unlock()
	return n, err
}

// Stats returns the number of scans run and locks marked so far.
func (s *Sweeper) Stats() (runs, matured int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.matured
}

func (s *Sweeper) tick(ctx context.Context) {
	n, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Warn("escrow sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Debug("escrow sweep marked matured locks", "matured", n)
	}
}
