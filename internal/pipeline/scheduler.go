package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Mode selects how the scheduler drives cycles.
type Mode int

const (
	// ModeOnce runs exactly one cycle and returns.
	ModeOnce Mode = iota
	// ModeLoop repeats cycles with a fixed sleep until cancelled.
	ModeLoop
)

// ErrConflictingModes is reported when both one-shot and continuous modes
// are requested at the same time.
var ErrConflictingModes = errors.New("choose either one-shot or continuous mode, not both")

// ResolveMode maps the once/loop selection to a Mode. Selecting neither
// defaults to one-shot; selecting both is a configuration error rejected
// before any cycle runs.
func ResolveMode(once, loop bool) (Mode, error) {
	if once && loop {
		return ModeOnce, ErrConflictingModes
	}
	if loop {
		return ModeLoop, nil
	}
	return ModeOnce, nil
}

// Runner is what the scheduler drives; satisfied by *Pipeline.
type Runner interface {
	Cycle(ctx context.Context) error
}

// Scheduler drives the pipeline either once or on a fixed interval.
// Cancellation is cooperative and observed between cycles, never mid-cycle:
// the marker-commit barrier makes an interrupted cycle safe to rerun.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

type SchedulerParams struct {
	Runner   Runner
	Interval time.Duration
	Logger   *zap.Logger
	// Sleep overrides the inter-cycle wait; tests inject a no-op. Nil means
	// a real timer that also wakes on context cancellation.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewScheduler constructs a Scheduler.
func NewScheduler(p SchedulerParams) *Scheduler {
	s := &Scheduler{
		runner:   p.Runner,
		interval: p.Interval,
		logger:   p.Logger,
		sleep:    p.Sleep,
	}
	if s.sleep == nil {
		s.sleep = sleepCtx
	}
	return s
}

// Run executes in the given mode until done (one-shot) or cancelled
// (continuous).
func (s *Scheduler) Run(ctx context.Context, mode Mode) error {
	if mode == ModeOnce {
		return s.runner.Cycle(ctx)
	}

	for {
		if err := s.runner.Cycle(ctx); err != nil {
			// A failed cycle does not stop continuous mode; the next cycle
			// retries everything still unmarked.
			s.logger.Error("cycle failed", zap.Error(err))
		}
		if err := s.sleep(ctx, s.interval); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
