package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"cgm-alerts/internal/logging"
)

// TickFunc is invoked on every interval with the tick instant.
type TickFunc func(ctx context.Context, now time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval       time.Duration
	AlignToStart   bool
	StartupDelay   time.Duration
	RunImmediately bool
}

// Scheduler drives the periodic polling cycle. Ticks run serially on the
// calling goroutine, so a slow cycle delays the next one instead of overlapping.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logging.Component(logger, "scheduler")}
}

// Run blocks, invoking the tick function at each interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.opts.RunImmediately {
		s.execute(ctx, tick, time.Now().UTC())
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			s.logger.Warn().Dur("behind", -delay).Msg("tick overran interval, skipping missed ticks")
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		s.execute(ctx, tick, s.tickTime(next))
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, at time.Time) {
	s.logger.Debug().Time("tick", at).Msg("executing scheduled tick")
	if err := tick(ctx, at); err != nil {
		s.logger.Error().Err(err).Time("tick", at).Msg("tick execution failed")
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) tickTime(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
