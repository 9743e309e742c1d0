package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPanicsOnNonPositiveInterval(t *testing.T) {
	assert.Panics(t, func() { New(Options{}, zerolog.Nop()) })
}

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: time.Minute, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2024, 5, 10, 12, 0, 30, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 5, 10, 12, 1, 0, 0, time.UTC), s.nextTick(now))
	assert.Equal(t, time.Date(2024, 5, 10, 12, 1, 0, 0, time.UTC), s.nextTick(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)))
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: time.Minute}, zerolog.Nop())
	now := time.Date(2024, 5, 10, 12, 0, 30, 0, time.UTC)

	assert.Equal(t, now.Add(time.Minute), s.nextTick(now))
	assert.Equal(t, now, s.tickTime(now))
}

func TestRunImmediatelyAndRepeats(t *testing.T) {
	s := New(Options{Interval: 20 * time.Millisecond, RunImmediately: true}, zerolog.Nop())

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			if calls.Add(1) == 3 {
				cancel()
			}
			return errors.New("tick errors are logged, not fatal")
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestRunStopsDuringStartupDelay(t *testing.T) {
	s := New(Options{Interval: time.Hour, StartupDelay: time.Hour, RunImmediately: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.Run(ctx, func(context.Context, time.Time) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
