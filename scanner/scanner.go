// Package scanner runs the periodic BLE scan cycle: start a scanner, let it
// listen for a fixed window, stop it, and start it again.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultInterval is how long each scan cycle listens before restarting.
const DefaultInterval = 60 * time.Second

// DefaultMaxConsecutiveFailures ends the loop after this many failed cycles
// in a row.
const DefaultMaxConsecutiveFailures = 5

// Scanner is anything that can be started and stopped once per cycle.
type Scanner interface {
	Start(ctx context.Context) error
	Stop() error
}

// LoopOptions configures Run.
type LoopOptions struct {
	Interval time.Duration
	// MaxConsecutiveFailures is the number of failed cycles in a row after
	// which Run gives up. Zero retries forever.
	MaxConsecutiveFailures int
	Logger                 *logrus.Logger
}

// DefaultLoopOptions returns the one-minute restart cycle.
func DefaultLoopOptions() *LoopOptions {
	return &LoopOptions{
		Interval:               DefaultInterval,
		MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
	}
}

// Run restarts s every opts.Interval until ctx is cancelled. Each cycle calls
// Start once and Stop once; cycles never overlap. Cancellation returns nil.
// A cycle whose Start or Stop fails is logged and retried after the interval;
// Run only returns an error once MaxConsecutiveFailures cycles failed in a row.
func Run(ctx context.Context, s Scanner, opts *LoopOptions) error {
	if opts == nil {
		opts = DefaultLoopOptions()
	}
	if opts.Interval <= 0 {
		return fmt.Errorf("invalid scan interval %s", opts.Interval)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	failures := 0
	for cycle := 1; ; cycle++ {
		if ctx.Err() != nil {
			return nil
		}

		logger.Info("(re)starting scanner")

		started, err := runCycle(ctx, s, opts.Interval)
		if err == nil {
			failures = 0
			continue
		}
		if ctx.Err() != nil {
			if !errors.Is(err, context.Canceled) {
				logger.WithError(err).Warn("Scanner did not stop cleanly on shutdown")
			}
			return nil
		}

		failures++
		logger.WithFields(logrus.Fields{
			"cycle":    cycle,
			"failures": failures,
		}).WithError(err).Warn("Scan cycle failed")

		if opts.MaxConsecutiveFailures > 0 && failures >= opts.MaxConsecutiveFailures {
			return fmt.Errorf("scanner failed %d times in a row: %w", failures, err)
		}

		// A failed Stop already listened for a full interval.
		if !started && !sleep(ctx, opts.Interval) {
			return nil
		}
	}
}

// runCycle reports whether Start succeeded along with the first error.
func runCycle(ctx context.Context, s Scanner, interval time.Duration) (bool, error) {
	if err := s.Start(ctx); err != nil {
		return false, fmt.Errorf("start: %w", err)
	}

	sleep(ctx, interval)

	if err := s.Stop(); err != nil {
		return true, fmt.Errorf("stop: %w", err)
	}
	return true, nil
}

// sleep waits d or until ctx is done. It returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
