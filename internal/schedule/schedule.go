/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package schedule drives a function on a fixed interval, optionally
// aligned to wall-clock boundaries so an hourly job fires at the top
// of the hour.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/C3lEst1512/teamwater-data/internal/metrics"
)

// Scheduler repeatedly invokes a job. The zero value is not usable,
// Interval must be set.
type Scheduler struct {
	// Interval is the spacing between runs.
	Interval time.Duration

	// AlignToInterval snaps runs to wall-clock boundaries: an hourly
	// interval fires at minute zero instead of an hour after startup.
	AlignToInterval bool

	// RunOnStart fires the job immediately instead of waiting for the
	// first boundary.
	RunOnStart bool

	// Timeout bounds each invocation. Zero means no per-run limit.
	Timeout time.Duration

	// MaxConsecutiveFailures aborts the loop once that many runs in a
	// row have failed. Zero means keep going forever.
	MaxConsecutiveFailures int
}

// Run invokes fn until ctx is canceled or the failure limit is hit.
// Cancellation is a clean shutdown and returns nil.
func (s *Scheduler) Run(ctx context.Context, fn func(context.Context) error) error {
	if s.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", s.Interval)
	}
	log := clog.FromContext(ctx)

	streak := 0
	invoke := func() error {
		runCtx := ctx
		if s.Timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, s.Timeout)
			defer cancel()
		}
		return fn(runCtx)
	}
	record := func(err error) error {
		if err == nil {
			if streak > 0 {
				log.Infof("Recovered after %d failed runs", streak)
			}
			streak = 0
			metrics.SetConsecutiveFailures(0)
			return nil
		}
		streak++
		metrics.SetConsecutiveFailures(streak)
		log.With("consecutive_failures", streak).Errorf("Run failed: %v", err)
		if s.MaxConsecutiveFailures > 0 && streak >= s.MaxConsecutiveFailures {
			return fmt.Errorf("aborting after %d consecutive failed runs: %w", streak, err)
		}
		return nil
	}

	if s.RunOnStart {
		if err := record(invoke()); err != nil {
			return err
		}
	}

	for {
		next := s.next(time.Now())
		wait := time.Until(next)
		log.Debugf("Next run at %s (in %s)", next.Format(time.RFC3339), wait.Round(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Infof("Scheduler stopping: %v", ctx.Err())
			return nil
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return nil
		}

		if err := record(invoke()); err != nil {
			return err
		}
	}
}

// next picks the run after now. Aligned scheduling lands on the next
// interval boundary and is always strictly in the future, so a run
// finishing past a boundary skips to the following one instead of
// bursting.
func (s *Scheduler) next(now time.Time) time.Time {
	if !s.AlignToInterval {
		return now.Add(s.Interval)
	}
	return now.Truncate(s.Interval).Add(s.Interval)
}
