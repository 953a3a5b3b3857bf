/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package monitor watches the donation feed at high frequency and
// records what it sees into a local ledger. Unlike the hourly update
// cycle it never publishes anywhere, it exists to catch donations the
// moment they land.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/C3lEst1512/teamwater-data/internal/ledger"
	"github.com/C3lEst1512/teamwater-data/internal/teamwater"
)

const (
	defaultPollInterval   = time.Second
	defaultStatusInterval = 10 * time.Second
	defaultMaxErrors      = 5
	defaultErrorPause     = 5 * time.Second
)

// API is the slice of the TeamWater client the monitor uses.
type API interface {
	Donations(ctx context.Context) ([]teamwater.Donation, error)
	TotalRaised(ctx context.Context) (teamwater.Total, error)
}

// Stats summarizes a monitoring session.
type Stats struct {
	// Polls is how many times the feed was checked.
	Polls int

	// Errors is how many polls failed.
	Errors int

	// NewDonations is how many donations this session recorded.
	NewDonations int

	// Tracked is the ledger size at the end of the session.
	Tracked int

	// TotalRaised is the last campaign total observed, zero when no
	// donation arrived during the session.
	TotalRaised float64
}

// Monitor polls the feed on a fixed interval. Not safe for concurrent
// use.
type Monitor struct {
	api         API
	store       *ledger.Store
	interval    time.Duration
	statusEvery time.Duration
	maxErrors   int
	errorPause  time.Duration
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithPollInterval overrides the one second default.
func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithStatusInterval controls how often a quiet monitor reports that
// it is still alive.
func WithStatusInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.statusEvery = d
		}
	}
}

// WithErrorPolicy sets how many consecutive poll failures trigger a
// pause, and how long that pause lasts.
func WithErrorPolicy(maxConsecutive int, pause time.Duration) Option {
	return func(m *Monitor) {
		if maxConsecutive > 0 {
			m.maxErrors = maxConsecutive
		}
		if pause > 0 {
			m.errorPause = pause
		}
	}
}

// New builds a Monitor recording api observations into store.
func New(api API, store *ledger.Store, opts ...Option) *Monitor {
	m := &Monitor{
		api:         api,
		store:       store,
		interval:    defaultPollInterval,
		statusEvery: defaultStatusInterval,
		maxErrors:   defaultMaxErrors,
		errorPause:  defaultErrorPause,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run polls until ctx is canceled and returns the session stats. Poll
// failures are never fatal: a streak of them pauses the loop briefly
// and polling resumes.
func (m *Monitor) Run(ctx context.Context) Stats {
	log := clog.FromContext(ctx)

	stats := Stats{Tracked: len(m.store.Donations(ctx))}
	log.With("interval", m.interval.String()).
		Infof("Watching the donation feed (%d donations already tracked)", stats.Tracked)

	streak := 0
	var lastStatus time.Time
	for ctx.Err() == nil {
		start := time.Now()
		err := m.poll(ctx, &stats, &lastStatus)
		if ctx.Err() != nil {
			break
		}
		stats.Polls++
		if err != nil {
			streak++
			stats.Errors++
			log.With("consecutive_errors", streak).Errorf("Poll failed: %v", err)
			if streak >= m.maxErrors {
				log.Warnf("%d consecutive poll failures, pausing for %s", streak, m.errorPause)
				if !sleep(ctx, m.errorPause) {
					break
				}
				streak = 0
			}
		} else {
			streak = 0
		}

		elapsed := time.Since(start)
		wait := m.interval - elapsed
		if wait <= 0 {
			log.Warnf("Poll took %s, longer than the %s interval", elapsed.Round(time.Millisecond), m.interval)
			continue
		}
		if !sleep(ctx, wait) {
			break
		}
	}

	log.With("polls", stats.Polls).
		With("errors", stats.Errors).
		Infof("Monitor stopped. %d donations tracked, %d new this session", stats.Tracked, stats.NewDonations)
	return stats
}

func (m *Monitor) poll(ctx context.Context, stats *Stats, lastStatus *time.Time) error {
	log := clog.FromContext(ctx)

	donations, err := m.api.Donations(ctx)
	if err != nil {
		return fmt.Errorf("fetching donations: %w", err)
	}
	res, err := m.store.AppendDonations(ctx, donations)
	if err != nil {
		return err
	}
	stats.Tracked = res.Tracked
	stats.NewDonations += res.Added

	for _, rec := range res.New {
		entry := log.With("id", string(rec.ID)).With("donor", rec.DonorName)
		entry.Infof("New donation: $%.2f at %s", rec.Amount.Float64(), rec.CompletedAt)
		if rec.DonorComment != "" {
			entry.Infof("Comment: %q", truncate(rec.DonorComment, 100))
		}
	}

	if res.Added == 0 {
		if lastStatus.IsZero() || time.Since(*lastStatus) >= m.statusEvery {
			log.Infof("Monitoring... tracking %d donations", res.Tracked)
			*lastStatus = time.Now()
		}
		return nil
	}

	// The total only moves when donations land, so it is worth a
	// request exactly then. A failure here loses one snapshot at
	// worst, the donations are already recorded.
	total, err := m.api.TotalRaised(ctx)
	if err != nil {
		log.Warnf("Donations recorded but the total endpoint failed: %v", err)
		return nil
	}
	stats.TotalRaised = total.Raised.Float64()
	changed, err := m.store.AppendSnapshot(ctx, stats.TotalRaised)
	if err != nil {
		return err
	}
	if changed {
		log.Infof("Total raised now $%.2f", stats.TotalRaised)
	}
	return nil
}

// truncate shortens s to at most limit runes for log lines.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// sleep waits for d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
