/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

package monitor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"

	"github.com/C3lEst1512/teamwater-data/internal/ledger"
	"github.com/C3lEst1512/teamwater-data/internal/monitor"
	"github.com/C3lEst1512/teamwater-data/internal/teamwater"
)

// fakeFeed is a mutable donation feed safe to update while the
// monitor polls it.
type fakeFeed struct {
	mu        sync.Mutex
	donations []teamwater.Donation
	total     teamwater.Total
	err       error
	calls     int
}

func (f *fakeFeed) Donations(context.Context) ([]teamwater.Donation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]teamwater.Donation(nil), f.donations...), nil
}

func (f *fakeFeed) TotalRaised(context.Context) (teamwater.Total, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total, nil
}

func (f *fakeFeed) add(d teamwater.Donation, total float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.donations = append(f.donations, d)
	f.total = teamwater.Total{Raised: teamwater.Amount(total)}
}

func (f *fakeFeed) polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRunRecordsDonationsAsTheyArrive(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := memfs.New()
	store := ledger.NewStore(fs)
	feed := &fakeFeed{}
	feed.add(teamwater.Donation{ID: "d1", Amount: 25, DonorName: "Jo", CompletedAt: "2025-08-12T18:00:00Z"}, 25)

	m := monitor.New(feed, store,
		monitor.WithPollInterval(5*time.Millisecond),
		monitor.WithStatusInterval(time.Hour))
	statsCh := make(chan monitor.Stats, 1)
	go func() { statsCh <- m.Run(ctx) }()

	waitFor(t, func() bool { return feed.polls() >= 2 })
	feed.add(teamwater.Donation{ID: "d2", Amount: 50, DonorName: "Sam", CompletedAt: "2025-08-12T18:01:00Z"}, 75)
	base := feed.polls()
	waitFor(t, func() bool { return feed.polls() >= base+2 })
	cancel()
	stats := <-statsCh

	if stats.NewDonations != 2 || stats.Tracked != 2 {
		t.Errorf("NewDonations = %d, Tracked = %d, want 2 and 2", stats.NewDonations, stats.Tracked)
	}
	if stats.TotalRaised != 75 {
		t.Errorf("TotalRaised = %v, want 75", stats.TotalRaised)
	}
	if stats.Errors != 0 {
		t.Errorf("Errors = %d, want 0", stats.Errors)
	}
	if stats.Polls < 4 {
		t.Errorf("Polls = %d, want at least 4", stats.Polls)
	}

	records := store.Donations(ctx)
	if len(records) != 2 {
		t.Fatalf("ledger has %d donations, want 2", len(records))
	}
	if records[0].ID != "d2" || records[1].ID != "d1" {
		t.Errorf("ledger order = %s, %s, want newest first", records[0].ID, records[1].ID)
	}
	snapshots := store.Snapshots(ctx)
	if len(snapshots) != 2 || snapshots[0].Amount != 25 || snapshots[1].Amount != 75 {
		t.Errorf("snapshots = %+v, want amounts 25 then 75", snapshots)
	}
}

func TestRunIgnoresKnownDonations(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := memfs.New()
	store := ledger.NewStore(fs)
	if _, err := store.AppendDonations(ctx, []teamwater.Donation{
		{ID: "d1", Amount: 25, CompletedAt: "2025-08-12T18:00:00Z"},
	}); err != nil {
		t.Fatalf("seeding ledger: %v", err)
	}

	feed := &fakeFeed{}
	feed.add(teamwater.Donation{ID: "d1", Amount: 25, CompletedAt: "2025-08-12T18:00:00Z"}, 25)

	m := monitor.New(feed, store,
		monitor.WithPollInterval(2*time.Millisecond),
		monitor.WithStatusInterval(time.Hour))
	statsCh := make(chan monitor.Stats, 1)
	go func() { statsCh <- m.Run(ctx) }()

	waitFor(t, func() bool { return feed.polls() >= 3 })
	cancel()
	stats := <-statsCh

	if stats.NewDonations != 0 {
		t.Errorf("NewDonations = %d, want 0 for an already tracked feed", stats.NewDonations)
	}
	if stats.Tracked != 1 {
		t.Errorf("Tracked = %d, want 1", stats.Tracked)
	}
	if stats.TotalRaised != 0 {
		t.Errorf("TotalRaised = %v, want 0 when no donation landed", stats.TotalRaised)
	}
	if snapshots := store.Snapshots(ctx); len(snapshots) != 0 {
		t.Errorf("quiet session wrote %d snapshots", len(snapshots))
	}
}

func TestRunSurvivesErrorStreaks(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := &fakeFeed{err: errors.New("feed down")}
	m := monitor.New(feed, ledger.NewStore(memfs.New()),
		monitor.WithPollInterval(time.Millisecond),
		monitor.WithErrorPolicy(2, time.Millisecond))
	statsCh := make(chan monitor.Stats, 1)
	go func() { statsCh <- m.Run(ctx) }()

	waitFor(t, func() bool { return feed.polls() >= 5 })
	cancel()
	stats := <-statsCh

	if stats.Errors < 3 {
		t.Errorf("Errors = %d, want the loop to keep polling through failures", stats.Errors)
	}
	if stats.NewDonations != 0 {
		t.Errorf("NewDonations = %d, want 0", stats.NewDonations)
	}
}

func TestRunStopsWhenAlreadyCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	feed := &fakeFeed{}
	stats := monitor.New(feed, ledger.NewStore(memfs.New())).Run(ctx)
	if stats.Polls != 0 {
		t.Errorf("Polls = %d, want 0 on a canceled context", stats.Polls)
	}
}
