/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

package collector_test

import (
	"context"
	"errors"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"

	"github.com/C3lEst1512/teamwater-data/internal/collector"
	"github.com/C3lEst1512/teamwater-data/internal/ledger"
	"github.com/C3lEst1512/teamwater-data/internal/teamwater"
)

// fakeAPI scripts the two endpoint responses.
type fakeAPI struct {
	donations    []teamwater.Donation
	donationsErr error
	total        teamwater.Total
	totalErr     error
}

func (f *fakeAPI) Donations(context.Context) ([]teamwater.Donation, error) {
	return f.donations, f.donationsErr
}

func (f *fakeAPI) TotalRaised(context.Context) (teamwater.Total, error) {
	return f.total, f.totalErr
}

func donation(id string, amount float64, completedAt string) teamwater.Donation {
	return teamwater.Donation{
		ID:          teamwater.ID(id),
		Amount:      teamwater.Amount(amount),
		CompletedAt: completedAt,
	}
}

func TestCollectRecordsEverything(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	api := &fakeAPI{
		donations: []teamwater.Donation{
			donation("a", 25, "2025-08-12T10:00:00Z"),
			donation("b", 5, "2025-08-12T11:00:00Z"),
		},
		total: teamwater.Total{Raised: 12345},
	}
	store := ledger.NewStore(memfs.New())

	res, err := collector.New(api).Collect(ctx, store)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(res.New) != 2 || res.Tracked != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !res.TotalOK || res.Total != 12345 {
		t.Fatalf("expected total recorded, got %+v", res)
	}
	if !res.Changed() {
		t.Fatal("expected pass to report changes")
	}
	if got := store.Snapshots(ctx); len(got) != 1 || got[0].Amount != 12345 {
		t.Fatalf("unexpected snapshots: %+v", got)
	}
}

func TestCollectSecondPassQuiet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	api := &fakeAPI{
		donations: []teamwater.Donation{donation("a", 25, "2025-08-12T10:00:00Z")},
		total:     teamwater.Total{Raised: 100},
	}
	store := ledger.NewStore(memfs.New())
	c := collector.New(api)

	if _, err := c.Collect(ctx, store); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	res, err := c.Collect(ctx, store)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if res.Changed() {
		t.Fatalf("expected quiet second pass, got %+v", res)
	}
	if len(res.New) != 0 || res.Tracked != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCollectDonationsFailureFailsPass(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	api := &fakeAPI{
		donationsErr: errors.New("api down"),
		total:        teamwater.Total{Raised: 100},
	}
	store := ledger.NewStore(memfs.New())

	if _, err := collector.New(api).Collect(ctx, store); err == nil {
		t.Fatal("expected pass failure when donations poll fails")
	}
	if got := store.Donations(ctx); got != nil {
		t.Fatalf("expected nothing written, got %d records", len(got))
	}
}

func TestCollectTotalFailureTolerated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	api := &fakeAPI{
		donations: []teamwater.Donation{donation("a", 25, "2025-08-12T10:00:00Z")},
		totalErr:  errors.New("total endpoint flaking"),
	}
	store := ledger.NewStore(memfs.New())

	res, err := collector.New(api).Collect(ctx, store)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if res.TotalOK {
		t.Fatal("expected TotalOK=false")
	}
	if res.TotalChanged {
		t.Fatal("expected no snapshot on failed total poll")
	}
	if len(res.New) != 1 {
		t.Fatalf("expected donation still recorded, got %+v", res)
	}
	if got := store.Snapshots(ctx); got != nil {
		t.Fatalf("expected no snapshots, got %+v", got)
	}
}
