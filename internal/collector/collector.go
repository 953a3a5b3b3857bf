/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package collector runs one collection pass: poll the campaign API
// and fold the results into the ledger files.
package collector

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"

	"github.com/C3lEst1512/teamwater-data/internal/ledger"
	"github.com/C3lEst1512/teamwater-data/internal/metrics"
	"github.com/C3lEst1512/teamwater-data/internal/teamwater"
)

// API is the slice of the campaign client a collection pass needs.
type API interface {
	Donations(ctx context.Context) ([]teamwater.Donation, error)
	TotalRaised(ctx context.Context) (teamwater.Total, error)
}

// Result describes one collection pass.
type Result struct {
	// New holds the donations recorded for the first time this pass.
	New []ledger.Record
	// Tracked is the ledger size after the pass.
	Tracked int
	// Total is the campaign total, zero when the total poll failed.
	Total float64
	// TotalOK reports whether the total poll succeeded.
	TotalOK bool
	// DonationsChanged and TotalChanged report which files were
	// rewritten.
	DonationsChanged bool
	TotalChanged     bool
}

// Changed reports whether the pass modified any ledger file.
func (r Result) Changed() bool {
	return r.DonationsChanged || r.TotalChanged
}

// Collector polls the campaign API into a ledger store.
type Collector struct {
	api API
}

// New creates a Collector over the given API client.
func New(api API) *Collector {
	return &Collector{api: api}
}

// Collect performs one pass. Both endpoints are polled concurrently.
// A failed donations poll fails the pass; a failed total poll is
// tolerated with a warning so donation data is never dropped on a
// partial outage, and the next pass catches the total up.
func (c *Collector) Collect(ctx context.Context, store *ledger.Store) (Result, error) {
	log := clog.FromContext(ctx)

	var (
		donations []teamwater.Donation
		total     teamwater.Total
		totalOK   bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := c.api.Donations(gctx)
		if err != nil {
			return fmt.Errorf("polling donations: %w", err)
		}
		donations = d
		return nil
	})
	g.Go(func() error {
		t, err := c.api.TotalRaised(gctx)
		if err != nil {
			clog.WarnContextf(gctx, "Total raised poll failed, skipping snapshot: %v", err)
			return nil
		}
		total, totalOK = t, true
		return nil
	})
	if err := g.Wait(); err != nil {
		metrics.RecordCollection(metrics.OutcomeError, 0, 0, 0)
		return Result{}, err
	}

	appended, err := store.AppendDonations(ctx, donations)
	if err != nil {
		metrics.RecordCollection(metrics.OutcomeError, 0, 0, 0)
		return Result{}, fmt.Errorf("recording donations: %w", err)
	}
	for _, r := range appended.New {
		log.With("id", r.ID).
			With("amount", r.Amount.Float64()).
			With("donor", r.DonorName).
			Infof("New donation")
	}

	res := Result{
		New:              appended.New,
		Tracked:          appended.Tracked,
		TotalOK:          totalOK,
		DonationsChanged: appended.Changed,
	}
	if totalOK {
		res.Total = total.Raised.Float64()
		changed, err := store.AppendSnapshot(ctx, res.Total)
		if err != nil {
			metrics.RecordCollection(metrics.OutcomeError, 0, 0, 0)
			return Result{}, fmt.Errorf("recording total: %w", err)
		}
		res.TotalChanged = changed
	}

	metrics.RecordCollection(metrics.OutcomeSuccess, appended.Added, appended.Tracked, res.Total)
	log.With("new", appended.Added).
		With("tracked", appended.Tracked).
		With("total_raised", res.Total).
		Debugf("Collection pass complete")
	return res, nil
}
