/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package updater runs complete update cycles: sync the data
// repository, collect fresh API data into the ledgers and publish
// whatever changed. One RunOnce call is one cycle.
package updater

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/C3lEst1512/teamwater-data/internal/collector"
	"github.com/C3lEst1512/teamwater-data/internal/gitrepo"
	"github.com/C3lEst1512/teamwater-data/internal/ledger"
	"github.com/C3lEst1512/teamwater-data/internal/metrics"
	"github.com/C3lEst1512/teamwater-data/internal/publish"
)

const (
	commitMessagePrefix = "Auto-update donations: "
	commitTimeLayout    = "2006-01-02 15:04:05"
)

// CycleResult summarizes one update cycle.
type CycleResult struct {
	// NewDonations is how many donations this cycle recorded.
	NewDonations int

	// Tracked is the ledger size after the cycle.
	Tracked int

	// Total is the campaign total reported by the API, zero when the
	// total endpoint was unavailable.
	Total float64

	// Published reports whether anything shipped to the repository.
	Published bool

	// Revision is the resulting head of the published branch.
	Revision string

	// Duration covers the whole cycle including any retry.
	Duration time.Duration
}

// Updater wires a collector to a publisher.
type Updater struct {
	publisher publish.Publisher
	collector *collector.Collector
	clock     func() time.Time
	schemas   bool
}

// Option configures an Updater.
type Option func(*Updater)

// WithClock overrides the commit timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(u *Updater) {
		u.clock = clock
	}
}

// WithSchemaExport makes every cycle refresh the JSON Schemas
// alongside the ledgers.
func WithSchemaExport(enabled bool) Option {
	return func(u *Updater) {
		u.schemas = enabled
	}
}

// New builds an Updater publishing collections from c through p.
func New(p publish.Publisher, c *collector.Collector, opts ...Option) *Updater {
	u := &Updater{
		publisher: p,
		collector: c,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// RunOnce executes a single update cycle. A publish rejected because
// the remote moved underneath us triggers one full re-sync and
// re-publish before the error propagates.
func (u *Updater) RunOnce(ctx context.Context) (CycleResult, error) {
	tr := otel.Tracer("teamwater.updater",
		oteltrace.WithInstrumentationVersion("1.0.0"))
	ctx, span := tr.Start(ctx, "updater.cycle")
	start := time.Now()
	log := clog.FromContext(ctx)

	res, err := u.runCycle(ctx, tr)
	if errors.Is(err, gitrepo.ErrNotFastForward) {
		log.Warnf("Publish rejected, the remote branch moved. Re-syncing and retrying once: %v", err)
		span.SetAttributes(attribute.Bool("cycle.retried", true))
		res, err = u.runCycle(ctx, tr)
	}
	res.Duration = time.Since(start)

	outcome := metrics.OutcomeError
	switch {
	case err != nil:
	case res.Published:
		outcome = metrics.OutcomePublished
	default:
		outcome = metrics.OutcomeUnchanged
	}
	metrics.RecordCycle(outcome, res.Duration)

	if err != nil {
		span.SetAttributes(attribute.String("cycle.error_class", gitrepo.Classify(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return res, err
	}
	span.SetAttributes(
		attribute.Int("cycle.new_donations", res.NewDonations),
		attribute.Int("cycle.tracked", res.Tracked),
		attribute.Bool("cycle.published", res.Published),
		attribute.String("cycle.revision", res.Revision),
	)
	span.SetStatus(codes.Ok, "")
	span.End()

	if res.Published {
		log.With("revision", res.Revision).
			With("new_donations", res.NewDonations).
			With("tracked", res.Tracked).
			Infof("Published update cycle in %s", res.Duration.Round(time.Millisecond))
	} else {
		log.Infof("Nothing to publish, ledgers already current (%d donations tracked)", res.Tracked)
	}
	return res, nil
}

func (u *Updater) runCycle(ctx context.Context, tr oteltrace.Tracer) (CycleResult, error) {
	syncCtx, syncSpan := tr.Start(ctx, "updater.sync")
	fs, err := u.publisher.Prepare(syncCtx)
	endSpan(syncSpan, err)
	if err != nil {
		return CycleResult{}, fmt.Errorf("preparing data repository: %w", err)
	}

	store := ledger.NewStore(fs, ledger.WithClock(u.clock))
	collectCtx, collectSpan := tr.Start(ctx, "updater.collect")
	col, err := u.collector.Collect(collectCtx, store)
	endSpan(collectSpan, err)
	if err != nil {
		return CycleResult{}, fmt.Errorf("collecting: %w", err)
	}
	if u.schemas {
		if err := store.WriteSchemas(); err != nil {
			return CycleResult{}, fmt.Errorf("writing schemas: %w", err)
		}
	}

	message := commitMessagePrefix + u.clock().UTC().Format(commitTimeLayout)
	publishCtx, publishSpan := tr.Start(ctx, "updater.publish",
		oteltrace.WithAttributes(attribute.String("publish.message", message)))
	pres, err := u.publisher.Publish(publishCtx, message)
	endSpan(publishSpan, err)
	if err != nil {
		return CycleResult{}, err
	}

	return CycleResult{
		NewDonations: len(col.New),
		Tracked:      col.Tracked,
		Total:        col.Total,
		Published:    pres.Published,
		Revision:     pres.Revision,
	}, nil
}

// endSpan closes a step span with the conventional status for err.
func endSpan(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
