/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics holds the Prometheus instrumentation for the
// donation pipeline. Collectors are registered on the default
// registry so the daemon can expose them with a stock promhttp
// handler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels one pass of a collection or update cycle.
type Outcome string

const (
	// OutcomePublished means the cycle found changes and pushed them.
	OutcomePublished Outcome = "published"
	// OutcomeUnchanged means the cycle ran clean with nothing to push.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeError means the cycle failed.
	OutcomeError Outcome = "error"
	// OutcomeSuccess labels a successful collection pass.
	OutcomeSuccess Outcome = "success"
)

var (
	collectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamwater_collections_total",
			Help: "Total number of API collection passes",
		},
		[]string{"outcome"},
	)

	donationsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "teamwater_donations_recorded_total",
			Help: "Total number of newly recorded donations",
		},
	)

	trackedDonations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "teamwater_tracked_donations",
			Help: "Number of donations in the published ledger",
		},
	)

	totalRaised = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "teamwater_total_raised",
			Help: "Most recently observed campaign total",
		},
	)

	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamwater_update_cycles_total",
			Help: "Total number of update cycles by outcome",
		},
		[]string{"outcome"},
	)

	cycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "teamwater_update_cycle_duration_seconds",
			Help:    "Wall time of complete update cycles",
			Buckets: prometheus.DefBuckets,
		},
	)

	lastCycleSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "teamwater_last_successful_cycle_timestamp_seconds",
			Help: "Unix time of the last successful update cycle",
		},
	)

	consecutiveFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "teamwater_consecutive_failures",
			Help: "Current run of consecutive failed cycles",
		},
	)
)

// RecordCollection records one API collection pass.
func RecordCollection(outcome Outcome, added, tracked int, total float64) {
	collectionsTotal.With(prometheus.Labels{"outcome": string(outcome)}).Inc()
	if outcome == OutcomeError {
		return
	}
	donationsRecorded.Add(float64(added))
	trackedDonations.Set(float64(tracked))
	if total > 0 {
		totalRaised.Set(total)
	}
}

// RecordCycle records one update cycle.
func RecordCycle(outcome Outcome, elapsed time.Duration) {
	cyclesTotal.With(prometheus.Labels{"outcome": string(outcome)}).Inc()
	cycleDuration.Observe(elapsed.Seconds())
	if outcome != OutcomeError {
		lastCycleSuccess.SetToCurrentTime()
	}
}

// SetConsecutiveFailures exposes the scheduler's failure streak.
func SetConsecutiveFailures(n int) {
	consecutiveFailures.Set(float64(n))
}
