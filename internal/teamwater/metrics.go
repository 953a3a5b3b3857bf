/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

package teamwater

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "teamwater.api"

// apiMetrics carries the OpenTelemetry instruments for API traffic.
// Instrument creation degrades to no-ops rather than failing the
// client: a broken meter provider should never stop collection.
type apiMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newAPIMetrics() *apiMetrics {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))

	requests, err := meter.Int64Counter("teamwater.api.requests",
		metric.WithDescription("The number of campaign API requests issued"),
		metric.WithUnit("{requests}"))
	if err != nil {
		slog.Warn("Failed to create API request counter, metrics will be disabled", "error", err, "meter", meterName)
		requests = noop.Int64Counter{}
	}

	duration, err := meter.Float64Histogram("teamwater.api.request.duration",
		metric.WithDescription("The wall time of campaign API requests, retries included"),
		metric.WithUnit("s"))
	if err != nil {
		slog.Warn("Failed to create API duration histogram, metrics will be disabled", "error", err, "meter", meterName)
		duration = noop.Float64Histogram{}
	}

	return &apiMetrics{
		requests: requests,
		duration: duration,
	}
}

// recordRequest records one logical request (its retries folded in).
func (m *apiMetrics) recordRequest(ctx context.Context, endpoint string, elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", outcome),
	)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
