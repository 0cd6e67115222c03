// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package source

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for data-source operations.
var (
	tracer = otel.Tracer("opensvm.source")
	meter  = otel.Meter("opensvm.source")
)

// Metrics for data-source fetches.
var (
	fetchLatency metric.Float64Histogram
	fetchTotal   metric.Int64Counter
	fetchResults metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		fetchLatency, err = meter.Float64Histogram(
			"source_fetch_duration_seconds",
			metric.WithDescription("Duration of data-source fetch operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fetchTotal, err = meter.Int64Counter(
			"source_fetch_total",
			metric.WithDescription("Total number of data-source fetch operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fetchResults, err = meter.Int64Histogram(
			"source_fetch_results",
			metric.WithDescription("Number of records returned per fetch"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordFetchMetrics records metrics for one fetch operation.
func recordFetchMetrics(ctx context.Context, op string, duration time.Duration, results int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("success", success),
	)

	fetchLatency.Record(ctx, duration.Seconds(), attrs)
	fetchTotal.Add(ctx, 1, attrs)

	if success {
		fetchResults.Record(ctx, int64(results),
			metric.WithAttributes(attribute.String("op", op)),
		)
	}
}

// startFetchSpan creates a span for a fetch operation.
func startFetchSpan(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "RPCClient."+op,
		trace.WithAttributes(
			attribute.String("source.key", key),
		),
	)
}
