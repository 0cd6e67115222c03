// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package state

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for state-store operations.
var (
	tracer = otel.Tracer("opensvm.state")
	meter  = otel.Meter("opensvm.state")
)

// Metrics for state persistence.
var (
	saveLatency metric.Float64Histogram
	saveTotal   metric.Int64Counter
	loadTotal   metric.Int64Counter
	evictions   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		saveLatency, err = meter.Float64Histogram(
			"state_save_duration_seconds",
			metric.WithDescription("Duration of state save operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		saveTotal, err = meter.Int64Counter(
			"state_save_total",
			metric.WithDescription("Total number of state save operations by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		loadTotal, err = meter.Int64Counter(
			"state_load_total",
			metric.WithDescription("Total number of state load operations by tier"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		evictions, err = meter.Int64Counter(
			"state_evictions_total",
			metric.WithDescription("Total number of evicted state entries by reason"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// Save outcomes recorded on state_save_total.
const (
	saveOutcomeStored   = "stored"
	saveOutcomeMinimal  = "minimal"
	saveOutcomeRejected = "rejected"
	saveOutcomeFailed   = "failed"
	saveOutcomeSkipped  = "skipped"
)

// recordSaveMetrics records one save operation.
func recordSaveMetrics(ctx context.Context, duration time.Duration, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	saveLatency.Record(ctx, duration.Seconds(), attrs)
	saveTotal.Add(ctx, 1, attrs)
}

// recordLoadMetrics records one load operation and the tier that
// answered it ("memory", "durable", or "absent").
func recordLoadMetrics(ctx context.Context, tier string) {
	if err := initMetrics(); err != nil {
		return
	}
	loadTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

// recordEvictions records evicted entries by reason ("lru", "retention",
// or "corrupt").
func recordEvictions(ctx context.Context, count int, reason string) {
	if err := initMetrics(); err != nil || count == 0 {
		return
	}
	evictions.Add(ctx, int64(count), metric.WithAttributes(attribute.String("reason", reason)))
}

// startSaveSpan creates a span for a save operation.
func startSaveSpan(ctx context.Context, signature string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Store.SaveState",
		trace.WithAttributes(
			attribute.String("state.signature", signature),
		),
	)
}

// startLoadSpan creates a span for a load operation.
func startLoadSpan(ctx context.Context, signature string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Store.LoadState",
		trace.WithAttributes(
			attribute.String("state.signature", signature),
		),
	)
}
