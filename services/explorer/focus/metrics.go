// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package focus

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for focus operations.
var (
	tracer = otel.Tracer("opensvm.focus")
	meter  = otel.Meter("opensvm.focus")
)

// Metrics for focus transitions.
var (
	passLatency    metric.Float64Histogram
	passTotal      metric.Int64Counter
	collapsedTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// Focus pass outcomes.
const (
	passApplied    = "applied"
	passSuperseded = "superseded"
	passFailed     = "failed"
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		passLatency, err = meter.Float64Histogram(
			"focus_pass_duration_seconds",
			metric.WithDescription("Duration of focus expansion passes"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		passTotal, err = meter.Int64Counter(
			"focus_passes_total",
			metric.WithDescription("Total number of focus expansion passes"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		collapsedTotal, err = meter.Int64Counter(
			"focus_requests_collapsed_total",
			metric.WithDescription("Focus requests collapsed by debouncing"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordPassMetrics records metrics for one focus pass.
func recordPassMetrics(ctx context.Context, duration time.Duration, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	passLatency.Record(ctx, duration.Seconds(), attrs)
	passTotal.Add(ctx, 1, attrs)
}

// recordCollapsed counts a focus request that replaced a pending one.
func recordCollapsed(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	collapsedTotal.Add(ctx, 1)
}

// startPassSpan creates a span for a focus expansion pass.
func startPassSpan(ctx context.Context, signature string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Controller.FocusPass",
		trace.WithAttributes(
			attribute.String("focus.signature", signature),
		),
	)
}
