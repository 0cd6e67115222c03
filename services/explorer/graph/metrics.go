// Copyright (C) 2026 openSVM (dev@opensvm.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for graph operations.
var (
	tracer = otel.Tracer("opensvm.graph")
	meter  = otel.Meter("opensvm.graph")
)

// Metrics for graph expansion operations.
var (
	expandLatency metric.Float64Histogram
	expandTotal   metric.Int64Counter
	nodesCreated  metric.Int64Histogram
	edgesCreated  metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		expandLatency, err = meter.Float64Histogram(
			"graph_expand_duration_seconds",
			metric.WithDescription("Duration of graph expansion operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		expandTotal, err = meter.Int64Counter(
			"graph_expand_total",
			metric.WithDescription("Total number of graph expansion operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesCreated, err = meter.Int64Histogram(
			"graph_expand_nodes_created",
			metric.WithDescription("Number of nodes created per expansion"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		edgesCreated, err = meter.Int64Histogram(
			"graph_expand_edges_created",
			metric.WithDescription("Number of edges created per expansion"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordExpandMetrics records metrics for one expansion operation.
func recordExpandMetrics(ctx context.Context, duration time.Duration, newNodes, newEdges int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))

	expandLatency.Record(ctx, duration.Seconds(), attrs)
	expandTotal.Add(ctx, 1, attrs)

	if success {
		nodesCreated.Record(ctx, int64(newNodes))
		edgesCreated.Record(ctx, int64(newEdges))
	}
}

// startExpandSpan creates a span for an account expansion.
func startExpandSpan(ctx context.Context, address string, depth int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Builder.AddAccount",
		trace.WithAttributes(
			attribute.String("graph.address", address),
			attribute.Int("graph.depth", depth),
		),
	)
}

// startSeedSpan creates a span for a signature-seeded expansion.
func startSeedSpan(ctx context.Context, signature string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Builder.AddTransaction",
		trace.WithAttributes(
			attribute.String("graph.signature", signature),
		),
	)
}

// setExpandSpanResult sets the result attributes on an expansion span.
func setExpandSpanResult(span trace.Span, nodeCount, edgeCount, failures int) {
	span.SetAttributes(
		attribute.Int("graph.node_count", nodeCount),
		attribute.Int("graph.edge_count", edgeCount),
		attribute.Int("graph.failures", failures),
	)
}
